package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/somexchange/backend/internal/models"
	"github.com/spf13/cobra"
)

func newStatsCmd(opts *options) *cobra.Command {
	var from, to string
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Display per-currency statistics",
		Example: `  exchangectl stats
  exchangectl stats --from 2025-01-01 --to 2025-01-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actor, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := models.ParseDayRange(from, to, a.Services.Location)
			if err != nil {
				return fmt.Errorf("invalid range: %w", err)
			}
			stats, err := a.Services.Analytics.ComputeStats(cmd.Context(), actor, r)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Base balance:   %s %s\n", stats.BaseBalance, stats.BaseCurrency)
			fmt.Fprintf(out, "Total deposits: %s\n", stats.TotalDeposits)
			fmt.Fprintf(out, "Total profit:   %s\n\n", stats.TotalProfit)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CURRENCY\tPURCHASED\tAVG BUY\tSOLD\tAVG SELL\tON HAND\tPROFIT")
			for _, c := range stats.Currencies {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", c.Currency,
					c.TotalPurchased, c.AvgPurchaseRate.StringFixed(4),
					c.TotalSold, c.AvgSaleRate.StringFixed(4),
					c.CurrentQuantity, c.Profit.StringFixed(2))
			}
			return tw.Flush()
		},
	}
	statsCmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	statsCmd.Flags().StringVar(&to, "to", "", "last day (inclusive), YYYY-MM-DD")
	return statsCmd
}
