package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRepairCmd(opts *options) *cobra.Command {
	var dryRun bool
	repairCmd := &cobra.Command{
		Use:   "repair",
		Short: "Recompute account balances from the ledger",
		Long: `Replays every ledger entry and compares the result with the stored
account balances. Drifting accounts are overwritten unless --dry-run is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actor, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Services.Repair.RepairBalances(cmd.Context(), actor, dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Replayed %d entries\n", report.Entries)
			if len(report.Accounts) == 0 {
				fmt.Fprintln(out, "All balances match the ledger")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tSTORED\tCOMPUTED\tDRIFT")
			for _, d := range report.Accounts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Code, d.Stored, d.Computed, d.Drift)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if dryRun {
				fmt.Fprintf(out, "Dry run: %d accounts left unchanged\n", len(report.Accounts))
			} else {
				fmt.Fprintf(out, "Repaired %d accounts\n", report.Repaired)
			}
			return nil
		},
	}
	repairCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without writing")
	return repairCmd
}
