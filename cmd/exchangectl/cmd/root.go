// Package cmd provides the exchangectl commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/somexchange/backend/internal/app"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/spf13/cobra"
)

type options struct {
	envFile string
	actor   string
}

// Execute runs the command line against os.Args.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "exchangectl",
		Short: "Administer the currency exchange ledger",
		Long: `exchangectl operates directly on the configured ledger store.

It supports:
- Creating tellers and admins
- Recomputing account balances from the ledger
- Printing per-currency statistics

Example:
  exchangectl user add --username alice --role teller --password s3cretpass
  exchangectl repair --dry-run
  exchangectl stats --from 2025-01-01 --to 2025-01-31`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "path to the .env configuration file")
	root.PersistentFlags().StringVar(&opts.actor, "as", "exchangectl", "username recorded in the audit log")

	root.AddCommand(newUserCmd(opts))
	root.AddCommand(newRepairCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	return root
}

// open loads configuration and builds the services. The CLI acts as an admin.
func (o *options) open(ctx context.Context) (*app.App, models.Identity, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, models.Identity{}, fmt.Errorf("load configuration: %w", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, models.Identity{}, err
	}
	return a, models.Identity{Username: o.actor, Role: models.RoleAdmin}, nil
}
