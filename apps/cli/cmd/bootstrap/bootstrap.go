package bootstrap

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/hubmetrix/apps/internal/wiring"
)

// Command creates the tenant table of the configured store backend.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the tenant table (DynamoDB table or Postgres schema)",
		Long:  "Create the tenant table of the backend selected by STORE_BACKEND. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg wiring.StoreConfig
			if err := env.Parse(&cfg); err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if err := wiring.Bootstrap(context.Background(), cfg); err != nil {
				return fmt.Errorf("bootstrap %s store: %w", cfg.StoreBackend, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap complete. Backend: %s\n", cfg.StoreBackend)
			return nil
		},
	}
}
