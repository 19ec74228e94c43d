package tenantcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/hubmetrix/apps/internal/wiring"
	platformlogging "github.com/zenGate-Global/hubmetrix/platform/go/logging"
	"github.com/zenGate-Global/hubmetrix/platform/go/requesttrace"
)

// Command groups store record and subscription helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Store utilities (inspect, provision, subscription lifecycle)",
	}

	cmd.AddCommand(getCommand())
	cmd.AddCommand(statusCommand())
	cmd.AddCommand(provisionCommand())
	cmd.AddCommand(cancelCommand())
	cmd.AddCommand(reactivateCommand())
	return cmd
}

func openApp(ctx context.Context) (*wiring.App, *zap.Logger, error) {
	var cfg wiring.Config
	if err := env.Parse(&cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Stage:     cfg.Stage(),
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Output:    os.Stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init zap logger: %w", err)
	}

	app, err := wiring.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("wire services: %w", err)
	}
	return app, logger, nil
}

// withApp runs fn against freshly wired services and releases them afterwards. Each run is
// traced as a system actor.
func withApp(fn func(ctx context.Context, app *wiring.App) error) error {
	ctx := context.Background()
	app, logger, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		app.Close()
		_ = logger.Sync()
	}()

	audit := requesttrace.System(uuid.NewString())
	ctx = requesttrace.IntoContext(ctx, audit)
	ctx = platformlogging.WithLogger(ctx, logger.With(
		zap.String("actor_kind", string(audit.ActorKind)),
		zap.String("request_id", audit.RequestID),
	))
	return fn(ctx, app)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <store-hash>",
		Short: "Show the stored record of a store (tokens redacted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *wiring.App) error {
				t, err := app.Tenants.FindByStoreHash(ctx, args[0])
				if err != nil {
					return fmt.Errorf("find store %s: %w", args[0], err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "store_hash:          %s\n", t.StoreHash)
				fmt.Fprintf(out, "platform_user_id:    %d\n", t.PlatformUserID)
				fmt.Fprintf(out, "platform_email:      %s\n", t.PlatformEmail)
				fmt.Fprintf(out, "platform_token:      %s\n", redact(t.PlatformAccessToken))
				fmt.Fprintf(out, "crm_linked:          %t\n", t.CRMLinked())
				fmt.Fprintf(out, "crm_hub_domain:      %s\n", t.CRMHubDomain)
				fmt.Fprintf(out, "subscription_id:     %s\n", t.BillingSubscriptionID)
				fmt.Fprintf(out, "webhooks_registered: %t\n", t.WebhooksRegistered)
				fmt.Fprintf(out, "version:             %d\n", t.Version)
				return nil
			})
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <store-hash>",
		Short: "Print the home page summary of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *wiring.App) error {
				summary, err := app.Provisioning.Status(ctx, args[0])
				if err != nil {
					return fmt.Errorf("status of %s: %w", args[0], err)
				}
				return printJSON(cmd, summary)
			})
		},
	}
}

func provisionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <store-hash>",
		Short: "Check the store's subscription and sync its webhooks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *wiring.App) error {
				provisioned, err := app.Provisioning.CheckAndProvisionSubscription(ctx, args[0])
				if err != nil {
					return fmt.Errorf("provision %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Store %s provisioned: %t\n", args[0], provisioned)
				return nil
			})
		},
	}
}

func cancelCommand() *cobra.Command {
	var immediately bool

	c := &cobra.Command{
		Use:   "cancel <store-hash>",
		Short: "Cancel the store's subscription (at term end unless --immediately)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *wiring.App) error {
				sub, err := app.Provisioning.CancelSubscription(ctx, args[0], !immediately)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s is now %s\n", sub.ID, sub.Status)
				return nil
			})
		},
	}

	c.Flags().BoolVar(&immediately, "immediately", false, "cancel now instead of at the end of the current term")
	return c
}

func reactivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <store-hash>",
		Short: "Reactivate the store's subscription and webhooks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *wiring.App) error {
				sub, err := app.Provisioning.ReactivateSubscription(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s is now %s\n", sub.ID, sub.Status)
				return nil
			})
		},
	}
}

func redact(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
