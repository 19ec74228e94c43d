package auth

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/hubmetrix/platform/go/auth/devtoken"
)

func devTokenCommand() *cobra.Command {
	var params devtoken.Params
	var callbackURL string

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint a signed_payload_jwt for a store user (dev/local use)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := devtoken.BuildSignedPayloadJWT(params, time.Now().UTC())
			if err != nil {
				return err
			}

			if callbackURL == "" {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s?signed_payload_jwt=%s\n", callbackURL, url.QueryEscape(token))
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&params.ClientID, "client-id", "", "app client id (aud)")
	cmd.Flags().StringVar(&params.ClientSecret, "client-secret", "", "app client secret used as the HS256 key")
	cmd.Flags().StringVar(&params.StoreHash, "store-hash", "", "store hash (sub becomes stores/<hash>)")
	cmd.Flags().StringVar(&params.Email, "email", "", "store user email")

	// Optional claims
	cmd.Flags().Int64Var(&params.UserID, "user-id", 1, "store user id")
	cmd.Flags().Int64Var(&params.OwnerID, "owner-id", 0, "store owner id; defaults to user-id")
	cmd.Flags().StringVar(&params.OwnerEmail, "owner-email", "", "store owner email; defaults to email")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&callbackURL, "callback-url", "", "print a full callback URL (e.g. http://localhost:3000/load) instead of the bare token")

	_ = cmd.MarkFlagRequired("client-id")
	_ = cmd.MarkFlagRequired("client-secret")
	_ = cmd.MarkFlagRequired("store-hash")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
