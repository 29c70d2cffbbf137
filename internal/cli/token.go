package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ellenzeng3/lda-filing-bot/internal/auth"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, closer, err := opts.load("ldabot-token")
			if err != nil {
				return err
			}
			defer closer.Close()

			token, err := auth.Issue(auth.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer}, subject, scopes, ttl, opts.now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{auth.ScopeFilingsSync, auth.ScopeFilingsRead}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
