// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

package main

import (
	"fmt"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cheatgate/cheatgate/internal/auth"
	"github.com/cheatgate/cheatgate/internal/config"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue or inspect bearer tokens",
		Long: `Operator tooling for bearer tokens signed with token.secret.
Tokens issued here skip the member directory; use them for testing only.`,
	}

	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue EMAIL",
		Short: "Print a signed token for EMAIL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := opts.tokenService(cmd, ttl)
			if err != nil {
				return err
			}
			token, expires, err := tokens.Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			cmd.PrintErrf("expires %s\n", expires.UTC().Format(time.RFC3339))
			return nil
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: token.ttl)")
	cmd.AddCommand(issue)

	cmd.AddCommand(&cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify TOKEN and print its subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := opts.tokenService(cmd, 0)
			if err != nil {
				return err
			}
			email, err := tokens.Verify(args[0])
			if err != nil {
				return oops.Code("TOKEN_INVALID").Errorf("token is invalid or expired")
			}
			fmt.Fprintln(cmd.OutOrStdout(), email)
			return nil
		},
	})

	return cmd
}

func (o *rootOptions) tokenService(cmd *cobra.Command, ttl time.Duration) (*auth.TokenService, error) {
	cfg, err := o.loadConfig(cmd, config.ScopeToken)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = cfg.Token.TTL
	}
	return auth.NewTokenService([]byte(cfg.Token.Secret), auth.WithTTL(ttl))
}
