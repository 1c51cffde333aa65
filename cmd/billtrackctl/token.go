package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "billtrack/internal/jwt_token"
	id "billtrack/pkg/domain"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for an existing user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			uid, err := id.ParseUserID(userID)
			if err != nil {
				return err
			}
			r, err := id.ParseRole(role)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer).GenerateAccessToken(uid, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user UUID")
	cmd.Flags().StringVar(&role, "role", "viewer", "admin, manager, officer, staff or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
