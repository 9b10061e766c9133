package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wellpath/internal/service"
)

func tokenCmd() *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a subject token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			auth := service.NewAuthService(cfg.AuthUsername, cfg.AuthPassword, cfg.JWTSecret)
			owner := service.OwnerIDFor(username)
			token, err := auth.IssueToken(owner, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "user", "demo", "username to mint the token for")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}
