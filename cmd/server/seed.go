package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wellpath/internal/model"
	"wellpath/internal/service"
)

func seedCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo case with one interview",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client, err := connectMongo(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)

			svcs, err := newServices(cfg, client.Database(cfg.MongoDatabase), logger)
			if err != nil {
				return err
			}

			owner := service.OwnerIDFor(username)
			c, err := svcs.cases.Create(ctx, owner, &model.CreateCaseRequest{
				Title:       "Recurring headaches",
				Description: "Headaches most afternoons for the last two weeks.",
			})
			if err != nil {
				return fmt.Errorf("create case: %w", err)
			}

			start, err := svcs.interviews.Initialize(ctx, owner, c.ID)
			if err != nil {
				return fmt.Errorf("start interview: %w", err)
			}

			token, err := svcs.auth.IssueToken(owner, 24*time.Hour)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "owner:     %s\n", owner)
			fmt.Fprintf(out, "case:      %s\n", c.ID)
			fmt.Fprintf(out, "interview: %s\n", start.InterviewID)
			fmt.Fprintf(out, "first:     %s\n", start.FirstQuestion.Text)
			fmt.Fprintf(out, "token:     %s\n", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "user", "demo", "username the demo data belongs to")
	return cmd
}
