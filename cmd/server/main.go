// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/tobalt/cityalerts/internal/config"
	"github.com/tobalt/cityalerts/internal/database"
	"github.com/tobalt/cityalerts/internal/i18n"
	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/scheduler"
	"github.com/tobalt/cityalerts/internal/server"
	"github.com/tobalt/cityalerts/internal/services/email"
	"github.com/tobalt/cityalerts/internal/services/notify"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "cityalerts",
		Usage:   "Municipal alert publishing service",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			sendersCommand(),
			categoriesCommand(),
			activityCommand(),
			notificationsCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func sendersCommand() *cli.Command {
	return &cli.Command{
		Name:  "senders",
		Usage: "Manage the approved-sender registry",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Approve an email address for alert submissions",
				ArgsUsage: "EMAIL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Value: "employee", Usage: "Sender role"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					email := cmd.Args().First()
					if email == "" {
						return fmt.Errorf("email argument is required")
					}
					return withRepo(cmd, func(repo *repository.Repository) error {
						return repo.AddApprovedSender(ctx, email, cmd.String("role"), "cli", time.Now())
					})
				},
			},
			{
				Name:  "list",
				Usage: "List approved senders",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withRepo(cmd, func(repo *repository.Repository) error {
						senders, err := repo.ListApprovedSenders(ctx)
						if err != nil {
							return err
						}
						for _, s := range senders {
							fmt.Printf("%s\t%s\tadded by %s at %s\n", s.Email, s.Role, s.AddedBy, s.AddedAt.Format(time.RFC3339))
						}
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Revoke an approved sender",
				ArgsUsage: "EMAIL",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					email := cmd.Args().First()
					if email == "" {
						return fmt.Errorf("email argument is required")
					}
					return withRepo(cmd, func(repo *repository.Repository) error {
						return repo.DeleteApprovedSender(ctx, email)
					})
				},
			},
		},
	}
}

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "Manage alert categories",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create an alert category",
				ArgsUsage: "NAME SLUG",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().Get(0)
					slug := cmd.Args().Get(1)
					if name == "" || slug == "" {
						return fmt.Errorf("name and slug arguments are required")
					}
					return withRepo(cmd, func(repo *repository.Repository) error {
						category := &models.Category{Name: name, Slug: slug}
						return repo.CreateCategory(ctx, category)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List categories",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withRepo(cmd, func(repo *repository.Repository) error {
						categories, err := repo.ListCategories(ctx)
						if err != nil {
							return err
						}
						for _, c := range categories {
							fmt.Printf("%d\t%s\t%s\t%d published\n", c.ID, c.Slug, c.Name, c.Count)
						}
						return nil
					})
				},
			},
		},
	}
}

func activityCommand() *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "Show the most recent alert activity",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Number of entries"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withRepo(cmd, func(repo *repository.Repository) error {
				entries, err := repo.ListRecentActivity(ctx, int(cmd.Int("limit")))
				if err != nil {
					return err
				}
				for _, e := range entries {
					actor := e.ActorEmail
					if actor == "" {
						actor = e.ActorType
					}
					fmt.Printf("%s\talert %d\t%s\t%s\t%s\n",
						e.CreatedAt.Format(time.RFC3339), e.AlertID, e.Action, actor, e.Details)
				}
				return nil
			})
		},
	}
}

func notificationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "notifications",
		Usage: "Notification delivery tools",
		Commands: []*cli.Command{
			{
				Name:      "resend",
				Usage:     "Clear the dispatch stamp for an alert and send its notifications again",
				ArgsUsage: "ALERT-ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					alertID, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
					if err != nil {
						return fmt.Errorf("numeric alert-id argument is required")
					}

					cfg := config.NewFromCLI(cmd)
					if err := i18n.Init(); err != nil {
						return err
					}
					db, err := database.Open(cfg.Database.DSN)
					if err != nil {
						return fmt.Errorf("opening database: %w", err)
					}
					defer db.Close()

					logger := slog.Default()
					mailSvc, err := email.NewService(email.NewMailer(cfg.SMTP, logger), cfg.Server.BaseURL)
					if err != nil {
						return err
					}

					sched := scheduler.New(logger)
					sched.Start(ctx)
					dispatcher := notify.NewDispatcher(repository.New(db), mailSvc, sched, cfg.Notify, logger)
					if err := dispatcher.Resend(ctx, alertID); err != nil {
						return err
					}
					// Batches go out on a delay; hold the process until
					// the last one has run.
					sched.Wait()
					return nil
				},
			},
		},
	}
}

func withRepo(cmd *cli.Command, fn func(repo *repository.Repository) error) error {
	db, err := database.Open(cmd.String("database-dsn"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return fn(repository.New(db))
}
