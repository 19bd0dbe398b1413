package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/y0f/rankwatch/internal/config"
	"github.com/y0f/rankwatch/internal/notifier"
)

// runOnce wires the services, runs one job to completion and prints its
// summary as JSON. SIGINT cancels the run; the summary printed is partial.
func runOnce(cmd *cobra.Command, job func(ctx context.Context, a *app) (any, error)) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := job(ctx, a)
	if summary != nil {
		if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rankCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rank-check",
		Short: "Query current rankings for every active keyword",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
				sum, err := a.svc.RankCheck.RunDailyRankCheck(ctx)
				if sum == nil {
					return nil, err
				}
				return sum, err
			})
		},
	}
}

func publishCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish draft pages whose scheduled time has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
				sum, err := a.svc.Publisher.PublishScheduledPages(ctx)
				if sum == nil {
					return nil, err
				}
				return sum, err
			})
		},
	}
}

func linkCheckCommand() *cobra.Command {
	var slug string
	cmd := &cobra.Command{
		Use:   "link-check",
		Short: "Audit outbound links on published pages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
				if slug != "" {
					checks, err := a.svc.LinkHealth.CheckPageLinks(ctx, slug)
					if err != nil {
						return nil, err
					}
					return checks, nil
				}
				rep, err := a.svc.LinkHealth.Run(ctx)
				if rep == nil {
					return nil, err
				}
				return rep, err
			})
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "check a single page by slug")
	return cmd
}

func notifyTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test CHANNEL",
		Short: "Send a test notification through a configured channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			channels := notifier.ChannelsFromConfig(cfg.Notifications)
			d := notifier.NewDispatcher(channels, cfg.LinkCheck.AllowPrivateTargets, setupLogger(cfg.Logging))
			for i := range channels {
				if channels[i].Name != args[0] {
					continue
				}
				if err := d.SendTest(cmd.Context(), &channels[i]); err != nil {
					return fmt.Errorf("channel %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent test notification to %s (%s)\n", channels[i].Name, channels[i].Type)
				return nil
			}
			return fmt.Errorf("no notification channel named %q", args[0])
		},
	}
}

func hashSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret SECRET",
		Short: "Print the config hash of an API key or cron secret",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.HashSecret(args[0]))
		},
	}
}

func generateKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a random API key and its config hash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, hash, err := generateAPIKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:  %s\n", key)
			fmt.Fprintf(out, "hash: %s\n", hash)
			return nil
		},
	}
}

func generateAPIKey() (key, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate random bytes: %w", err)
	}
	key = "rw_" + hex.EncodeToString(b)
	return key, config.HashSecret(key), nil
}
