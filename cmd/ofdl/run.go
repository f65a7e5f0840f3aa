package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"ofdl/internal/runner"
	"ofdl/pkg/auth"
)

var runForever bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [usernames...]",
	Short: "Sync media for every configured scraper",
	Long: `Run one sync pass for every configured scraper.

Without usernames each scraper discovers its targets from its active
subscriptions and chats. With usernames exactly those creators are synced,
both their feeds and their messages.

Scrapers without a cookie in the config take it from the credentials
stored with 'ofdl auth login <scraper>'.`,
	Example: `  # Sync everything once
  ofdl run

  # Sync two creators
  ofdl run alice bob

  # Keep syncing until interrupted
  ofdl run --run-forever`,
	Args: cobra.ArbitraryArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runForever, "run-forever", false, "repeat passes until interrupted")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	var opts []runner.Option
	if manager, err := auth.NewManager(); err == nil {
		opts = append(opts, runner.WithCredentials(manager))
	} else {
		log.WithError(err).Warn("credential store unavailable")
	}

	log.InfoWithFields("starting sync", map[string]interface{}{
		"scrapers":  len(cfg.Scrapers),
		"usernames": args,
		"forever":   runForever,
	})

	err = runner.New(cfg, log, opts...).Run(cmd.Context(), runner.Options{
		Usernames: args,
		Forever:   runForever,
	})
	if errors.Is(err, context.Canceled) {
		log.Info("interrupted, stopping")
		return nil
	}
	return err
}
