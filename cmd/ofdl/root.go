package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"ofdl/pkg/config"
	"ofdl/pkg/logger"
	"ofdl/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
)

// rootCmd syncs every configured scraper when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "ofdl [usernames...]",
	Short: "Incrementally mirror subscribed creators' media to disk",
	Long: `ofdl downloads posts, archived posts, messages, stories and highlights
for every configured scraper identity. Each creator gets a directory under
the download root with a small ledger, so later runs fetch only what is new.

Without arguments every active subscription and chat is synced. Naming
usernames restricts the run to those creators.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
	},
	RunE: runSync,
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError("Error", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().BoolVar(&runForever, "run-forever", false, "repeat passes until interrupted")

	rootCmd.SetVersionTemplate(`ofdl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the config named by --config and applies flag
// overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// setupLogger installs the global logger for cfg and returns it.
func setupLogger(cfg *config.Config) (logger.Logger, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.GetLogger(), nil
}

// configPath is the file the config commands operate on
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.DefaultPath()
}
