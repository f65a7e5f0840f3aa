package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"ofdl/pkg/auth"
	"ofdl/pkg/config"
	"ofdl/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the scraper configuration",
	Long: `Manage the scraper configuration file.

Values are taken from, in order of precedence:
  - Environment variables (OFDL_LOG_LEVEL, OFDL_DOWNLOAD_ROOT, ...)
  - .env files in the working directory and ~/.ofdl.env
  - The configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	Long: `Create a configuration file with one scraper identity.

The cookie may be left empty and stored separately with
'ofdl auth login <scraper>', which keeps it out of the file.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after defaults and environment overrides. Secrets are masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	ui.PrintHighlight("Creating " + path)
	name, err := prompt("Scraper name", "main")
	if err != nil {
		return err
	}
	s := config.DefaultScraper()
	if s.Cookie, err = promptSecret("Cookie (empty to store it with 'ofdl auth login')"); err != nil {
		return err
	}
	if s.UserAgent, err = prompt("User agent", ""); err != nil {
		return err
	}
	if s.DownloadRoot, err = prompt("Download root", s.DownloadRoot); err != nil {
		return err
	}
	if s.Proxy, err = prompt("Proxy URL (optional)", ""); err != nil {
		return err
	}
	s.SkipTemporary = confirm("Skip stories and expiring posts?")

	cfg := config.DefaultConfig()
	cfg.Scrapers[name] = s
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration written to " + path)
	if s.Cookie == "" {
		fmt.Printf("Next: ofdl auth login %s\n", name)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	shown := *cfg
	shown.Scrapers = make(map[string]*config.ScraperConfig, len(cfg.Scrapers))
	for name, s := range cfg.Scrapers {
		masked := *s
		if masked.Cookie != "" {
			masked.Cookie = (&auth.Credentials{Cookie: s.Cookie}).Masked().Cookie
		}
		shown.Scrapers[name] = &masked
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	ui.PrintInfo("Config file", configPath())
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("configuration file not found: %s", path)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Scrapers) == 0 {
		ui.PrintWarning("No scrapers configured")
	}
	for _, name := range cfg.Names() {
		if cfg.Scrapers[name].Cookie == "" {
			ui.PrintWarning("Scraper "+name+" has no cookie", "it must be stored with 'ofdl auth login "+name+"'")
		}
	}
	ui.PrintSuccess("Configuration is valid: " + path)
	return nil
}
