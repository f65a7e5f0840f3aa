package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ofdl/pkg/auth"
	"ofdl/pkg/config"
	"ofdl/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored session credentials",
	Long: `Manage session credentials outside the config file.

Credentials are stored per scraper name using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - OFDL_<NAME>_COOKIE, OFDL_<NAME>_USER_AGENT and OFDL_<NAME>_XBC (read only)

Never share your cookie or config files!`,
}

var loginCmd = &cobra.Command{
	Use:     "login <scraper>",
	Short:   "Store credentials for a scraper",
	Example: `  ofdl auth login main`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <scraper>",
	Short: "Remove stored credentials for a scraper",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var authShowCmd = &cobra.Command{
	Use:   "show [scraper]",
	Short: "Show stored credentials with secrets masked",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthShow,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authShowCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	name := args[0]
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		if !confirm(fmt.Sprintf("Credentials for '%s' already exist. Replace them?", name)) {
			return nil
		}
	}

	auth.WriteCookieGuide(os.Stdout)
	creds := &auth.Credentials{Scraper: name}
	for creds.Cookie == "" {
		if creds.Cookie, err = promptSecret("cookie"); err != nil {
			return err
		}
		if creds.Cookie == "" {
			ui.PrintWarning("The cookie is required")
		}
	}
	if creds.UserAgent, err = prompt("user-agent", ""); err != nil {
		return err
	}
	if creds.XBC, err = prompt("x-bc (empty to generate)", ""); err != nil {
		return err
	}
	if creds.XBC == "" {
		creds.XBC = config.GenerateXBC()
	}

	if err := manager.Store(creds); err != nil {
		return err
	}
	ui.PrintSuccess("Credentials stored for " + name)
	printCredentials(creds)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Credentials removed for " + args[0])
	return nil
}

func runAuthShow(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if len(args) == 1 {
		creds, err := manager.Retrieve(args[0])
		if err != nil {
			return err
		}
		printCredentials(creds)
		return nil
	}

	list, err := manager.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		ui.PrintWarning("No stored credentials")
		return nil
	}
	for _, creds := range list {
		printCredentials(creds)
	}
	return nil
}

func printCredentials(creds *auth.Credentials) {
	masked := creds.Masked()
	ui.PrintInfo("Scraper", masked.Scraper)
	ui.PrintInfo("  cookie", masked.Cookie)
	if masked.UserAgent != "" {
		ui.PrintInfo("  user-agent", masked.UserAgent)
	}
	if masked.XBC != "" {
		ui.PrintInfo("  x-bc", masked.XBC)
	}
	if !masked.LastModified.IsZero() {
		ui.PrintInfo("  stored", masked.LastModified.Format("2006-01-02 15:04"))
	}
}
