package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show or regenerate the pairing token",
	Long: `A device must present the pairing token when it connects. The token
is created on first use and stored in the data directory.`,
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the pairing token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		token, err := store.Token()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenRegenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Replace the pairing token and forget every approved device",
	Long: `Replace the pairing token. Every approved device is forgotten and has
to pair again. A running server picks up the new token on the next connection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		token, err := store.RegenerateToken()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", green("New pairing token:"), bold(token))
		fmt.Fprintln(out, yellow("Approved devices were cleared. Devices must pair again with the new token."))
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenShowCmd)
	tokenCmd.AddCommand(tokenRegenerateCmd)
	rootCmd.AddCommand(tokenCmd)
}
