// Package cmd contains the CLI commands for ideremote.
package cmd

import (
	"fmt"

	"github.com/brianly1003/ideremote/internal/config"
	"github.com/brianly1003/ideremote/internal/security"
	"github.com/spf13/cobra"
)

var (
	// Version info (set from main)
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"

	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ideremote",
	Short: "Remote control for your IDE from a phone",
	Long: `ideremote runs next to your IDE and lets a paired phone drive it over
a WebSocket: open and type into terminals, watch their screens live, start
builds and run configurations, and follow background progress.

New devices must present the pairing token (shown as a QR code by
'ideremote pair') and be approved on this machine before they can do
anything.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information from the main package.
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.ideremote/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd displays version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ideremote %s\n", version)
		fmt.Fprintf(out, "  Build time: %s\n", buildTime)
		fmt.Fprintf(out, "  Git commit: %s\n", gitCommit)
	},
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// openStore opens the security store of the configured data directory.
// Callers close it.
func openStore(cfg *config.Config) (*security.Store, error) {
	store, err := security.OpenStore(security.DefaultStorePath(cfg.Security.DataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open security store: %w", err)
	}
	return store, nil
}
