package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianly1003/ideremote/internal/app"
	"github.com/brianly1003/ideremote/internal/config"
	"github.com/lmittmann/tint"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	startHost         string
	startPort         int
	startExternalURL  string
	startApproval     string
	startMemory       bool
	startProjects     []string
	startBuildCommand string
	startRunConfigs   string
	startNoQR         bool
)

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ideremote server",
	Long: `Start the ideremote server and accept connections from paired devices.

Terminals are real shells on this machine. Builds run the configured
build command and run configurations come from a YAML or JSONC file that
is reloaded when it changes.

Device approval:
  prompt  ask on this terminal for every new device (default)
  auto    approve every device that presents the pairing token
  deny    only devices approved with 'ideremote devices approve'

Example:
  ideremote start
  ideremote start --project ~/src/shop --build-command "make build"
  ideremote start --host 0.0.0.0 --port 8766
  ideremote start --external-url https://your-tunnel.devtunnels.ms
  ideremote start --memory            # no shell, in-memory echo terminals`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startHost, "host", "", "address to listen on (default: 127.0.0.1)")
	startCmd.Flags().IntVar(&startPort, "port", 0, "server port (default: 8766)")
	startCmd.Flags().StringVar(&startExternalURL, "external-url", "", "public URL advertised for pairing (e.g., https://tunnel.devtunnels.ms)")
	startCmd.Flags().StringVar(&startApproval, "approval", "", "device approval mode: prompt, auto or deny")
	startCmd.Flags().BoolVar(&startMemory, "memory", false, "serve in-memory terminals instead of the local host")
	startCmd.Flags().StringSliceVar(&startProjects, "project", nil, "project directory (repeatable, default: current directory)")
	startCmd.Flags().StringVar(&startBuildCommand, "build-command", "", "shell command run by build_project")
	startCmd.Flags().StringVar(&startRunConfigs, "run-configs", "", "YAML or JSONC file listing run configurations")
	startCmd.Flags().BoolVar(&startNoQR, "no-qr", false, "do not print the pairing QR code")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyStartFlags(cfg); err != nil {
		return err
	}

	// Re-validate after overrides
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogging(cfg, os.Stderr)

	log.Info().
		Str("version", version).
		Str("host_mode", cfg.Host.Mode).
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting ideremote")

	opts := []app.Option{app.WithLogger(logger)}
	if !startNoQR {
		opts = append(opts, app.WithBanner(cmd.OutOrStdout()))
	}
	application, err := app.New(cfg, version, opts...)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("ideremote stopped")
	return nil
}

// applyStartFlags overrides cfg with the flags that were set.
func applyStartFlags(cfg *config.Config) error {
	if startHost != "" {
		cfg.Server.Host = startHost
	}
	if startPort != 0 {
		cfg.Server.Port = startPort
	}
	if startExternalURL != "" {
		cfg.Server.ExternalURL = startExternalURL
	}
	if startApproval != "" {
		cfg.Security.ApprovalMode = startApproval
	}
	if startMemory {
		cfg.Host.Mode = config.HostModeMemory
	}
	if len(startProjects) > 0 {
		cfg.Host.Projects = cfg.Host.Projects[:0]
		for _, p := range startProjects {
			cfg.Host.Projects = append(cfg.Host.Projects, config.ProjectConfig{Path: p})
		}
	}
	if startBuildCommand != "" {
		cfg.Host.BuildCommand = startBuildCommand
	}
	if startRunConfigs != "" {
		cfg.Host.RunConfigsFile = startRunConfigs
	}
	return config.Normalize(cfg)
}

// setupLogging configures the global zerolog logger and returns the slog
// logger used by the terminal and host components.
func setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	slogLevel := slog.LevelInfo
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		slogLevel = slog.LevelDebug
	case zerolog.WarnLevel:
		slogLevel = slog.LevelWarn
	case zerolog.ErrorLevel:
		slogLevel = slog.LevelError
	}

	if verbose {
		level = zerolog.DebugLevel
		slogLevel = slog.LevelDebug
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel}))
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slogLevel,
		TimeFormat: time.Kitchen,
	}))
}
