// Package config handles configuration management for ideremote.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Host modes.
const (
	HostModeLocal  = "local"
	HostModeMemory = "memory"
)

// Approval modes.
const (
	ApprovalModePrompt = "prompt"
	ApprovalModeAuto   = "auto"
	ApprovalModeDeny   = "deny"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Host      HostConfig      `mapstructure:"host"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host              string   `mapstructure:"host"`
	Port              int      `mapstructure:"port"`
	ExternalURL       string   `mapstructure:"external_url"` // Optional: public URL, e.g. https://tunnel.devtunnels.ms
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	ShutdownTimeoutMS int      `mapstructure:"shutdown_timeout_ms"`
}

// SecurityConfig holds pairing and device approval settings.
type SecurityConfig struct {
	DataDir             string   `mapstructure:"data_dir"`
	ApprovalMode        string   `mapstructure:"approval_mode"`
	ApprovalTimeoutSecs int      `mapstructure:"approval_timeout_secs"`
	TrustedProxies      []string `mapstructure:"trusted_proxies"`
}

// StreamingConfig holds the broadcast loop settings.
type StreamingConfig struct {
	TerminalIntervalMS int `mapstructure:"terminal_interval_ms"`
	ProgressIntervalMS int `mapstructure:"progress_interval_ms"`
	SnapshotMaxLines   int `mapstructure:"snapshot_max_lines"`
}

// ProjectConfig is one project exposed by the local host.
type ProjectConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// HostConfig selects and configures the IDE host.
type HostConfig struct {
	Mode                    string          `mapstructure:"mode"`
	Shell                   string          `mapstructure:"shell"`
	Projects                []ProjectConfig `mapstructure:"projects"`
	BuildCommand            string          `mapstructure:"build_command"`
	RunConfigsFile          string          `mapstructure:"run_configs_file"`
	TerminalCreateTimeoutMS int             `mapstructure:"terminal_create_timeout_ms"`
	ScrollbackLines         int             `mapstructure:"scrollback_lines"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// ApprovalTimeout returns how long a device approval prompt may stay open.
func (c SecurityConfig) ApprovalTimeout() time.Duration {
	return time.Duration(c.ApprovalTimeoutSecs) * time.Second
}

func (c StreamingConfig) TerminalInterval() time.Duration {
	return time.Duration(c.TerminalIntervalMS) * time.Millisecond
}

func (c StreamingConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMS) * time.Millisecond
}

func (c HostConfig) TerminalCreateTimeout() time.Duration {
	return time.Duration(c.TerminalCreateTimeoutMS) * time.Millisecond
}

// Load loads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ideremote")
		v.AddConfigPath("/etc/ideremote")
	}

	// IDEREMOTE_SERVER_PORT overrides server.port, and so on.
	v.SetEnvPrefix("IDEREMOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8766)
	v.SetDefault("server.external_url", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout_ms", 5000)

	// Security defaults
	v.SetDefault("security.data_dir", "")
	v.SetDefault("security.approval_mode", ApprovalModePrompt)
	v.SetDefault("security.approval_timeout_secs", 120)
	v.SetDefault("security.trusted_proxies", []string{})

	// Streaming defaults
	v.SetDefault("streaming.terminal_interval_ms", 1000)
	v.SetDefault("streaming.progress_interval_ms", 1000)
	v.SetDefault("streaming.snapshot_max_lines", 1000)

	// Host defaults
	v.SetDefault("host.mode", HostModeLocal)
	v.SetDefault("host.shell", "")
	v.SetDefault("host.build_command", "")
	v.SetDefault("host.run_configs_file", "")
	v.SetDefault("host.terminal_create_timeout_ms", 10000)
	v.SetDefault("host.scrollback_lines", 2000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// postProcess resolves paths and normalizes enum values.
func postProcess(cfg *Config) error {
	cfg.Security.ApprovalMode = strings.ToLower(strings.TrimSpace(cfg.Security.ApprovalMode))
	cfg.Host.Mode = strings.ToLower(strings.TrimSpace(cfg.Host.Mode))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))

	if cfg.Security.DataDir == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve data directory: %w", err)
		}
		cfg.Security.DataDir = dir
	} else {
		dir, err := expandPath(cfg.Security.DataDir)
		if err != nil {
			return fmt.Errorf("invalid security.data_dir: %w", err)
		}
		cfg.Security.DataDir = dir
	}

	if cfg.Host.RunConfigsFile != "" {
		path, err := expandPath(cfg.Host.RunConfigsFile)
		if err != nil {
			return fmt.Errorf("invalid host.run_configs_file: %w", err)
		}
		cfg.Host.RunConfigsFile = path
	}

	for i := range cfg.Host.Projects {
		p := &cfg.Host.Projects[i]
		if p.Path == "" {
			continue
		}
		path, err := expandPath(p.Path)
		if err != nil {
			return fmt.Errorf("invalid path for project %q: %w", p.Name, err)
		}
		p.Path = path
		if p.Name == "" {
			p.Name = filepath.Base(path)
		}
	}

	return nil
}

// Normalize re-applies path resolution after values were changed in code,
// e.g. by command-line flags.
func Normalize(cfg *Config) error {
	return postProcess(cfg)
}

// expandPath expands a leading ~ and makes the path absolute.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".ideremote"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
