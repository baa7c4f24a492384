package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if err := validateSecurity(&cfg.Security); err != nil {
		return err
	}

	if err := validateStreaming(&cfg.Streaming); err != nil {
		return err
	}

	if err := validateHost(&cfg.Host); err != nil {
		return err
	}

	return validateLogging(&cfg.Logging)
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	if cfg.ShutdownTimeoutMS < 0 {
		return fmt.Errorf("server.shutdown_timeout_ms cannot be negative")
	}

	if cfg.ExternalURL != "" {
		if err := validateExternalURL(cfg.ExternalURL, "server.external_url", []string{"http", "https"}); err != nil {
			return err
		}
	}

	for _, origin := range cfg.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("server.allowed_origins contains an empty value")
		}
	}

	return nil
}

// validateExternalURL validates that a URL is well-formed and uses an allowed scheme.
func validateExternalURL(rawURL, fieldName string, allowedSchemes []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}

	schemeValid := false
	for _, scheme := range allowedSchemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			schemeValid = true
			break
		}
	}
	if !schemeValid {
		return fmt.Errorf("%s must use one of these schemes: %s", fieldName, strings.Join(allowedSchemes, ", "))
	}

	return nil
}

func validateSecurity(cfg *SecurityConfig) error {
	switch cfg.ApprovalMode {
	case ApprovalModePrompt, ApprovalModeAuto, ApprovalModeDeny:
	default:
		return fmt.Errorf("security.approval_mode must be one of prompt, auto, deny (got %q)", cfg.ApprovalMode)
	}

	if cfg.ApprovalTimeoutSecs < 1 {
		return fmt.Errorf("security.approval_timeout_secs must be at least 1")
	}
	if cfg.ApprovalTimeoutSecs > 3600 {
		return fmt.Errorf("security.approval_timeout_secs cannot exceed 3600")
	}

	return validateTrustedProxies(cfg.TrustedProxies)
}

func validateTrustedProxies(trustedProxies []string) error {
	for _, proxy := range trustedProxies {
		trimmed := strings.TrimSpace(proxy)
		if trimmed == "" {
			return fmt.Errorf("security.trusted_proxies contains an empty value")
		}

		if net.ParseIP(trimmed) != nil {
			continue
		}

		if _, _, err := net.ParseCIDR(trimmed); err != nil {
			return fmt.Errorf("security.trusted_proxies has invalid CIDR/IP value: %s", trimmed)
		}
	}

	return nil
}

func validateStreaming(cfg *StreamingConfig) error {
	if cfg.TerminalIntervalMS < 50 {
		return fmt.Errorf("streaming.terminal_interval_ms must be at least 50")
	}
	if cfg.ProgressIntervalMS < 50 {
		return fmt.Errorf("streaming.progress_interval_ms must be at least 50")
	}
	if cfg.SnapshotMaxLines < 0 {
		return fmt.Errorf("streaming.snapshot_max_lines cannot be negative")
	}
	return nil
}

func validateHost(cfg *HostConfig) error {
	switch cfg.Mode {
	case HostModeLocal, HostModeMemory:
	default:
		return fmt.Errorf("host.mode must be local or memory (got %q)", cfg.Mode)
	}

	if cfg.TerminalCreateTimeoutMS < 100 {
		return fmt.Errorf("host.terminal_create_timeout_ms must be at least 100")
	}
	if cfg.ScrollbackLines < 0 {
		return fmt.Errorf("host.scrollback_lines cannot be negative")
	}

	seen := make(map[string]bool, len(cfg.Projects))
	for i, p := range cfg.Projects {
		if p.Path == "" {
			return fmt.Errorf("host.projects[%d].path cannot be empty", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("host.projects has duplicate name %q", p.Name)
		}
		seen[p.Name] = true

		if err := validateExistingDir(p.Path, fmt.Sprintf("host.projects[%d].path", i)); err != nil {
			return err
		}
	}

	return nil
}

func validateExistingDir(path, fieldName string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist: %s", fieldName, path)
		}
		return fmt.Errorf("unable to access %s (%s): %w", fieldName, path, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %s", fieldName, path)
	}

	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch cfg.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error (got %q)", cfg.Level)
	}
	switch cfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", cfg.Format)
	}
	return nil
}
