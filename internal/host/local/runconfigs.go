package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// reloadDebounce is the quiet period before a changed file is reloaded.
const reloadDebounce = 200 * time.Millisecond

const defaultRunType = "shell"

// runConfigFile is the on-disk layout:
//
//	configurations:
//	  - id: app
//	    name: App
//	    command: go run ./cmd/app
type runConfigFile struct {
	Configurations []ports.RunConfiguration `yaml:"configurations" json:"configurations"`
}

// ParseRunConfigurations decodes a run configuration file. Files ending in
// .json or .jsonc are read as JSON with comments; anything else as YAML.
func ParseRunConfigurations(name string, data []byte) ([]ports.RunConfiguration, error) {
	var file runConfigFile
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}

	seen := make(map[string]bool, len(file.Configurations))
	out := make([]ports.RunConfiguration, 0, len(file.Configurations))
	for i, c := range file.Configurations {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("configurations[%d].id", i), "is required")
		}
		if seen[c.ID] {
			return nil, domain.NewValidationError(fmt.Sprintf("configurations[%d].id", i), "duplicate id "+c.ID)
		}
		seen[c.ID] = true
		if strings.TrimSpace(c.Command) == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("configurations[%d].command", i), "is required")
		}
		if c.Name == "" {
			c.Name = c.ID
		}
		if c.Type == "" {
			c.Type = defaultRunType
		}
		out = append(out, c)
	}
	return out, nil
}

// RunConfigStore holds the run configurations of one file and reloads them
// when the file changes. It implements ports.FileWatcher.
type RunConfigStore struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	configs   []ports.RunConfiguration
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	running   bool
	cancel    context.CancelFunc
	onReload  func([]ports.RunConfiguration)
}

var _ ports.FileWatcher = (*RunConfigStore)(nil)

// NewRunConfigStore creates a store for path. Nothing is read until Load.
func NewRunConfigStore(path string, logger *slog.Logger) *RunConfigStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunConfigStore{path: path, logger: logger}
}

// OnReload registers fn to run after each successful reload.
func (s *RunConfigStore) OnReload(fn func([]ports.RunConfiguration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = fn
}

// Load reads the file. A missing file yields an empty list.
func (s *RunConfigStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.set(nil)
		s.logger.Debug("Run configuration file not found", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read run configurations: %w", err)
	}

	configs, err := ParseRunConfigurations(s.path, data)
	if err != nil {
		return err
	}
	s.set(configs)
	s.logger.Info("Run configurations loaded", "path", s.path, "count", len(configs))
	return nil
}

func (s *RunConfigStore) set(configs []ports.RunConfiguration) {
	s.mu.Lock()
	s.configs = configs
	fn := s.onReload
	s.mu.Unlock()
	if fn != nil {
		fn(append([]ports.RunConfiguration(nil), configs...))
	}
}

// List returns a copy of the current configurations.
func (s *RunConfigStore) List() []ports.RunConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.RunConfiguration(nil), s.configs...)
}

// Start watches the file's directory, so editors that replace the file on
// save are seen too.
func (s *RunConfigStore) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		s.mu.Unlock()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watcher = w
	s.cancel = cancel
	s.debouncer = NewDebouncer(reloadDebounce, func(string) { s.reload() })
	s.running = true
	s.mu.Unlock()

	go s.eventLoop(watchCtx, w)

	s.logger.Info("Watching run configurations", "path", s.path)
	return nil
}

func (s *RunConfigStore) eventLoop(ctx context.Context, w *fsnotify.Watcher) {
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.mu.RLock()
			d := s.debouncer
			s.mu.RUnlock()
			if d != nil {
				d.Add(ev.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Run configuration watcher error", "error", err)
		}
	}
}

// reload keeps the previous list when the new file does not parse.
func (s *RunConfigStore) reload() {
	if err := s.Load(); err != nil {
		s.logger.Warn("Keeping previous run configurations", "path", s.path, "error", err)
	}
}

// Stop ends watching.
func (s *RunConfigStore) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	s.debouncer.Stop()
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// IsRunning reports whether the file is being watched.
func (s *RunConfigStore) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
