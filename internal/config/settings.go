package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/vaultops/warden/internal/observability"
)

// Settings holds the vault service credentials that can change while
// the process is running, e.g. when an operator rotates the API key.
// They live outside the main config file so rotation does not require
// a restart.
type Settings struct {
	ServiceURL string `yaml:"service_url"`
	APIKey     string `yaml:"api_key"`
}

// DefaultSettingsPath returns ~/.warden/settings.yaml.
func DefaultSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".warden", "settings.yaml"), nil
}

// SettingsStore reads and writes the settings file and can watch it for
// external edits, pushing updates to a callback.
type SettingsStore struct {
	path   string
	logger *observability.Logger

	mu      sync.RWMutex
	current Settings

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSettingsStore creates a store for the settings file at path.
func NewSettingsStore(path string, logger *observability.Logger) *SettingsStore {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &SettingsStore{path: path, logger: logger}
}

// Path returns the settings file location.
func (s *SettingsStore) Path() string {
	return s.path
}

// Load reads the settings file. A missing file is not an error; it
// returns zero settings so first-run setup can proceed.
func (s *SettingsStore) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	return settings, nil
}

// Save writes the settings file with owner-only permissions, creating
// the parent directory if needed.
func (s *SettingsStore) Save(settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	return nil
}

// Current returns the last loaded or saved settings.
func (s *SettingsStore) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch begins watching the settings file for external edits. onChange
// runs after each reload that produced different settings. The parent
// directory is watched rather than the file itself, since editors and
// atomic writers replace the inode.
func (s *SettingsStore) Watch(ctx context.Context, onChange func(Settings)) error {
	s.watchMu.Lock()
	if s.watcher != nil {
		s.watchMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.watchMu.Unlock()
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		s.watchMu.Unlock()
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}
	s.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.watchMu.Unlock()

	s.wg.Add(1)
	go s.watchLoop(watchCtx, watcher, onChange)
	return nil
}

// Close stops the watcher, if any.
func (s *SettingsStore) Close() error {
	s.watchMu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	watcher := s.watcher
	s.watcher = nil
	s.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *SettingsStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func(Settings)) {
	defer s.wg.Done()

	const debounce = 250 * time.Millisecond

	var timerMu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			s.reload(ctx, onChange)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn(ctx, "settings watch error", "error", err)
		}
	}
}

func (s *SettingsStore) reload(ctx context.Context, onChange func(Settings)) {
	previous := s.Current()
	settings, err := s.Load()
	if err != nil {
		s.logger.Warn(ctx, "settings reload failed", "error", err)
		return
	}
	if settings == previous {
		return
	}
	s.logger.Info(ctx, "settings reloaded", "path", s.path)
	if onChange != nil {
		onChange(settings)
	}
}
