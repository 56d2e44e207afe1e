package rconfig

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler is invoked with the freshly reloaded configuration
// whenever the watched file changes.
type ChangeHandler func(cfg *Config)

// Manager watches a single configuration file and reloads it on write,
// notifying registered handlers. It does not apply reloaded values to a
// running Reactor itself — that is the embedding application's job, since
// only it knows which knobs are safe to swap at runtime.
type Manager struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	current  *Config
	handlers []ChangeHandler

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager loads path once and prepares a watcher for subsequent
// changes; call Start to begin watching.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rconfig: create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		path:    path,
		logger:  logger,
		watcher: watcher,
		current: cfg,
		stopCh:  make(chan struct{}),
	}, nil
}

// Current returns the most recently loaded configuration.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a handler invoked (with the new config) after each
// successful reload.
func (m *Manager) OnChange(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Start begins watching the config file's directory (fsnotify watches
// directories, not bare files, so edits that replace the file via
// rename-into-place are still observed) and reloading on write/create
// events targeting path.
func (m *Manager) Start() error {
	dir := filepath.Dir(m.path)
	if err := m.watcher.Add(dir); err != nil {
		return fmt.Errorf("rconfig: watch %s: %w", dir, err)
	}
	go m.watchLoop()
	return nil
}

// Stop releases the underlying file watcher. Idempotent.
func (m *Manager) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stopCh)
		err = m.watcher.Close()
	})
	return err
}

func (m *Manager) watchLoop() {
	target := filepath.Clean(m.path)
	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m.reload()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) reload() {
	cfg, err := LoadFile(m.path)
	if err != nil {
		m.logger.Error("failed to reload config", zap.String("path", m.path), zap.Error(err))
		return
	}

	m.mu.Lock()
	m.current = cfg
	handlers := make([]ChangeHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.logger.Info("configuration reloaded", zap.String("path", m.path))
	for _, h := range handlers {
		h(cfg)
	}
}
