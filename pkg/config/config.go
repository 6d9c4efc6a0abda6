package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

const (
	configDirName  = ".kc"
	configFileName = "assistant.yaml"
	configFileMode = 0600 // Owner read/write only
	configDirMode  = 0700 // Owner read/write/execute only

	DefaultPort   = 8080
	defaultDBName = "assistant.db"

	reloadDebounce = 300 * time.Millisecond
)

// Source selects where the assistant host configuration comes from
type Source string

const (
	// SourceCluster reads the Assistant custom resource
	SourceCluster Source = "cluster"
	// SourceFile reads the assistant section of the config file
	SourceFile Source = "file"
)

// Config is the local service configuration stored in ~/.kc/assistant.yaml
type Config struct {
	Port         int    `yaml:"port,omitempty"`
	DatabasePath string `yaml:"databasePath,omitempty"`
	JWTSecret    string `yaml:"jwtSecret,omitempty"`
	FrontendURL  string `yaml:"frontendURL,omitempty"`
	Kubeconfig   string `yaml:"kubeconfig,omitempty"`
	Context      string `yaml:"context,omitempty"`
	Source       Source `yaml:"source,omitempty"`

	Assistant assistant.HostConfig `yaml:"assistant"`
}

// Manager handles reading, writing and watching the config file
type Manager struct {
	mu         sync.RWMutex
	configPath string
	config     *Config

	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
}

// DefaultPath returns $ASSISTANT_CONFIG or ~/.kc/assistant.yaml
func DefaultPath() string {
	if p := os.Getenv("ASSISTANT_CONFIG"); p != "" {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, configDirName, configFileName)
}

// NewManager creates a manager for the config file at path and loads it
func NewManager(path string) (*Manager, error) {
	if path == "" {
		path = DefaultPath()
	}
	m := &Manager{configPath: path, config: &Config{}}
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the config file location
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the config from disk. A missing file is not an error.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.mu.Lock()
			m.config = &Config{}
			m.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Save writes the config to disk with secure permissions
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), configDirMode); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, configFileMode); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns the effective config: file values overridden by environment
// variables, with defaults filled in.
func (m *Manager) Get() Config {
	m.mu.RLock()
	cfg := *m.config
	m.mu.RUnlock()

	cfg.Assistant.Backends = append([]assistant.BackendDescriptor(nil), cfg.Assistant.Backends...)
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg
}

// SetHostConfig replaces the assistant section and saves the file
func (m *Manager) SetHostConfig(hc assistant.HostConfig) error {
	m.mu.Lock()
	m.config.Assistant = hc
	m.mu.Unlock()
	return m.Save()
}

// AddBackend adds or replaces a backend descriptor and saves the file
func (m *Manager) AddBackend(desc assistant.BackendDescriptor) error {
	m.mu.Lock()
	replaced := false
	for i, b := range m.config.Assistant.Backends {
		if b.ID == desc.ID {
			m.config.Assistant.Backends[i] = desc
			replaced = true
			break
		}
	}
	if !replaced {
		m.config.Assistant.Backends = append(m.config.Assistant.Backends, desc)
	}
	m.mu.Unlock()
	return m.Save()
}

// RemoveBackend removes a backend descriptor and saves the file
func (m *Manager) RemoveBackend(id string) error {
	m.mu.Lock()
	backends := m.config.Assistant.Backends[:0:0]
	for _, b := range m.config.Assistant.Backends {
		if b.ID != id {
			backends = append(backends, b)
		}
	}
	m.config.Assistant.Backends = backends
	m.mu.Unlock()
	return m.Save()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		} else {
			log.Printf("[config] ignoring invalid PORT %q", v)
		}
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.FrontendURL = v
	}
	if v := os.Getenv("KUBECONFIG"); v != "" {
		cfg.Kubeconfig = v
	}
	if v := os.Getenv("ASSISTANT_SOURCE"); v != "" {
		cfg.Source = Source(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DatabasePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		cfg.DatabasePath = filepath.Join(homeDir, configDirName, defaultDBName)
	}
	if cfg.Source != SourceFile {
		cfg.Source = SourceCluster
	}
}

// Watch reloads the file whenever it changes and calls onChange with the
// new effective config. Parse errors are logged and the old config is kept.
func (m *Manager) Watch(onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// watch the directory so atomic saves and late file creation are seen
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, configDirMode); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	m.watcher = watcher
	m.stopWatch = make(chan struct{})
	go m.watchLoop(watcher, m.stopWatch, onChange)
	log.Printf("[config] Watching %s for changes", m.configPath)
	return nil
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}, onChange func(Config)) {
	var debounceTimer *time.Timer
	reload := func() {
		if err := m.Load(); err != nil {
			log.Printf("[config] reload failed: %v", err)
			return
		}
		log.Printf("[config] reloaded %s", m.configPath)
		if onChange != nil {
			onChange(m.Get())
		}
	}

	for {
		select {
		case <-stop:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(m.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		}
	}
}

// StopWatching stops watching the config file
func (m *Manager) StopWatching() {
	if m.stopWatch != nil {
		close(m.stopWatch)
		m.stopWatch = nil
	}
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
}
