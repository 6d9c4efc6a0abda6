package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

const (
	settingsDirName  = ".kc"
	settingsFileName = "assistant-settings.json"
	keyFileName      = ".assistant-keyfile"
	settingsFileMode = 0600
	settingsDirMode  = 0700
)

// ErrNoCredentials is returned when no credentials are stored under a name
var ErrNoCredentials = errors.New("no stored credentials")

// Manager handles the local settings file: plaintext preferences and
// encrypted backend credentials for running outside a cluster.
type Manager struct {
	mu           sync.RWMutex
	settingsPath string
	keyPath      string
	key          []byte
	settings     *SettingsFile
}

// DefaultDir returns ~/.kc
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, settingsDirName)
}

// NewManager opens the settings stored in dir, creating the key on first use
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	m := &Manager{
		settingsPath: filepath.Join(dir, settingsFileName),
		keyPath:      filepath.Join(dir, keyFileName),
	}
	if err := m.init(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) init() error {
	if err := os.MkdirAll(filepath.Dir(m.settingsPath), settingsDirMode); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	key, err := ensureKeyFile(m.keyPath)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption key: %w", err)
	}
	m.key = key

	return m.Load()
}

// Load reads the settings file from disk
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.settings = DefaultSettings()
			return nil
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}

	var sf SettingsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	if sf.Credentials == nil {
		sf.Credentials = make(map[string]*EncryptedField)
	}
	if sf.Preferences.RenderWidth <= 0 {
		sf.Preferences.RenderWidth = defaultRenderWidth
	}
	if sf.KeyFingerprint != "" && sf.KeyFingerprint != keyFingerprint(m.key) {
		log.Printf("[settings] key fingerprint mismatch; stored credentials cannot be decrypted")
	}

	m.settings = &sf
	return nil
}

func (m *Manager) saveLocked() error {
	m.settings.LastModified = time.Now().UTC().Format(time.RFC3339)
	m.settings.KeyFingerprint = keyFingerprint(m.key)

	data, err := json.MarshalIndent(m.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(m.settingsPath, data, settingsFileMode); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Preferences returns the stored preferences
func (m *Manager) Preferences() Preferences {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.Preferences
}

// SetPreferences replaces the stored preferences
func (m *Manager) SetPreferences(p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.RenderWidth <= 0 {
		p.RenderWidth = defaultRenderWidth
	}
	m.settings.Preferences = p
	return m.saveLocked()
}

// RememberSelection stores the selection so the next session starts from it
func (m *Manager) RememberSelection(sel assistant.Selection) error {
	p := m.Preferences()
	p.BackendID, p.ModelID, p.TaskID = sel.BackendID, sel.ModelID, sel.TaskID
	return m.SetPreferences(p)
}

// SetCredentials encrypts and stores credentials under a secret name
func (m *Manager) SetCredentials(name string, creds assistant.AuthCreds) error {
	data, err := json.Marshal(storedCreds{Email: creds.Email, Token: creds.Token})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	enc, err := encrypt(m.key, data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	m.settings.Credentials[name] = enc
	return m.saveLocked()
}

// storedCreds carries the token, which AuthCreds never serializes
type storedCreds struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// GetCredentials decrypts the credentials stored under a secret name
func (m *Manager) GetCredentials(name string) (*assistant.AuthCreds, error) {
	m.mu.RLock()
	field, ok := m.settings.Credentials[name]
	key := m.key
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrNoCredentials, name)
	}

	plaintext, err := decrypt(key, field)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials %q: %w", name, err)
	}
	var sc storedCreds
	if err := json.Unmarshal(plaintext, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %q: %w", name, err)
	}
	return &assistant.AuthCreds{Email: sc.Email, Token: sc.Token}, nil
}

// DeleteCredentials removes stored credentials
func (m *Manager) DeleteCredentials(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings.Credentials[name]; !ok {
		return fmt.Errorf("%w for %q", ErrNoCredentials, name)
	}
	delete(m.settings.Credentials, name)
	return m.saveLocked()
}

// CredentialNames lists the stored credential names in order
func (m *Manager) CredentialNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.settings.Credentials))
	for name := range m.settings.Credentials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveCreds looks up a backend's auth secret name in the local store
func (m *Manager) ResolveCreds(_ context.Context, desc assistant.BackendDescriptor) (*assistant.AuthCreds, error) {
	if desc.Auth == nil || desc.Auth.SecretName == "" {
		return nil, nil
	}
	return m.GetCredentials(desc.Auth.SecretName)
}
