package settings

// SettingsFile is the top-level structure for ~/.kc/assistant-settings.json
type SettingsFile struct {
	Version        int                        `json:"version"`
	LastModified   string                     `json:"lastModified"`
	Preferences    Preferences                `json:"preferences"`
	Credentials    map[string]*EncryptedField `json:"credentials,omitempty"`
	KeyFingerprint string                     `json:"keyFingerprint"`
}

// Preferences holds the user's non-sensitive assistant choices, restored
// when a new session starts.
type Preferences struct {
	BackendID   string `json:"backendId,omitempty"`
	ModelID     string `json:"modelId,omitempty"`
	TaskID      string `json:"taskId,omitempty"`
	RenderWidth int    `json:"renderWidth"`
	AppendYAML  bool   `json:"appendYaml"`
}

// EncryptedField holds AES-256-GCM encrypted data
type EncryptedField struct {
	Ciphertext string `json:"ciphertext"` // base64, includes the GCM tag
	IV         string `json:"iv"`         // base64 12-byte nonce
}

const (
	currentVersion     = 1
	defaultRenderWidth = 100
)

// DefaultSettings returns a settings file with default preferences
func DefaultSettings() *SettingsFile {
	return &SettingsFile{
		Version:     currentVersion,
		Preferences: Preferences{RenderWidth: defaultRenderWidth},
		Credentials: make(map[string]*EncryptedField),
	}
}
