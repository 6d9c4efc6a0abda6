package settings

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestManager_Defaults(t *testing.T) {
	m := newTestManager(t)

	p := m.Preferences()
	if p.RenderWidth != defaultRenderWidth {
		t.Errorf("renderWidth = %d, want %d", p.RenderWidth, defaultRenderWidth)
	}
	if len(m.CredentialNames()) != 0 {
		t.Errorf("expected no credentials, got %v", m.CredentialNames())
	}
}

func TestManager_PreferencesPersist(t *testing.T) {
	m := newTestManager(t)
	sel := assistant.Selection{BackendID: "ibm", ModelID: "granite-8b", TaskID: "2"}
	if err := m.RememberSelection(sel); err != nil {
		t.Fatalf("RememberSelection failed: %v", err)
	}

	m2, err := NewManager(filepath.Dir(m.settingsPath))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	p := m2.Preferences()
	if p.BackendID != "ibm" || p.ModelID != "granite-8b" || p.TaskID != "2" {
		t.Errorf("preferences = %+v, want selection %+v", p, sel)
	}
}

func TestManager_CredentialsRoundTrip(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetCredentials("ibm-creds", assistant.AuthCreds{Email: "dev@example.com", Token: "s3cret"}); err != nil {
		t.Fatalf("SetCredentials failed: %v", err)
	}

	raw, err := os.ReadFile(m.settingsPath)
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if strings.Contains(string(raw), "s3cret") {
		t.Error("token stored in plaintext")
	}
	var sf SettingsFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		t.Fatalf("settings file is not valid JSON: %v", err)
	}
	if sf.KeyFingerprint != keyFingerprint(m.key) {
		t.Errorf("keyFingerprint = %q, want %q", sf.KeyFingerprint, keyFingerprint(m.key))
	}

	creds, err := m.GetCredentials("ibm-creds")
	if err != nil {
		t.Fatalf("GetCredentials failed: %v", err)
	}
	if creds.Email != "dev@example.com" || creds.Token != "s3cret" {
		t.Errorf("creds = %+v", creds)
	}

	if got := m.CredentialNames(); len(got) != 1 || got[0] != "ibm-creds" {
		t.Errorf("CredentialNames = %v", got)
	}

	if err := m.DeleteCredentials("ibm-creds"); err != nil {
		t.Fatalf("DeleteCredentials failed: %v", err)
	}
	if _, err := m.GetCredentials("ibm-creds"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if err := m.DeleteCredentials("ibm-creds"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials deleting twice, got %v", err)
	}
}

func TestManager_ResolveCreds(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetCredentials("creds", assistant.AuthCreds{Token: "tok"}); err != nil {
		t.Fatalf("SetCredentials failed: %v", err)
	}
	var resolver assistant.CredentialResolver = m

	creds, err := resolver.ResolveCreds(context.Background(), assistant.BackendDescriptor{ID: "open"})
	if err != nil || creds != nil {
		t.Errorf("no auth ref: got %v, %v; want nil, nil", creds, err)
	}

	creds, err = resolver.ResolveCreds(context.Background(), assistant.BackendDescriptor{
		ID:   "secured",
		Auth: &assistant.AuthRef{SecretName: "creds"},
	})
	if err != nil {
		t.Fatalf("ResolveCreds failed: %v", err)
	}
	if creds.Token != "tok" {
		t.Errorf("token = %q, want tok", creds.Token)
	}

	_, err = resolver.ResolveCreds(context.Background(), assistant.BackendDescriptor{
		ID:   "missing",
		Auth: &assistant.AuthRef{SecretName: "nope"},
	})
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestManager_CorruptFile(t *testing.T) {
	m := newTestManager(t)
	if err := os.WriteFile(m.settingsPath, []byte("{not json"), settingsFileMode); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); err == nil {
		t.Error("expected parse error")
	}
}
