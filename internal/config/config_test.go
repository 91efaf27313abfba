package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProcess_Defaults(t *testing.T) {
	s, err := Process()
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if s.RefreshInterval != 60*time.Second {
		t.Errorf("RefreshInterval = %s, want 60s", s.RefreshInterval)
	}
	if s.TreeMaxDepth != 64 {
		t.Errorf("TreeMaxDepth = %d, want 64", s.TreeMaxDepth)
	}
}

func TestProcess_Overrides(t *testing.T) {
	t.Setenv("FTPGATE_FTP_HOST", "ftp.internal")
	t.Setenv("FTPGATE_FTP_PORT", "2121")
	t.Setenv("FTPGATE_REFRESH_INTERVAL", "15s")

	s, err := Process()
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	profiles, err := s.Profiles()
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	if profiles[0].Host != "ftp.internal" || profiles[0].Port != 2121 {
		t.Errorf("unexpected profile %+v", profiles[0])
	}
	if s.RefreshInterval != 15*time.Second {
		t.Errorf("RefreshInterval = %s, want 15s", s.RefreshInterval)
	}
}

func TestProcess_RejectsZeroInterval(t *testing.T) {
	t.Setenv("FTPGATE_REFRESH_INTERVAL", "0s")
	if _, err := Process(); err == nil {
		t.Fatal("expected error for zero refresh interval")
	}
}

func TestParseProfiles(t *testing.T) {
	doc := []byte(`
ftp:
  connections:
    - host: primary.example
      user: scanner
      password: secret
      timeout: 10s
    - name: standby
      host: standby.example
      port: 2121
`)
	profiles, err := ParseProfiles(doc)
	if err != nil {
		t.Fatalf("ParseProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	first := profiles[0]
	if first.Port != 21 {
		t.Errorf("default port = %d, want 21", first.Port)
	}
	if first.Name != "connection-0" {
		t.Errorf("default name = %q", first.Name)
	}
	if first.Timeout != 10*time.Second {
		t.Errorf("timeout = %s", first.Timeout)
	}
	if profiles[1].Name != "standby" || profiles[1].User != "anonymous" {
		t.Errorf("unexpected standby profile %+v", profiles[1])
	}
}

func TestParseProfiles_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "ftp:\n  connections: []\n"},
		{"missing host", "ftp:\n  connections:\n    - user: x\n"},
		{"invalid yaml", "ftp: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProfiles([]byte(tt.doc)); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestSettingsProfiles_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := "ftp:\n  connections:\n    - host: filehost\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write profiles: %v", err)
	}

	s := Settings{ProfilesFile: path, FTPHost: "ignored"}
	profiles, err := s.Profiles()
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if profiles[0].Host != "filehost" {
		t.Errorf("host = %q, want filehost", profiles[0].Host)
	}
}

func TestSettingsProfiles_FileTimeoutDefaultsToOpTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := "ftp:\n  connections:\n    - host: a\n    - host: b\n      timeout: 3s\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write profiles: %v", err)
	}

	s := Settings{ProfilesFile: path, OpTimeout: 45 * time.Second}
	profiles, err := s.Profiles()
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Timeout != 45*time.Second {
		t.Errorf("profile without timeout = %s, want 45s", profiles[0].Timeout)
	}
	if profiles[1].Timeout != 3*time.Second {
		t.Errorf("explicit timeout = %s, want 3s", profiles[1].Timeout)
	}
}
