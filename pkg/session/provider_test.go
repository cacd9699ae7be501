package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewProvider_VersionGate(t *testing.T) {
	tests := []struct {
		name       string
		profile    *Profile
		constraint string
		wantConn   bool
		wantErr    bool
	}{
		{"nil profile yields no session", nil, "^1.0.0", false, false},
		{"compatible version", &Profile{BaseURL: "https://api.example.com", APIVersion: "1.4.2"}, "^1.0.0", true, false},
		{"incompatible version disables session", &Profile{BaseURL: "https://api.example.com", APIVersion: "2.0.0"}, "^1.0.0", false, false},
		{"empty constraint disables gate", &Profile{BaseURL: "https://api.example.com", APIVersion: "9.9.9"}, "", true, false},
		{"missing apiVersion skips gate", &Profile{BaseURL: "https://api.example.com"}, "^1.0.0", true, false},
		{"invalid constraint", &Profile{BaseURL: "https://api.example.com", APIVersion: "1.0.0"}, "not-a-constraint", false, true},
		{"invalid version", &Profile{BaseURL: "https://api.example.com", APIVersion: "not-a-version"}, "^1.0.0", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.profile, tt.constraint)
			if tt.wantErr {
				if err == nil {
					t.Fatal("session:provider_test - expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("session:provider_test - unexpected error: %v", err)
			}
			if got := p.CurrentConnection() != nil; got != tt.wantConn {
				t.Errorf("session:provider_test - connection presence = %v, want %v", got, tt.wantConn)
			}
		})
	}
}

func TestLoadProfile_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")
	content := `{"name":"staging","baseUrl":"https://hooks.example.com","authToken":"tok","apiVersion":"1.2.0"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("session:loader_test - write profile: %v", err)
	}

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("session:loader_test - LoadProfile failed: %v", err)
	}
	if profile == nil || profile.BaseURL != "https://hooks.example.com" {
		t.Fatalf("session:loader_test - unexpected profile %+v", profile)
	}
	if profile.APIVersion != "1.2.0" {
		t.Errorf("session:loader_test - unexpected apiVersion %q", profile.APIVersion)
	}
}

func TestLoadProfile_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("RELAY_ENDPOINT_URL", "https://env.example.com")
	t.Setenv("RELAY_AUTH_TOKEN", "env-token")
	t.Setenv("RELAY_API_VERSION", "1.0.0")

	profile, err := LoadProfile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("session:loader_test - LoadProfile failed: %v", err)
	}
	if profile == nil || profile.BaseURL != "https://env.example.com" {
		t.Fatalf("session:loader_test - expected env profile, got %+v", profile)
	}
}

func TestLoadProfile_NoneConfigured(t *testing.T) {
	t.Setenv("RELAY_ENDPOINT_URL", "")
	t.Setenv("RELAY_PROFILE_FILE", "")

	profile, err := LoadProfile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("session:loader_test - LoadProfile failed: %v", err)
	}
	if profile != nil {
		t.Fatalf("session:loader_test - expected nil profile, got %+v", profile)
	}
}
