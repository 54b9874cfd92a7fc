package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestXDGLayout(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	Reset()
	t.Cleanup(Reset)

	configDir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "cfg", "acp"); configDir != want {
		t.Errorf("ConfigDir() = %q, want %q", configDir, want)
	}

	logs, err := LogsDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "state", "acp", "logs"); logs != want {
		t.Errorf("LogsDir() = %q, want %q", logs, want)
	}

	if IsLegacyLayout() {
		t.Error("IsLegacyLayout() = true with XDG vars set")
	}
}

func TestLegacyLayoutWins(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "cfg"))
	t.Setenv("XDG_STATE_HOME", "")
	if err := os.MkdirAll(filepath.Join(home, ".acp"), 0755); err != nil {
		t.Fatal(err)
	}
	Reset()
	t.Cleanup(Reset)

	configDir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, ".acp"); configDir != want {
		t.Errorf("ConfigDir() = %q, want %q", configDir, want)
	}
	if !IsLegacyLayout() {
		t.Error("existing ~/.acp must select the legacy layout")
	}
}

func TestFreshInstallDefaultsToLegacy(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	Reset()
	t.Cleanup(Reset)

	path, err := ConfigFilePath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, ".acp", "acp.yaml"); path != want {
		t.Errorf("ConfigFilePath() = %q, want %q", path, want)
	}
}

func TestResolveWithin(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"simple relative", "file.txt", false},
		{"nested relative", "a/b/c.txt", false},
		{"dot slash", "./ok.txt", false},
		{"inner traversal", "a/../b.txt", false},
		{"absolute inside", filepath.Join(base, "in.txt"), false},
		{"parent escape", "../escape.txt", true},
		{"deep escape", "a/../../etc/passwd", true},
		{"absolute outside", "/etc/passwd", true},
		{"empty", "", true},
		{"whitespace", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(base, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ResolveWithin(%q) = %q, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWithin(%q) failed: %v", tt.raw, err)
			}
			if !strings.HasPrefix(got, base) {
				t.Errorf("resolved path %q is not under base %q", got, base)
			}
		})
	}
}
