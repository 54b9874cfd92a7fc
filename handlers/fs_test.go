package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zhubert/acp-core/protocol"
)

func TestReadTextFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello\nworld\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewFS(dir)
	result, errObj := fs.HandleReadTextFile(map[string]any{"path": "notes.txt"})
	if errObj != nil {
		t.Fatalf("error: %v", errObj)
	}
	if got := result.(map[string]any)["content"]; got != "hello\nworld\n" {
		t.Errorf("content = %q", got)
	}
}

func TestReadTextFileWindowing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lines.txt"), []byte("a\nb\nc\nd\ne"), 0644); err != nil {
		t.Fatal(err)
	}
	fs := NewFS(dir)

	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"from line", map[string]any{"path": "lines.txt", "line": float64(3)}, "c\nd\ne"},
		{"line and limit", map[string]any{"path": "lines.txt", "line": float64(2), "limit": float64(2)}, "b\nc"},
		{"limit only", map[string]any{"path": "lines.txt", "limit": float64(1)}, "a"},
		{"line past end", map[string]any{"path": "lines.txt", "line": float64(99)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, errObj := fs.HandleReadTextFile(tt.params)
			if errObj != nil {
				t.Fatalf("error: %v", errObj)
			}
			if got := result.(map[string]any)["content"]; got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadTextFileNotFound(t *testing.T) {
	fs := NewFS(t.TempDir())
	_, errObj := fs.HandleReadTextFile(map[string]any{"path": "missing.txt"})
	if errObj == nil || errObj.Code != protocol.CodeFileNotFound {
		t.Errorf("errObj = %v, want file-not-found", errObj)
	}
}

func TestReadTextFileEscapeRejected(t *testing.T) {
	fs := NewFS(t.TempDir())
	for _, path := range []string{"../outside.txt", "a/../../etc/passwd", "/etc/passwd"} {
		_, errObj := fs.HandleReadTextFile(map[string]any{"path": path})
		if errObj == nil || errObj.Code != protocol.CodePermissionDenied {
			t.Errorf("path %q: errObj = %v, want permission denied", path, errObj)
		}
	}
}

func TestWriteTextFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	fs := NewFS(dir)

	_, errObj := fs.HandleWriteTextFile(map[string]any{
		"path":    "deep/nested/out.txt",
		"content": "written",
	})
	if errObj != nil {
		t.Fatalf("error: %v", errObj)
	}

	data, err := os.ReadFile(filepath.Join(dir, "deep", "nested", "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "written" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteTextFileEscapeRejected(t *testing.T) {
	fs := NewFS(t.TempDir())
	_, errObj := fs.HandleWriteTextFile(map[string]any{
		"path":    "../escape.txt",
		"content": "nope",
	})
	if errObj == nil || errObj.Code != protocol.CodePermissionDenied {
		t.Errorf("errObj = %v, want permission denied", errObj)
	}
}

func TestFSMissingParams(t *testing.T) {
	fs := NewFS(t.TempDir())

	if _, errObj := fs.HandleReadTextFile(map[string]any{}); errObj == nil || errObj.Code != protocol.CodeInvalidParams {
		t.Errorf("read without path: %v", errObj)
	}
	if _, errObj := fs.HandleWriteTextFile(map[string]any{"path": "x.txt"}); errObj == nil || errObj.Code != protocol.CodeInvalidParams {
		t.Errorf("write without content: %v", errObj)
	}
}
