package safeio

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestReadFileContained(t *testing.T) {
	base := t.TempDir()
	inside := filepath.Join(base, "pages", "index.html")
	if err := os.MkdirAll(filepath.Dir(inside), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(inside, []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := ReadFileContained(base, inside)
	if err != nil {
		t.Fatalf("ReadFileContained() error = %v", err)
	}
	if string(data) != "<html></html>" {
		t.Errorf("ReadFileContained() = %q", data)
	}

	outside := filepath.Join(base, "..", "escape.html")
	if _, err := ReadFileContained(base, outside); !errors.Is(err, ErrOutsideBase) {
		t.Errorf("expected ErrOutsideBase, got %v", err)
	}
}

func TestWriteFilePreservePerms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")

	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFilePreservePerms(path, []byte("new content")); err != nil {
		t.Fatalf("WriteFilePreservePerms() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "new content" {
		t.Errorf("content = %q, expected %q", data, "new content")
	}

	if runtime.GOOS != "windows" {
		st, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if st.Mode().Perm() != 0o600 {
			t.Errorf("mode = %v, expected 0600", st.Mode().Perm())
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestWriteFilePreservePermsNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_redirects")
	if err := WriteFilePreservePerms(path, []byte("/a /b 302\n")); err != nil {
		t.Fatalf("WriteFilePreservePerms() error = %v", err)
	}
	if runtime.GOOS == "windows" {
		return
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, expected 0644", st.Mode().Perm())
	}
}
