package buildinfo

import (
	"testing"
)

func TestBinaryVersionDefault(t *testing.T) {
	if BinaryVersion != "dev" {
		t.Errorf("Expected BinaryVersion to be 'dev', got '%s'", BinaryVersion)
	}
}

func TestVersionPrefersLdflags(t *testing.T) {
	orig := BinaryVersion
	t.Cleanup(func() { BinaryVersion = orig })

	BinaryVersion = "v1.4.0"
	if got := Version(); got != "v1.4.0" {
		t.Errorf("Version() = %q, expected v1.4.0", got)
	}
}

func TestVersionFallback(t *testing.T) {
	orig := BinaryVersion
	t.Cleanup(func() { BinaryVersion = orig })

	BinaryVersion = "dev"
	got := Version()
	if mv := ModuleVersion(); mv != "" {
		if got != mv {
			t.Errorf("Version() = %q, expected module version %q", got, mv)
		}
		return
	}
	if got != "dev" {
		t.Errorf("Version() = %q, expected dev", got)
	}
}
