package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "key")
	if err := os.WriteFile(file, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	t.Setenv("CVTAILOR_TEST_KEY", " from-env ")

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{name: "inline", src: Source{Value: " inline "}, expect: "inline"},
		{name: "env over inline", src: Source{Env: "CVTAILOR_TEST_KEY", Value: "inline"}, expect: "from-env"},
		{name: "file over env", src: Source{File: file, Env: "CVTAILOR_TEST_KEY"}, expect: "from-file"},
		{name: "unset env falls back to inline", src: Source{Env: "CVTAILOR_TEST_UNSET", Value: "inline"}, expect: "inline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestLoadNotConfigured(t *testing.T) {
	_, err := Load(Source{Name: "gemini api key", Env: "CVTAILOR_TEST_UNSET"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err.Error() != "gemini api key is not configured" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestLoadAllSkipsMissingAndDuplicates(t *testing.T) {
	t.Setenv("CVTAILOR_KEY_A", "aaa")
	t.Setenv("CVTAILOR_KEY_B", "aaa")
	t.Setenv("CVTAILOR_KEY_C", "ccc")

	creds, err := LoadAll(FromEnv("CVTAILOR_KEY_A", "CVTAILOR_KEY_MISSING", "CVTAILOR_KEY_B", "CVTAILOR_KEY_C"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(creds) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(creds))
	}
	if creds[0].Label != "env:CVTAILOR_KEY_A" || creds[1].Label != "env:CVTAILOR_KEY_C" {
		t.Fatalf("unexpected labels: %+v", creds)
	}
}

func TestLoadAllReportsUnreadableFiles(t *testing.T) {
	creds, err := LoadAll([]Source{
		{File: filepath.Join(t.TempDir(), "missing")},
		{Value: "inline"},
	})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(creds) != 1 || creds[0].Value != "inline" {
		t.Fatalf("expected the inline credential to survive, got %+v", creds)
	}
}
