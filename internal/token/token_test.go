package token

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeToken(t *testing.T, content string, perm os.FileMode) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.token")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write token file: %v", err)
	}
	return NewStore(path)
}

func TestLoad_TrimsWhitespace(t *testing.T) {
	store := writeToken(t, "my-secret-token\n", 0600)

	tok, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if tok != "my-secret-token" {
		t.Errorf("Expected trimmed token, got %q", tok)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.token"))
	if _, err := store.Load(); err == nil {
		t.Error("Expected error for missing token file")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	store := writeToken(t, "\n", 0600)
	if _, err := store.Load(); err == nil {
		t.Error("Expected error for empty token file")
	}
}

func TestVerify(t *testing.T) {
	store := writeToken(t, "correct-token\n", 0600)

	if err := store.Verify("correct-token"); err != nil {
		t.Errorf("Expected matching token to verify: %v", err)
	}

	err := store.Verify("wrong-token")
	if !errors.Is(err, ErrMismatch) {
		t.Errorf("Expected ErrMismatch, got %v", err)
	}

	err = store.Verify("")
	if !errors.Is(err, ErrMismatch) {
		t.Errorf("Expected ErrMismatch for empty credential, got %v", err)
	}
}

func TestVerify_MissingFileIsNotMismatch(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.token"))

	err := store.Verify("anything")
	if err == nil {
		t.Fatal("Expected error for missing token file")
	}
	if errors.Is(err, ErrMismatch) {
		t.Error("Missing token file should be a configuration error, not a mismatch")
	}
}

func TestCheck_Permissions(t *testing.T) {
	store := writeToken(t, "secret\n", 0600)
	if err := store.Check(); err != nil {
		t.Errorf("Expected 0600 token file to pass: %v", err)
	}

	loose := writeToken(t, "secret\n", 0644)
	if err := loose.Check(); err == nil {
		t.Error("Expected world-readable token file to fail check")
	}
}

func TestLoad_NotCachedAcrossCalls(t *testing.T) {
	store := writeToken(t, "first\n", 0600)

	if err := store.Verify("first"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if err := os.WriteFile(store.Path(), []byte("second\n"), 0600); err != nil {
		t.Fatalf("Failed to rotate token: %v", err)
	}

	if err := store.Verify("second"); err != nil {
		t.Errorf("Rotated token should verify without restart: %v", err)
	}
	if err := store.Verify("first"); !errors.Is(err, ErrMismatch) {
		t.Errorf("Old token should no longer verify, got %v", err)
	}
}
