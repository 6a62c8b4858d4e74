// Package token loads and verifies authentication secrets stored in local
// files. Two secrets exist per application: the deployment token presented by
// inbound webhook callers and the API token used for outbound calls to the CI
// provider.
package token

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"os"
	"strings"

	"shipyard/internal/security"
)

// ErrMismatch is returned when a presented credential does not match the
// on-disk secret. Callers must not reveal to the remote party whether the
// credential was missing or wrong.
var ErrMismatch = errors.New("token mismatch")

// Store reads a single-line secret from a local file. The file is read on
// every call, never cached, so a rotated secret takes effect without a
// restart.
type Store struct {
	path string
}

// NewStore creates a store for the secret file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the secret file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the secret from disk. A missing or empty file is a configuration
// error, not an empty credential.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}

	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("token file %s is empty", s.path)
	}

	return tok, nil
}

// Verify compares a presented credential against the on-disk secret in
// constant time. Returns ErrMismatch when they differ; any other error means
// the secret could not be read.
func (s *Store) Verify(presented string) error {
	expected, err := s.Load()
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(expected), []byte(presented)) {
		return ErrMismatch
	}

	return nil
}

// Check validates the token file at startup: it must exist, be readable and
// not be accessible to other users.
func (s *Store) Check() error {
	if _, err := s.Load(); err != nil {
		return err
	}
	if err := security.ValidateSecurePermissions(s.path); err != nil {
		return err
	}
	return nil
}
