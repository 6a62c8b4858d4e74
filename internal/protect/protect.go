// Package protect captures and replays host-local files that must survive a
// deployment: credentials, token caches and other state the build artifact
// knows nothing about.
package protect

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shipyard/internal/security"
)

// Set resolves a configured list of path patterns against an application
// directory. Patterns are either literal relative paths or globs containing
// wildcard characters; the set is fixed for the process lifetime.
//
// Captured contents are held in memory, which is adequate while protected
// files stay small (credentials, tokens). An implementation streaming large
// files to a side location could replace this one without changing the
// Capture/Restore contract.
type Set struct {
	patterns []string
	logger   *slog.Logger
}

// NewSet creates a protected file set for the given patterns.
func NewSet(patterns []string, logger *slog.Logger) *Set {
	return &Set{
		patterns: patterns,
		logger:   logger,
	}
}

// Patterns returns the configured patterns.
func (s *Set) Patterns() []string {
	return s.patterns
}

// Capture reads every protected file that currently exists under root and
// returns the contents keyed by path relative to root. Absent files are
// silently skipped: a first deployment has no .env yet. Read errors on
// individual files are logged and do not abort the pass.
func (s *Set) Capture(root string) (map[string][]byte, error) {
	captured := make(map[string][]byte)

	for _, pattern := range s.patterns {
		for _, path := range s.expand(root, pattern) {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				s.logger.Warn("skipping protected path outside root", "path", path, "error", err)
				continue
			}
			if err := security.ValidateRelativePath(rel); err != nil {
				s.logger.Warn("skipping unsafe protected path", "path", rel, "error", err)
				continue
			}

			info, err := os.Lstat(path)
			if err != nil {
				if !os.IsNotExist(err) {
					s.logger.Warn("failed to stat protected file", "path", rel, "error", err)
				}
				continue
			}
			if !info.Mode().IsRegular() {
				continue
			}

			content, err := os.ReadFile(path)
			if err != nil {
				s.logger.Warn("failed to read protected file", "path", rel, "error", err)
				continue
			}

			captured[rel] = content
			s.logger.Debug("captured protected file", "path", rel, "bytes", len(content))
		}
	}

	return captured, nil
}

// Restore writes every captured file back under root, creating parent
// directories as needed and overwriting anything the new artifact placed
// there. It must run strictly after the artifact tree is in place.
//
// Unlike Capture, a failure here is fatal: leaving a secret missing after a
// successful code swap is worse than failing the deployment.
func (s *Set) Restore(root string, files map[string][]byte) error {
	for rel, content := range files {
		if err := security.ValidateRelativePath(rel); err != nil {
			return fmt.Errorf("refusing to restore unsafe path %s: %w", rel, err)
		}

		path := filepath.Join(root, rel)
		if _, err := security.WithinRoot(root, path); err != nil {
			return fmt.Errorf("refusing to restore %s: %w", rel, err)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create parent directory for %s: %w", rel, err)
		}

		if err := os.WriteFile(path, content, security.PermSecretFile); err != nil {
			return fmt.Errorf("failed to restore protected file %s: %w", rel, err)
		}

		s.logger.Debug("restored protected file", "path", rel, "bytes", len(content))
	}

	return nil
}

// expand resolves a single pattern to absolute candidate paths under root.
func (s *Set) expand(root, pattern string) []string {
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{filepath.Join(root, pattern)}
	}

	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		s.logger.Warn("invalid protected pattern", "pattern", pattern, "error", err)
		return nil
	}
	return matches
}
