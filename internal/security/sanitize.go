package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// appNamePattern restricts application names to characters that are safe in
// URLs, file paths and log lines.
var appNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

const MaxAppNameLength = 64

// ValidateAppName validates an application name from configuration or a URL
// parameter.
func ValidateAppName(name string) error {
	if name == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	if len(name) > MaxAppNameLength {
		return fmt.Errorf("application name too long (maximum %d characters)", MaxAppNameLength)
	}
	if !appNamePattern.MatchString(name) {
		return fmt.Errorf("application name contains invalid characters: %s", name)
	}
	return nil
}

// ValidateRelativePath validates a path that must stay inside a root
// directory: archive entry names, protected file patterns and captured file
// paths. Absolute paths and parent-directory traversal are rejected.
func ValidateRelativePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative: %s", path)
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("path contains null byte")
	}

	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes root directory: %s", path)
	}

	return nil
}

// WithinRoot checks that target resolves to a location inside root.
// Returns the cleaned absolute target path.
func WithinRoot(root, target string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target: %w", err)
	}

	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside root %s", target, root)
	}

	return absTarget, nil
}
