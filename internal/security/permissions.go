package security

import (
	"fmt"
	"os"
)

const (
	// PermSecretFile is for token files holding shared secrets.
	// rw------- (0600): only the owner can read/write.
	PermSecretFile os.FileMode = 0600

	// PermConfigFile is for configuration files containing sensitive data.
	// rw-r----- (0640): owner can read/write, group can read.
	PermConfigFile os.FileMode = 0640

	// PermLogFile is for log files that may contain deployment information.
	PermLogFile os.FileMode = 0640

	// PermDBFile is for the deployment history database.
	PermDBFile os.FileMode = 0640

	// PermDirectory is for directories created by the orchestrator
	// (backup roots, staging directories).
	// rwxr-x--- (0750): owner full access, group can list.
	PermDirectory os.FileMode = 0750
)

// CreateSecureDir creates a directory with secure permissions, including
// parents. If the directory already exists its permissions are corrected.
func CreateSecureDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create secure directory: %w", err)
	}

	// MkdirAll is subject to umask; chmod the leaf explicitly.
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set directory permissions: %w", err)
	}

	return nil
}

// IsWorldReadable checks if permissions allow reads by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// IsWorldWritable checks if permissions allow writes by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// ValidateSecurePermissions validates that a sensitive file is neither
// world-readable nor world-writable.
func ValidateSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()

	if IsWorldReadable(perm) {
		return fmt.Errorf("file %s is world-readable (%04o), which is insecure for sensitive data", path, perm)
	}

	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o), which is a serious security risk", path, perm)
	}

	return nil
}
