package security

import (
	"fmt"
	"strings"
)

// AllowedSyncCommands is the set of base commands permitted for the
// dependency-sync step. Restricting the base command keeps a compromised
// configuration file from turning the orchestrator into an arbitrary shell.
var AllowedSyncCommands = map[string]bool{
	"pip":      true,
	"pip3":     true,
	"python":   true,
	"python3":  true,
	"uv":       true,
	"poetry":   true,
	"pipenv":   true,
	"npm":      true,
	"npx":      true,
	"yarn":     true,
	"pnpm":     true,
	"composer": true,
	"bundle":   true,
	"cargo":    true,
	"go":       true,
	"make":     true,
}

// shellMetachars are characters that only have meaning to a shell. The sync
// command is executed without a shell, so their presence indicates a
// configuration mistake or an injection attempt.
var shellMetachars = []string{";", "|", "&", "$", "`", "\n", ">", "<", "(", ")"}

// ValidateSyncCommand validates a parsed dependency-sync command at
// configuration load time.
func ValidateSyncCommand(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty sync command")
	}

	base := cmdParts[0]
	if !AllowedSyncCommands[base] {
		return fmt.Errorf("sync command not allowed: %s", base)
	}

	for i, arg := range cmdParts[1:] {
		for _, meta := range shellMetachars {
			if strings.Contains(arg, meta) {
				return fmt.Errorf("sync command argument %d contains shell metacharacter %q: %s", i+1, meta, arg)
			}
		}
	}

	return nil
}
