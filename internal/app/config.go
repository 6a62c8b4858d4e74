package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shipyard/internal/security"
	"shipyard/pkg/cmdutil"
)

const (
	// DefaultKeepBackups is the snapshot retention count.
	DefaultKeepBackups = 5

	// DefaultSyncTimeout bounds the dependency sync command, in seconds.
	DefaultSyncTimeout = 300

	// DefaultFetchTimeout bounds artifact locate plus download plus unpack,
	// in seconds.
	DefaultFetchTimeout = 600

	// DefaultArtifact is the artifact name looked up in a workflow run when
	// none is configured.
	DefaultArtifact = "app-bundle"
)

// LoadConfig loads and validates the configuration from a YAML file
func LoadConfig(configPath string) (*Config, map[string]*App, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Initialize Apps map if it's nil (happens with empty YAML files)
	if config.Apps == nil {
		config.Apps = make(map[string]AppConfig)
	}

	apps := make(map[string]*App)
	for name, appConfig := range config.Apps {
		errors := ValidateAppConfig(name, appConfig)
		if len(errors) > 0 {
			return nil, nil, fmt.Errorf("invalid configuration for app '%s':\n%s",
				name, strings.Join(errors, "\n"))
		}

		app, err := buildApp(name, appConfig)
		if err != nil {
			return nil, nil, err
		}
		apps[name] = app
	}

	// A single-app configuration needs no explicit default.
	if config.DefaultApp == "" && len(apps) == 1 {
		for name := range apps {
			config.DefaultApp = name
		}
	}
	if config.DefaultApp != "" {
		if _, ok := apps[config.DefaultApp]; !ok {
			return nil, nil, fmt.Errorf("default_app '%s' is not a configured app", config.DefaultApp)
		}
	}

	return &config, apps, nil
}

// buildApp applies defaults and resolves paths for a validated app config
func buildApp(name string, cfg AppConfig) (*App, error) {
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for app '%s': %w", name, err)
	}

	backupDir := cfg.BackupDir
	if backupDir == "" {
		// The live tree is wiped during deployment, so snapshots default to
		// a sibling directory rather than anywhere under the path itself.
		backupDir = path + "-backups"
	}
	backupDir, err = filepath.Abs(backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve backup_dir for app '%s': %w", name, err)
	}

	keepBackups := cfg.KeepBackups
	if keepBackups == 0 {
		keepBackups = DefaultKeepBackups
	}

	artifact := cfg.Artifact
	if artifact == "" {
		artifact = DefaultArtifact
	}

	syncTimeout := cfg.SyncTimeout
	if syncTimeout == 0 {
		syncTimeout = DefaultSyncTimeout
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	var syncCommand []string
	if cfg.SyncCommand != "" {
		syncCommand, err = cmdutil.ParseCommandString(cfg.SyncCommand)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sync_command for app '%s': %w", name, err)
		}
	}

	return &App{
		Name:            name,
		Path:            path,
		BackupDir:       backupDir,
		KeepBackups:     keepBackups,
		Repository:      cfg.Repository,
		Artifact:        artifact,
		TokenFile:       cfg.TokenFile,
		GitHubTokenFile: cfg.GitHubTokenFile,
		Protected:       cfg.Protected,
		Preserve:        cfg.Preserve,
		SyncCommand:     syncCommand,
		SyncTimeout:     time.Duration(syncTimeout) * time.Second,
		FetchTimeout:    time.Duration(fetchTimeout) * time.Second,
	}, nil
}

// ValidateAppConfig validates a single application configuration
func ValidateAppConfig(name string, config AppConfig) []string {
	var errors []string

	if err := security.ValidateAppName(name); err != nil {
		errors = append(errors, fmt.Sprintf("  - App '%s': invalid name: %v", name, err))
	}

	// Validate path. Existence is deliberately not required: the first
	// deployment creates the directory.
	if config.Path == "" {
		errors = append(errors, fmt.Sprintf("  - App '%s': missing required 'path' field", name))
	} else if !filepath.IsAbs(config.Path) {
		errors = append(errors, fmt.Sprintf("  - App '%s': path must be absolute, got '%s'", name, config.Path))
	}

	if config.BackupDir != "" {
		if !filepath.IsAbs(config.BackupDir) {
			errors = append(errors, fmt.Sprintf("  - App '%s': backup_dir must be absolute, got '%s'", name, config.BackupDir))
		} else if config.Path != "" && filepath.IsAbs(config.Path) {
			// A backup_dir under the app path would be wiped during deployment
			// and snapshotted into every backup.
			if _, err := security.WithinRoot(config.Path, config.BackupDir); err == nil {
				errors = append(errors, fmt.Sprintf("  - App '%s': backup_dir must not be inside path, got '%s'", name, config.BackupDir))
			}
		}
	}

	// Validate repository (owner/repo)
	if config.Repository == "" {
		errors = append(errors, fmt.Sprintf("  - App '%s': missing required 'repository' field", name))
	} else {
		parts := strings.Split(config.Repository, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			errors = append(errors, fmt.Sprintf("  - App '%s': repository must be 'owner/repo', got '%s'", name, config.Repository))
		}
	}

	// Validate token files
	if config.TokenFile == "" {
		errors = append(errors, fmt.Sprintf("  - App '%s': missing required 'deploy_token_file' field", name))
	} else if !filepath.IsAbs(config.TokenFile) {
		errors = append(errors, fmt.Sprintf("  - App '%s': deploy_token_file must be absolute, got '%s'", name, config.TokenFile))
	}

	if config.GitHubTokenFile == "" {
		errors = append(errors, fmt.Sprintf("  - App '%s': missing required 'github_token_file' field", name))
	} else if !filepath.IsAbs(config.GitHubTokenFile) {
		errors = append(errors, fmt.Sprintf("  - App '%s': github_token_file must be absolute, got '%s'", name, config.GitHubTokenFile))
	}

	// Validate protected patterns
	for i, pattern := range config.Protected {
		if err := security.ValidateRelativePath(pattern); err != nil {
			errors = append(errors, fmt.Sprintf("  - App '%s': protected[%d] '%s': %v", name, i, pattern, err))
		}
	}

	// Validate preserve entries (top-level directory names only)
	for i, entry := range config.Preserve {
		if entry == "" || strings.ContainsRune(entry, os.PathSeparator) || entry == "." || entry == ".." {
			errors = append(errors, fmt.Sprintf("  - App '%s': preserve[%d] must be a plain directory name, got '%s'", name, i, entry))
		}
	}

	// Validate sync command
	if config.SyncCommand != "" {
		parts, err := cmdutil.ParseCommandString(config.SyncCommand)
		if err != nil {
			errors = append(errors, fmt.Sprintf("  - App '%s': sync_command: %v", name, err))
		} else if err := security.ValidateSyncCommand(parts); err != nil {
			errors = append(errors, fmt.Sprintf("  - App '%s': sync_command: %v", name, err))
		}
	}

	// Validate timeouts (must be positive if set, zero uses defaults)
	if config.SyncTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - App '%s': sync_timeout must be a positive integer, got %d", name, config.SyncTimeout))
	}
	if config.FetchTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - App '%s': fetch_timeout must be a positive integer, got %d", name, config.FetchTimeout))
	}
	if config.KeepBackups < 0 {
		errors = append(errors, fmt.Sprintf("  - App '%s': keep_backups must be a positive integer, got %d", name, config.KeepBackups))
	}

	return errors
}
