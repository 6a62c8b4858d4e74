// Package app loads and validates the application configuration: which
// directories are deployed, where their artifacts come from, and what is
// preserved across deployments.
package app

import "time"

// App represents a validated deployable application
type App struct {
	Name            string
	Path            string
	BackupDir       string
	KeepBackups     int
	Repository      string
	Artifact        string
	TokenFile       string
	GitHubTokenFile string
	Protected       []string
	Preserve        []string
	SyncCommand     []string
	SyncTimeout     time.Duration
	FetchTimeout    time.Duration
}

// AppConfig represents the YAML configuration for a single application
type AppConfig struct {
	Path            string   `yaml:"path"`
	BackupDir       string   `yaml:"backup_dir"`
	KeepBackups     int      `yaml:"keep_backups"`
	Repository      string   `yaml:"repository"`
	Artifact        string   `yaml:"artifact_name"`
	TokenFile       string   `yaml:"deploy_token_file"`
	GitHubTokenFile string   `yaml:"github_token_file"`
	Protected       []string `yaml:"protected"`
	Preserve        []string `yaml:"preserve"`
	SyncCommand     string   `yaml:"sync_command"`
	SyncTimeout     int      `yaml:"sync_timeout"`
	FetchTimeout    int      `yaml:"fetch_timeout"`
}

// Config represents the root configuration structure
type Config struct {
	DefaultApp string               `yaml:"default_app"`
	Apps       map[string]AppConfig `yaml:"apps"`
}
