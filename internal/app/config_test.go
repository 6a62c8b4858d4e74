package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shipyard.yaml")
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_ValidWithDefaults(t *testing.T) {
	path := writeConfig(t, `
apps:
  keywords:
    path: /srv/keywords
    repository: acme/keywords
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
    protected:
      - ".env"
      - "*.token"
    preserve:
      - ".venv"
      - logs
    sync_command: "uv sync"
`)

	config, apps, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	app, ok := apps["keywords"]
	if !ok {
		t.Fatal("Expected app 'keywords' to be loaded")
	}

	if app.Path != "/srv/keywords" {
		t.Errorf("Expected path /srv/keywords, got %s", app.Path)
	}
	if app.BackupDir != "/srv/keywords-backups" {
		t.Errorf("Expected default backup dir sibling to path, got %s", app.BackupDir)
	}
	if app.KeepBackups != DefaultKeepBackups {
		t.Errorf("Expected default keep_backups %d, got %d", DefaultKeepBackups, app.KeepBackups)
	}
	if app.Artifact != DefaultArtifact {
		t.Errorf("Expected default artifact name, got %s", app.Artifact)
	}
	if app.SyncTimeout != DefaultSyncTimeout*time.Second {
		t.Errorf("Expected default sync timeout, got %v", app.SyncTimeout)
	}
	if app.FetchTimeout != DefaultFetchTimeout*time.Second {
		t.Errorf("Expected default fetch timeout, got %v", app.FetchTimeout)
	}
	if len(app.SyncCommand) != 2 || app.SyncCommand[0] != "uv" || app.SyncCommand[1] != "sync" {
		t.Errorf("Expected parsed sync command [uv sync], got %v", app.SyncCommand)
	}

	// Single app needs no explicit default_app.
	if config.DefaultApp != "keywords" {
		t.Errorf("Expected sole app to become default, got %q", config.DefaultApp)
	}
}

func TestLoadConfig_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
default_app: keywords
apps:
  keywords:
    path: /srv/keywords
    backup_dir: /var/backups/keywords
    keep_backups: 10
    repository: acme/keywords
    artifact_name: dist-bundle
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
    sync_timeout: 120
    fetch_timeout: 60
  billing:
    path: /srv/billing
    repository: acme/billing
    deploy_token_file: /etc/shipyard/billing.token
    github_token_file: /etc/shipyard/github.token
`)

	config, apps, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(apps) != 2 {
		t.Fatalf("Expected 2 apps, got %d", len(apps))
	}
	app := apps["keywords"]
	if app.BackupDir != "/var/backups/keywords" {
		t.Errorf("Expected explicit backup dir, got %s", app.BackupDir)
	}
	if app.KeepBackups != 10 {
		t.Errorf("Expected keep_backups 10, got %d", app.KeepBackups)
	}
	if app.Artifact != "dist-bundle" {
		t.Errorf("Expected artifact dist-bundle, got %s", app.Artifact)
	}
	if app.SyncTimeout != 120*time.Second {
		t.Errorf("Expected sync timeout 120s, got %v", app.SyncTimeout)
	}
	if config.DefaultApp != "keywords" {
		t.Errorf("Expected default_app keywords, got %q", config.DefaultApp)
	}
}

func TestLoadConfig_MissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
apps:
  keywords:
    path: ""
`)

	_, _, err := LoadConfig(path)
	if err == nil {
		t.Fatal("Expected error for missing required fields")
	}
	for _, want := range []string{"path", "repository", "deploy_token_file", "github_token_file"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got: %v", want, err)
		}
	}
}

func TestLoadConfig_RelativePathRejected(t *testing.T) {
	path := writeConfig(t, `
apps:
  keywords:
    path: srv/keywords
    repository: acme/keywords
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
`)

	_, _, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "absolute") {
		t.Errorf("Expected absolute-path error, got: %v", err)
	}
}

func TestLoadConfig_BackupDirInsideAppPath(t *testing.T) {
	for _, backupDir := range []string{"/srv/keywords/backups", "/srv/keywords"} {
		path := writeConfig(t, `
apps:
  keywords:
    path: /srv/keywords
    backup_dir: `+backupDir+`
    repository: acme/keywords
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
`)

		_, _, err := LoadConfig(path)
		if err == nil || !strings.Contains(err.Error(), "backup_dir") {
			t.Errorf("Expected backup_dir-inside-path error for %s, got: %v", backupDir, err)
		}
	}
}

func TestLoadConfig_SiblingBackupDirAllowed(t *testing.T) {
	path := writeConfig(t, `
apps:
  keywords:
    path: /srv/keywords
    backup_dir: /srv/keywords-backups
    repository: acme/keywords
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
`)

	_, _, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Sibling backup_dir should be accepted: %v", err)
	}
}

func TestLoadConfig_MalformedRepository(t *testing.T) {
	path := writeConfig(t, `
apps:
  keywords:
    path: /srv/keywords
    repository: not-a-repo
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
`)

	_, _, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "owner/repo") {
		t.Errorf("Expected repository format error, got: %v", err)
	}
}

func TestLoadConfig_SyncCommandWithShellMetachars(t *testing.T) {
	path := writeConfig(t, `
apps:
  keywords:
    path: /srv/keywords
    repository: acme/keywords
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
    sync_command: "pip install -r requirements.txt && rm -rf /"
`)

	_, _, err := LoadConfig(path)
	if err == nil {
		t.Fatal("Expected error for sync command containing shell metacharacters")
	}
}

func TestLoadConfig_UnknownDefaultApp(t *testing.T) {
	path := writeConfig(t, `
default_app: missing
apps:
  keywords:
    path: /srv/keywords
    repository: acme/keywords
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
`)

	_, _, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "default_app") {
		t.Errorf("Expected default_app error, got: %v", err)
	}
}

func TestLoadConfig_TraversalInProtectedPattern(t *testing.T) {
	path := writeConfig(t, `
apps:
  keywords:
    path: /srv/keywords
    repository: acme/keywords
    deploy_token_file: /etc/shipyard/keywords.token
    github_token_file: /etc/shipyard/github.token
    protected:
      - "../outside/.env"
`)

	_, _, err := LoadConfig(path)
	if err == nil {
		t.Fatal("Expected error for protected pattern escaping the app directory")
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")

	_, apps, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Empty config should load: %v", err)
	}
	if len(apps) != 0 {
		t.Errorf("Expected no apps, got %d", len(apps))
	}
}

func TestRegistry(t *testing.T) {
	apps := map[string]*App{
		"keywords": {Name: "keywords"},
		"billing":  {Name: "billing"},
	}
	reg := NewRegistry(apps, "keywords")

	if reg.Count() != 2 {
		t.Errorf("Expected count 2, got %d", reg.Count())
	}

	app, err := reg.Get("billing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if app.Name != "billing" {
		t.Errorf("Expected billing, got %s", app.Name)
	}

	if _, err := reg.Get("unknown"); err == nil {
		t.Error("Expected error for unknown app")
	}

	def, err := reg.Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if def.Name != "keywords" {
		t.Errorf("Expected default keywords, got %s", def.Name)
	}

	names := reg.List()
	if len(names) != 2 || names[0] != "billing" || names[1] != "keywords" {
		t.Errorf("Expected sorted names [billing keywords], got %v", names)
	}
}

func TestRegistry_NoDefault(t *testing.T) {
	reg := NewRegistry(map[string]*App{"a": {Name: "a"}, "b": {Name: "b"}}, "")
	if _, err := reg.Default(); err == nil {
		t.Error("Expected error when no default app is configured")
	}
}
