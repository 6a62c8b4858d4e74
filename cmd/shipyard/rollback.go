package main

import (
	"fmt"
	"io"
	"log/slog"

	"shipyard/internal/app"
	"shipyard/internal/backup"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/shipyard/shipyard.yaml"

var rollbackConfigFile string

var rollbackCmd = &cobra.Command{
	Use:   "rollback APP_NAME [BACKUP_NAME]",
	Short: "Restore an app from a backup snapshot",
	Long: `Restore an application's file tree from a backup snapshot.

With only an app name, the most recent snapshot is restored. A specific
snapshot can be named as the second argument.

This command will:
- Read the app configuration from shipyard.yaml
- Clear the application directory
- Copy the snapshot contents back in full

Example:
  shipyard rollback keywords
  shipyard rollback keywords backup_20250601_120000`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRollback,
}

func init() {
	// Config file flag
	rollbackCmd.Flags().StringVarP(&rollbackConfigFile, "config", "c", defaultConfigPath, "Path to shipyard config file")
}

func runRollback(cmd *cobra.Command, args []string) error {
	appName := args[0]

	target, backups, err := loadAppBackups(rollbackConfigFile, appName)
	if err != nil {
		return err
	}

	var name string
	if len(args) == 2 {
		name = args[1]
	} else {
		latest, err := backups.Latest()
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		if latest == nil {
			return fmt.Errorf("no backups found for app '%s' in %s", appName, target.BackupDir)
		}
		name = latest.Name
	}

	fmt.Printf("Restoring app '%s' from snapshot %s...\n", appName, name)
	if err := backups.Restore(name, target.Path); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Printf("\nRollback successful!\n")
	fmt.Printf("  App directory: %s\n", target.Path)
	fmt.Printf("  Restored from: %s\n", name)

	return nil
}

// loadAppBackups resolves an app from the config file together with its
// backup manager. Shared by the rollback and backups commands.
func loadAppBackups(configPath, appName string) (*app.App, *backup.Manager, error) {
	_, apps, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	target, exists := apps[appName]
	if !exists {
		return nil, nil, fmt.Errorf("app '%s' not found in config file %s", appName, configPath)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return target, backup.NewManager(target.BackupDir, target.KeepBackups, logger), nil
}
