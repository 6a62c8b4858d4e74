package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var backupsConfigFile string

var backupsCmd = &cobra.Command{
	Use:   "backups APP_NAME",
	Short: "List backup snapshots for an app",
	Long: `List the backup snapshots currently retained for an application,
newest first.

Example:
  shipyard backups keywords`,
	Args: cobra.ExactArgs(1),
	RunE: runBackups,
}

func init() {
	backupsCmd.Flags().StringVarP(&backupsConfigFile, "config", "c", defaultConfigPath, "Path to shipyard config file")
}

func runBackups(cmd *cobra.Command, args []string) error {
	appName := args[0]

	target, backups, err := loadAppBackups(backupsConfigFile, appName)
	if err != nil {
		return err
	}

	snapshots, err := backups.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(snapshots) == 0 {
		fmt.Printf("No backups found for app '%s' in %s\n", appName, target.BackupDir)
		return nil
	}

	fmt.Printf("Backups for app '%s' (%s):\n", appName, target.BackupDir)
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		fmt.Printf("  %s  (%s)\n", snap.Name, snap.CreatedAt.Format(time.RFC3339))
	}

	return nil
}
