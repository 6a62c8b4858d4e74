package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"shipyard/internal/app"
	"shipyard/internal/artifact"
	"shipyard/internal/backup"
	"shipyard/internal/deploy"
	"shipyard/internal/history"
	"shipyard/internal/protect"
	"shipyard/internal/security"
	"shipyard/internal/server"
	"shipyard/internal/token"
	"shipyard/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logFile    string
	dbPath     string
	host       string
	port       int
	testMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deploy server",
	Long: `Start the HTTP server to receive deploy requests from CI pipelines.

Each request triggers an artifact download and an in-place replacement of the
target application's file tree according to your configuration.`,
	RunE: runServe,
}

func init() {
	// Flags for serve command
	serveCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("SHIPYARD_CONFIG_FILE", ""), "Path to shipyard.yaml configuration file")
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("SHIPYARD_LOG_FILE", "./deployments.log"), "Path to log file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("SHIPYARD_DB_PATH", "./deployments.db"), "Path to SQLite database")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("SHIPYARD_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("SHIPYARD_PORT", 5000), "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("SHIPYARD_SKIP_VALIDATION") == "1", "Enable test mode (skip validation)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Determine config file path
	if configFile == "" {
		searchPaths := fileutil.DefaultConfigPaths("shipyard.yaml")
		configFile = fileutil.SearchPathsOptional(searchPaths)
		if configFile == "" {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, path := range searchPaths {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return fmt.Errorf("configuration file not found")
		}
	}

	// Set up logging
	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting shipyard")

	// Load configuration
	logger.Info("Loading configuration", "config", configFile)
	config, apps, err := app.LoadConfig(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("Configuration validated successfully", "count", len(apps))

	if len(apps) == 0 {
		logger.Warn("No apps configured in config file", "config", configFile)
		logger.Warn("The server will start but won't handle any deployments until apps are added")
	}

	registry := app.NewRegistry(apps, config.DefaultApp)

	// Wire one orchestrator and one token store per app.
	deployers := make(map[string]server.Deployer, len(apps))
	tokens := make(map[string]*token.Store, len(apps))
	for name, a := range apps {
		deployTokens := token.NewStore(a.TokenFile)
		githubTokens := token.NewStore(a.GitHubTokenFile)

		if !testMode {
			if err := checkToken(logger, name, "deploy_token_file", deployTokens); err != nil {
				return err
			}
			if err := checkToken(logger, name, "github_token_file", githubTokens); err != nil {
				return err
			}
		}

		fetcher := artifact.NewGitHub(githubTokens, a.Artifact, logger)
		protected := protect.NewSet(a.Protected, logger)
		backups := backup.NewManager(a.BackupDir, a.KeepBackups, logger)

		deployers[name] = deploy.New(deploy.Config{
			AppName:      name,
			AppDir:       a.Path,
			PreserveDirs: a.Preserve,
			SyncCommand:  a.SyncCommand,
			SyncTimeout:  a.SyncTimeout,
			FetchTimeout: a.FetchTimeout,
		}, fetcher, protected, backups, logger)
		tokens[name] = deployTokens
	}

	// Initialize history database
	var hist *history.History
	if !testMode {
		logger.Info("Initializing history database", "db", dbPath)
		hist, err = history.New(dbPath)
		if err != nil {
			logger.Error("Failed to initialize history database", "error", err)
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		defer hist.Close()
	}

	// Create and start server
	srv := server.NewServer(registry, deployers, tokens, hist, logger, testMode)

	logger.Info("Starting HTTP server", "host", host, "port", port)
	if err := srv.Start(host, port); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// checkToken validates a token file at startup. A missing or unreadable file
// is fatal; a weak secret only warns, since the operator may be migrating.
func checkToken(logger *slog.Logger, appName, field string, store *token.Store) error {
	if err := store.Check(); err != nil {
		logger.Error("Token file check failed", "app", appName, "field", field, "error", err)
		return fmt.Errorf("app '%s': %s: %w", appName, field, err)
	}

	tok, err := store.Load()
	if err != nil {
		return fmt.Errorf("app '%s': %s: %w", appName, field, err)
	}
	if err := security.ValidateTokenStrength(tok); err != nil {
		logger.Warn("Token appears weak, consider rotating it",
			"app", appName, "field", field, "error", err)
	}

	return nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)

	return logger, file, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
