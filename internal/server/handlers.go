package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shipyard/internal/app"
	"shipyard/internal/deploy"
	"shipyard/internal/history"
	"shipyard/internal/security"
	"shipyard/internal/token"

	"github.com/go-chi/chi/v5"
)

const (
	MaxPayloadBytes        = 1_000_000 // 1 MB
	RecentDeploymentsLimit = 10        // Number of recent attempts returned by the status endpoint
)

// DeployPayload is the JSON body of a deploy request, typically posted by a
// CI pipeline after a successful build.
type DeployPayload struct {
	Version    string `json:"version"`
	RunID      string `json:"workflow_run_id"`
	Repository string `json:"repository,omitempty"`
}

// HandleDeployDefault handles deploy requests for the default application
func (s *Server) HandleDeployDefault(w http.ResponseWriter, r *http.Request) {
	target, err := s.Registry.Default()
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "No default app configured"})
		return
	}
	s.runDeploy(w, r, target)
}

// HandleDeploy handles deploy requests for a named application
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	appName := chi.URLParam(r, "appName")

	// Validate app name for security
	if err := security.ValidateAppName(appName); err != nil {
		s.Logger.Warn("Invalid app name in deploy request", "app", appName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid app name: %v", err)})
		return
	}

	target, err := s.Registry.Get(appName)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown app"})
		return
	}
	s.runDeploy(w, r, target)
}

// runDeploy authenticates, validates and executes a deploy request for the
// resolved application, synchronously. The caller gets the outcome in the
// response rather than having to poll.
func (s *Server) runDeploy(w http.ResponseWriter, r *http.Request, target *app.App) {
	if !s.authorize(w, r, target.Name) {
		return
	}

	// Check payload size (ContentLength can be -1 if not set, so check for both > 0 and > max)
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	// Check content type
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Invalid content type"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err, "app", target.Name)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return
	}

	var payload DeployPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.Logger.Error("Failed to parse JSON payload", "error", err, "app", target.Name)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	if payload.Version == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: version"})
		return
	}
	if payload.RunID == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: workflow_run_id"})
		return
	}

	repository := payload.Repository
	if repository == "" {
		repository = target.Repository
	}

	deployer, ok := s.Deployers[target.Name]
	if !ok {
		s.Logger.Error("No deployer wired for app", "app", target.Name)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "App not deployable"})
		return
	}

	// Try to acquire the deployment lock. A concurrent deploy is rejected,
	// never queued.
	if !s.LockManager.TryLock(target.Name) {
		s.Logger.Warn("Deployment already in progress, rejecting", "app", target.Name)
		s.recordAttempt(r, target.Name, &payload, repository, &history.Record{
			Status:       history.StatusRejected,
			Stage:        string(deploy.StageIdle),
			ErrorMessage: stringPtr("Deployment already in progress"),
		})
		s.respondJSON(w, http.StatusConflict, map[string]string{"error": "Deployment already in progress"})
		return
	}
	defer s.LockManager.Unlock(target.Name)

	startTime := time.Now()
	result, err := deployer.Deploy(r.Context(), deploy.Request{
		Version:    payload.Version,
		Repository: repository,
		RunID:      payload.RunID,
	})
	duration := time.Since(startTime).Seconds()

	if err != nil {
		stage := deploy.StageIdle
		var stageErr *deploy.StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}

		s.recordAttempt(r, target.Name, &payload, repository, &history.Record{
			Status:          history.StatusFailed,
			Stage:           string(stage),
			BackupName:      backupNamePtr(result),
			StartedAt:       startTime,
			DurationSeconds: &duration,
			ErrorMessage:    stringPtr(err.Error()),
		})

		s.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
			"stage": string(stage),
		})
		return
	}

	s.recordAttempt(r, target.Name, &payload, repository, &history.Record{
		Status:          history.StatusSuccess,
		Stage:           string(result.Stage),
		BackupName:      backupNamePtr(result),
		StartedAt:       startTime,
		DurationSeconds: &duration,
	})

	response := map[string]interface{}{
		"status":    "success",
		"app":       target.Name,
		"version":   result.Version,
		"timestamp": result.Timestamp.Format(time.RFC3339),
	}
	if result.BackupName != "" {
		response["backup"] = result.BackupName
	}
	s.respondJSON(w, http.StatusOK, response)
}

// authorize verifies the bearer token for an application. The token file is
// read on every request so rotation needs no restart. A missing or unreadable
// token file is a server misconfiguration, not a client failure.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, appName string) bool {
	store, ok := s.Tokens[appName]
	if !ok {
		s.Logger.Error("No token store wired for app", "app", appName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Token not configured"})
		return false
	}

	// The 401 body is identical for a missing header and a wrong token so the
	// response gives no oracle; only the logs tell the cases apart.
	header := r.Header.Get("Authorization")
	candidate, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || candidate == "" {
		s.Logger.Warn("Rejected deploy request without bearer token", "app", appName)
		s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return false
	}

	if err := store.Verify(candidate); err != nil {
		if errors.Is(err, token.ErrMismatch) {
			s.Logger.Warn("Rejected deploy request with invalid token", "app", appName)
			s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return false
		}
		s.Logger.Error("Failed to load deploy token", "app", appName, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Token configuration error"})
		return false
	}

	return true
}

// recordAttempt writes one deployment attempt to history
func (s *Server) recordAttempt(r *http.Request, appName string, payload *DeployPayload, repository string, record *history.Record) {
	if s.History == nil {
		return
	}

	record.App = appName
	record.Version = payload.Version
	record.Repository = repository
	record.RunID = payload.RunID

	if _, err := s.History.Add(r.Context(), record); err != nil {
		s.Logger.Error("Failed to record deployment history", "error", err, "app", appName)
	}
}

// HandleHealth handles health check requests. Always answers, never
// authenticated, never blocked by a deployment in flight.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	appNames := s.Registry.List()

	// app_name is the default app, or empty in a multi-app setup without one.
	defaultName := ""
	if def, err := s.Registry.Default(); err == nil {
		defaultName = def.Name
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"app_name":  defaultName,
		"apps":      appNames,
		"app_count": s.Registry.Count(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleStatus handles deployment status requests
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	appName := chi.URLParam(r, "appName")

	// Validate app name for security
	if err := security.ValidateAppName(appName); err != nil {
		s.Logger.Warn("Invalid app name in status request", "app", appName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid app name: %v", err)})
		return
	}

	if _, err := s.Registry.Get(appName); err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown app"})
		return
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available"})
		return
	}

	latest, err := s.History.Latest(r.Context(), appName)
	if err != nil {
		s.Logger.Error("Failed to get latest deployment", "error", err, "app", appName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	recent, err := s.History.ForApp(r.Context(), appName, RecentDeploymentsLimit)
	if err != nil {
		s.Logger.Error("Failed to get deployment history", "error", err, "app", appName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	response := map[string]interface{}{
		"app":                appName,
		"latest_deployment":  latest,
		"recent_deployments": recent,
	}

	s.respondJSON(w, http.StatusOK, response)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// Helper functions
func stringPtr(s string) *string {
	return &s
}

func backupNamePtr(result *deploy.Result) *string {
	if result == nil || result.BackupName == "" {
		return nil
	}
	return &result.BackupName
}
