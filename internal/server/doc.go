// Package server implements the HTTP server for the shipyard deploy receiver.
//
// This package provides:
//   - Deploy endpoint triggering artifact-based tree replacement
//   - Bearer token authentication with tokens re-read from disk per request
//   - Per-IP rate limiting to prevent abuse
//   - Health and status endpoints for monitoring
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/app: Application configuration and validation
//   - internal/deploy: The deployment state machine
//   - internal/history: SQLite-based deployment history tracking
//
// Security features:
//   - Constant-time bearer token comparison
//   - Content-Type validation (application/json only)
//   - Payload size limits (1MB max)
//   - Rate limiting (global and per-deploy)
//   - Per-app deployment locking (prevents concurrent deployments)
package server
