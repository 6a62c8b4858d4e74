package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"shipyard/internal/app"
	"shipyard/internal/deploy"
	"shipyard/internal/history"
	"shipyard/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout = 10 * time.Second
	HTTPIdleTimeout = 60 * time.Second

	// Request timeout for middleware. Deployments run synchronously within
	// the request, so this bounds the whole fetch-replace-sync sequence.
	RequestTimeout = 20 * time.Minute

	// Rate limiting - requests per minute
	GlobalRateLimit = 30
	DeployRateLimit = 6
)

// Deployer runs a deployment for one application. Implemented by
// deploy.Orchestrator.
type Deployer interface {
	Deploy(ctx context.Context, req deploy.Request) (*deploy.Result, error)
}

// Server represents the HTTP server
type Server struct {
	Registry    *app.Registry
	Deployers   map[string]Deployer
	Tokens      map[string]*token.Store
	History     *history.History
	LockManager *deploy.LockManager
	Logger      *slog.Logger
	TestMode    bool
}

// NewServer creates a new server instance
func NewServer(registry *app.Registry, deployers map[string]Deployer, tokens map[string]*token.Store, hist *history.History, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Registry:    registry,
		Deployers:   deployers,
		Tokens:      tokens,
		History:     hist,
		LockManager: deploy.NewLockManager(),
		Logger:      logger,
		TestMode:    testMode,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	// Rate limiting middleware (only if not in test mode)
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	// Routes
	r.Get("/health", s.HandleHealth)
	r.Get("/status/{appName}", s.HandleStatus)

	// Deploy routes with stricter rate limit
	if !s.TestMode {
		limited := r.With(NewDeployRateLimitMiddleware(DeployRateLimit, s.Logger))
		limited.Post("/deploy", s.HandleDeployDefault)
		limited.Post("/deploy/{appName}", s.HandleDeploy)
	} else {
		r.Post("/deploy", s.HandleDeployDefault)
		r.Post("/deploy/{appName}", s.HandleDeploy)
	}

	return r
}

// Start starts the HTTP server. Deployments run inside requests, so the
// write timeout matches the request timeout rather than the usual few
// seconds.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: RequestTimeout + time.Minute,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
