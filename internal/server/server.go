package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/handler"
	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/server/middleware"
	"github.com/sofragment/fragment/internal/telemetry"
	"github.com/sofragment/fragment/internal/ui"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	Production      bool
	MaxBodySize     int64 // bytes
	RateLimitMax    int
	RateLimitWindow time.Duration
	ShutdownTimeout time.Duration
	EnableUI        bool
	Version         string
}

// DefaultConfig returns a Config matching the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            3001,
		CORSOrigin:      "http://localhost:3000",
		MaxBodySize:     handler.DefaultMaxBodySize,
		RateLimitMax:    100,
		RateLimitWindow: 15 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		EnableUI:        true,
		Version:         "dev",
	}
}

// UserService is what the routes need from the account service.
type UserService interface {
	handler.Accounts
	middleware.UserLookup
}

// KeyService is what the routes need from the API key service.
type KeyService interface {
	handler.Keys
	middleware.KeyValidator
}

// Deps are the collaborators the server routes to. Metrics and MCP are
// optional; DB may be nil when readiness should not check a database.
type Deps struct {
	Users    UserService
	Keys     KeyService
	Tokens   middleware.TokenValidator
	Renderer handler.Renderer
	DB       handler.Pinger
	Metrics  *telemetry.Metrics
	MCP      http.Handler
}

// Server is the top-level HTTP server. It owns the chi router and the
// http.Server; the services it routes to are owned by the caller.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe or Run to start accepting
// connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	rs := handler.NewResponder(s.logger, s.cfg.Production, s.cfg.MaxBodySize)

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(s.deps.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.cfg.CORSOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		ExposedHeaders: []string{middleware.HeaderRequestID},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	var failures middleware.FailureRecorder
	if s.deps.Metrics != nil {
		failures = s.deps.Metrics
	}
	auth := middleware.NewAuth(s.deps.Tokens, s.deps.Users, s.deps.Keys, failures)

	sysHandler := handler.NewSystemHandler(rs, s.deps.DB)
	authHandler := handler.NewAuthHandler(rs, s.deps.Users)
	keyHandler := handler.NewKeyHandler(rs, s.deps.Keys)
	userHandler := handler.NewUserHandler(rs, s.deps.Users)
	codeshotHandler := handler.NewCodeshotHandler(rs, s.deps.Renderer)
	openAPIHandler := handler.NewOpenAPIHandler(rs, s.cfg.Version)

	// --- API routes ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.RateLimitMax, s.cfg.RateLimitWindow))

		r.Get("/health", sysHandler.Health)
		r.Get("/ready", sysHandler.Ready)
		r.Get("/openapi.json", openAPIHandler.Serve)

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Route("/keys", func(r chi.Router) {
			r.Use(auth.RequireToken)
			r.Post("/", keyHandler.Create)
			r.Get("/", keyHandler.List)
			r.Delete("/{keyId}", keyHandler.Revoke)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireToken)
			r.With(auth.RequireAdminKey).Post("/keys", keyHandler.CreateAdmin)
			r.With(middleware.RequireRole(model.RoleAdmin)).Delete("/users/{userId}", userHandler.DeleteUser)
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Use(auth.RequireToken)
			r.Get("/", userHandler.Me)
			r.Patch("/", userHandler.UpdateMe)
			r.Delete("/", userHandler.DeleteMe)
			r.Put("/password", userHandler.ChangePassword)
		})

		r.With(auth.RequireAPIKey).Post("/tools/codeshot", codeshotHandler.Render)

		if s.deps.MCP != nil {
			r.With(auth.RequireAPIKey).Handle("/mcp", s.deps.MCP)
		}

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			apperr.Write(w, apperr.NotFound("Route"), false)
		})
	})

	// --- Embedded portfolio UI ---
	if s.cfg.EnableUI {
		distFS, err := fs.Sub(ui.Dist, "dist")
		if err != nil {
			s.logger.Error("failed to create sub filesystem for UI", "error", err)
		} else {
			r.Get("/*", spaHandler(distFS))
		}
	}

	s.router = r
}

// spaHandler serves files from the bundle and falls back to index.html for
// any path that is not a file, so client-side routes survive a reload.
func spaHandler(distFS fs.FS) http.HandlerFunc {
	fileServer := http.FileServer(http.FS(distFS))
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" {
			if st, err := fs.Stat(distFS, name); err == nil && !st.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		f, err := distFS.Open("index.html")
		if err != nil {
			http.Error(w, "UI not available", http.StatusNotFound)
			return
		}
		defer f.Close()
		stat, err := f.Stat()
		if err != nil {
			http.Error(w, "UI not available", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "index.html", stat.ModTime(), f.(io.ReadSeeker))
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down within the configured
// timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
