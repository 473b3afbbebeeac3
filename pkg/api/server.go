// Package api exposes the resolver over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrCodeEU/facefolio/pkg/logging"
	"github.com/MrCodeEU/facefolio/pkg/metrics"
	"github.com/MrCodeEU/facefolio/pkg/resolver"
)

// Resolver is the part of resolver.Service the HTTP layer drives.
type Resolver interface {
	Process(ctx context.Context, fileName string, data []byte) (*resolver.ProcessResult, error)
	Finalize(ctx context.Context, req resolver.FinalizeRequest) (*resolver.FinalizeResult, error)
	ListKnown() []string
	ListCollections(ctx context.Context) (map[string][]string, error)
	CropPath(ref string) (string, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Host string
	Port int
	// AllowedOrigins receive CORS headers in addition to localhost.
	AllowedOrigins []string
	// UploadRate is the sustained number of uploads per second; zero disables limiting.
	UploadRate  float64
	UploadBurst int
	MaxUploadMB int
	// RequestTimeout bounds each request, detection included.
	RequestTimeout time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8080,
		UploadRate:     2,
		UploadBurst:    4,
		MaxUploadMB:    25,
		RequestTimeout: 2 * time.Minute,
	}
}

// Server is the FaceFolio HTTP server.
type Server struct {
	cfg        Config
	resolver   Resolver
	router     *chi.Mux
	httpServer *http.Server
	log        *logging.Entry
}

// NewServer creates a server for r.
func NewServer(r Resolver, cfg Config) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultConfig().MaxUploadMB
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}

	s := &Server{
		cfg:      cfg,
		resolver: r,
		router:   chi.NewRouter(),
		log:      logging.Component("api"),
	}

	s.router.Use(chiMiddleware.RequestID)
	s.router.Use(chiMiddleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(chiMiddleware.Recoverer)
	s.router.Use(chiMiddleware.Timeout(cfg.RequestTimeout))
	s.router.Use(metrics.Middleware())
	s.router.Use(cors(cfg.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(uploadLimiter(s.cfg.UploadRate, s.cfg.UploadBurst)).Post("/process-photo", s.handleProcess)
		r.Post("/finalize-and-sort", s.handleFinalize)
		r.Get("/known", s.handleKnown)
		r.Get("/collections", s.handleCollections)
	})

	r.Get("/temp_crops/{ref}", s.handleCrop)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Infof("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
