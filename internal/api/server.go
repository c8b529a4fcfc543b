// Package api serves sessions over HTTP.
package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"token-manager-dashboard/internal/observability"
	"token-manager-dashboard/internal/session"
)

var Logger zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Logger = zerolog.New(out).With().Timestamp().Str("component", "api").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Address               string
	AllowedOrigins        []string
	EnableMetrics         bool
	RatePerMinute         int
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
}

// DefaultServerConfig returns a default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:               "localhost:8080",
		AllowedOrigins:        []string{"http://localhost:3000", "http://localhost:8080"},
		EnableMetrics:         true,
		RatePerMinute:         300,
		MaxConcurrentRequests: 200,
		RequestTimeout:        60 * time.Second,
	}
}

// ReadyFunc reports whether backing services are reachable.
type ReadyFunc func(ctx context.Context) error

// Server wraps the HTTP server and provides lifecycle management
type Server struct {
	config     *ServerConfig
	httpServer *http.Server
	mux        *chi.Mux
	sessions   *session.Registry
	ready      ReadyFunc
}

// NewServer creates a new HTTP server over sessions. ready may be nil.
func NewServer(config *ServerConfig, sessions *session.Registry, ready ReadyFunc) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	s := &Server{
		config:   config,
		sessions: sessions,
		ready:    ready,
	}

	mux := chi.NewMux()
	mux.Use(zerologMiddleware)
	mux.Use(zerologRecoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	if config.RequestTimeout > 0 {
		mux.Use(middleware.Timeout(config.RequestTimeout))
	}
	if config.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(config.RatePerMinute, 1*time.Minute))
	}
	if config.MaxConcurrentRequests > 0 {
		mux.Use(middleware.Throttle(config.MaxConcurrentRequests))
	}

	if config.EnableMetrics {
		mux.Handle("/server/metrics", observability.Handler())
	}
	mux.Get("/server/health", s.handleHealth)
	mux.Get("/server/ready", s.handleReady)

	mux.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.sessionCtx)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/token-managers", s.handleTokenManagers)
			r.Post("/refresh", s.handleRefresh)
			r.Put("/wallet", s.handleSetWallet)
			r.Put("/navigation", s.handleNavigate)
			r.Get("/config", s.handleConfig)
			r.Get("/modal", s.handleGetModal)
			r.Put("/modal", s.handleShowModal)
			r.Delete("/modal", s.handleDismissModal)
		})
	})

	s.mux = mux
	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           newCORSHandler(config.AllowedOrigins, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      config.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler including CORS.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving requests
func (s *Server) Start() error {
	Logger.Info().
		Str("address", s.config.Address).
		Bool("metrics", s.config.EnableMetrics).
		Msg("token manager dashboard API starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	Logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		Logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}
	return nil
}

// zerologMiddleware logs HTTP requests using zerolog
func zerologMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// zerologRecoverer recovers from panics and logs with zerolog
func zerologRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				Logger.Error().
					Interface("panic", rvr).
					Str("path", r.URL.Path).
					Msg("Recovered from panic")

				writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func newCORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// Wildcard origins cannot be combined with credentials.
	allowCredentials := !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: allowCredentials,
		MaxAge:           int(2 * time.Hour / time.Second),
	}).Handler(next)
}
