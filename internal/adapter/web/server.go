// Package web exposes the admin HTTP API plus health, readiness, and
// metrics endpoints.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quakewatch/eq-records/internal/adapter/auth"
	"github.com/quakewatch/eq-records/internal/adapter/forecast"
	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/ingest"
)

// RecordStore is the write side of the record table.
type RecordStore interface {
	Create(ctx context.Context, record domain.Record) (domain.Record, error)
	Update(ctx context.Context, id string, patch domain.Patch) (domain.Record, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// RecordView is the synchronized read side.
type RecordView interface {
	Records() []domain.Record
	Loading() bool
}

// Ingestor runs the CSV upload pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, fileName string, data []byte) (*ingest.Outcome, error)
}

// Authenticator handles operator sessions.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) *auth.User
}

// Server is the admin API server.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux

	store     RecordStore
	view      RecordView
	ingestor  Ingestor
	auth      Authenticator
	forecasts forecast.Service

	maxUploadBytes int64
	logger         *slog.Logger
}

// NewServer wires the admin API routes.
func NewServer(addr string, store RecordStore, view RecordView, ingestor Ingestor, authenticator Authenticator, forecasts forecast.Service, maxUploadBytes int64, logger *slog.Logger) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		store:          store,
		view:           view,
		ingestor:       ingestor,
		auth:           authenticator,
		forecasts:      forecasts,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(s.requestLogger)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/records", s.handleListRecords)
			r.Post("/records", s.handleCreateRecord)
			r.Patch("/records/{id}", s.handleUpdateRecord)
			r.Delete("/records/{id}", s.handleDeleteRecord)
			r.Post("/records/upload", s.handleUpload)

			r.Get("/predictions", s.handlePredictions)
			r.Post("/predictions/generate", s.handleGeneratePredictions)
		})
	})
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type contextKey string

const userContextKey contextKey = "user"

// requireAuth rejects requests whose bearer token does not resolve to a
// user.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user := s.auth.GetUser(r.Context(), token)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

// userFrom returns the authenticated user requireAuth attached to the
// request context, or nil outside the gated routes.
func userFrom(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userContextKey).(*auth.User)
	return user
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
