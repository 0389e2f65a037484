package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/carecompanion/n1/internal/logging"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
)

type Server struct {
	store     *store.SQLiteStore
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
	clock     session.Clock
	logger    *zap.Logger
}

type Option func(*Server)

func WithClock(c session.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func New(s *store.SQLiteStore, port int, tokenFile string, opts ...Option) *Server {
	srv := &Server{
		store:     s,
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		router:    http.NewServeMux(),
		startTime: time.Now(),
		clock:     session.SystemClock{},
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.logger = logging.OrNop(srv.logger)

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)

	// Experiment API, keyed by user (protected)
	s.router.Handle("/api/experiment", s.apiAuth(http.HandlerFunc(s.handleExperiment)))
	s.router.Handle("/api/experiment/begin", s.apiAuth(http.HandlerFunc(s.handleBegin)))
	s.router.Handle("/api/experiment/observations", s.apiAuth(http.HandlerFunc(s.handleObservations)))
	s.router.Handle("/api/experiment/end", s.apiAuth(http.HandlerFunc(s.handleEnd)))
	s.router.Handle("/api/experiment/result", s.apiAuth(http.HandlerFunc(s.handleResult)))
	s.router.Handle("/api/experiment/export", s.apiAuth(http.HandlerFunc(s.handleExport)))

	// Dashboard endpoints (protected)
	s.router.Handle("/dashboard", s.authMiddleware(http.HandlerFunc(s.handleDashboard)))
	s.router.Handle("/dashboard/user/", s.authMiddleware(http.HandlerFunc(s.handleDashboardUser)))
}

func (s *Server) Start() error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.String("path", s.tokenFile), zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", s.port)

	fmt.Println()
	fmt.Printf("n1 running on http://localhost:%d\n", s.port)
	fmt.Printf("Dashboard: http://localhost:%d/dashboard?token=%s\n", s.port, s.token)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	s.logger.Info("server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
