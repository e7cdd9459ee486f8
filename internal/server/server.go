// Package server provides the HTTP API for the tracker.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/config"
	"github.com/briefly/tracker/internal/inference"
	"github.com/briefly/tracker/internal/learner"
	"github.com/briefly/tracker/internal/signallog"
	"github.com/briefly/tracker/internal/summarycache"
)

// SignalSink appends signals to the durable log.
type SignalSink interface {
	AppendBatch(ctx context.Context, signals []signallog.Signal) (total int, err error)
	Append(ctx context.Context, signal signallog.Signal) (total int, err error)
}

// LearnerRunner executes one preference-learning cycle.
type LearnerRunner interface {
	Run(ctx context.Context) (*learner.Report, error)
}

// SummaryCache is the shared first-writer-wins summary store.
type SummaryCache interface {
	Get(ctx context.Context, date string, articleID int) (*summarycache.Entry, error)
	PutIfAbsent(ctx context.Context, date string, articleID int, entry *summarycache.Entry) error
}

// Fetcher downloads article text, degrading to empty on failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) string
}

// Summarizer produces a structured summary from article text.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (*inference.Summary, error)
}

// Server is the HTTP server for the tracker API.
type Server struct {
	signals    SignalSink
	learner    LearnerRunner
	cache      SummaryCache
	fetcher    Fetcher
	summarizer Summarizer
	config     *config.ServerConfig
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	signals SignalSink,
	lr LearnerRunner,
	cache SummaryCache,
	fetcher Fetcher,
	summarizer Summarizer,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		signals:    signals,
		learner:    lr,
		cache:      cache,
		fetcher:    fetcher,
		summarizer: summarizer,
		config:     cfg,
		logger:     logger,
	}
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed",
			fmt.Sprintf("%s is not supported on %s", r.Method, r.URL.Path))
	})

	r.Post("/api/track-signals", s.handleTrackSignals)
	r.Post("/api/track-click", s.handleTrackClick)
	r.Post("/api/summarize", s.handleSummarize)
	r.Get("/api/analyze-preferences", s.handleAnalyzePreferences)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
