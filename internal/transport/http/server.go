package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reshetovitsme/tag-feed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tag-feed/internal/shared/config"
	sloghttp "github.com/samber/slog-http"
)

// FeedPublisher is what the HTTP layer needs from the feed service
type FeedPublisher interface {
	Publish(ctx context.Context) ([]byte, error)
	Latest(ctx context.Context) ([]byte, error)
	ContentType() string
}

// Server serves the published feed over HTTP
type Server struct {
	cfg       *config.Config
	publisher FeedPublisher
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server
func New(cfg *config.Config, publisher FeedPublisher) *Server {
	return &Server{
		cfg:       cfg,
		publisher: publisher,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handler returns the routed handler wrapped in logging and recovery
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Feed endpoints
	mux.HandleFunc("GET /rss", s.handleFeed)
	mux.HandleFunc("GET /feed", s.handleFeed)

	// Health check endpoint
	mux.HandleFunc("GET /health", s.handleHealth)

	// Root endpoint with instructions
	mux.HandleFunc("GET /{$}", s.handleRoot)

	handler := sloghttp.Recovery(mux)
	return sloghttp.New(s.logger)(handler)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.HTTPPort)
	s.logger.Info("Feed server starting", "addr", addr, "publish_mode", s.cfg.PublishMode)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.FetchTimeoutDuration() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	var (
		body []byte
		err  error
	)
	if s.cfg.PublishMode == domain.PublishModeScheduled {
		body, err = s.publisher.Latest(r.Context())
	} else {
		body, err = s.publisher.Publish(r.Context())
	}
	if err != nil {
		s.logger.Error("Error publishing feed", "error", err)
		http.Error(w, "Failed to publish feed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", s.publisher.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Release Feed</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        h1 { color: #333; }
        .info { background: #f5f5f5; padding: 15px; border-radius: 5px; margin: 20px 0; }
        code { background: #e8e8e8; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <h1>Release Feed Service</h1>
    <div class="info">
        <p>This service publishes the latest tagged releases as a feed.</p>
        <p>Subscribe to: <code>/rss</code></p>
    </div>
    <p><a href="/health">Health Check</a></p>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}
