// Package server implements the HTTP server that exposes the lore knowledge
// base via a REST API: hybrid lookup, question answering, and query history.
// The server is started by the `lorebot serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ncosentino/lore-bot/internal/history"
	"github.com/ncosentino/lore-bot/internal/logging"
)

// Options carries the collaborators the server exposes over HTTP.
type Options struct {
	// Lookup runs hybrid searches. Required.
	Lookup lookupService
	// Ask generates answers. Optional; GET /api/lore/ask returns 503 when nil.
	Ask askService
	// History persists and serves past exchanges. Optional; GET /api/lore/history
	// returns 503 when nil and ask exchanges are not recorded.
	History history.Store
}

// New constructs a Server from the provided collaborators and config.
func New(opts Options, cfg *Config) (*Server, error) {
	if opts.Lookup == nil {
		return nil, fmt.Errorf("server: lookup service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover answer generation, which can take a while
		// on slower chat backends.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		reg := prometheus.NewRegistry()
		cfg.MetricsRegistry = reg
		cfg.MetricsGatherer = reg
	}

	s := &Server{
		lookup:  opts.Lookup,
		ask:     opts.Ask,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}
	if opts.History != nil {
		s.hist = opts.History
		s.histWriter = opts.History
	}

	rps := cfg.RateLimit
	if rps == 0 {
		rps = defaultRateLimit
	}
	burst := cfg.RateBurst
	if burst == 0 {
		burst = defaultRateBurst
	}
	if cfg.APIKey == "" {
		s.log.Warn("no API key configured; authentication is disabled")
	}

	rl, stopRL := newRateLimiter(rps, burst, cfg.Logger)
	s.stopRL = stopRL

	protect := func(h http.HandlerFunc) http.Handler {
		return rl.middleware(authMiddleware(cfg.APIKey, h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/lore/lookup", protect(s.handleLookup))
	mux.Handle("GET /api/lore/ask", protect(s.handleAsk))
	mux.Handle("GET /api/lore/history", protect(s.handleHistory))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
