package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ncosentino/lore-bot/internal/answer"
	"github.com/ncosentino/lore-bot/internal/history"
	"github.com/ncosentino/lore-bot/internal/lore"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/lore/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all Prometheus metric registrations. If nil,
	// a fresh registry is created. Tests inject their own to stay hermetic.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Must refer to the same registry
	// as MetricsRegistry.
	MetricsGatherer prometheus.Gatherer
}

// lookupService is the interface handleLookup calls to run a hybrid search.
// *lore.Retriever satisfies it; tests inject a fake.
type lookupService interface {
	// Retrieve returns the top-k fused hits for the query.
	Retrieve(ctx context.Context, query string, k int) ([]lore.SearchHit, error)
}

// askService is the interface handleAsk calls to generate an answer.
// *answer.Answerer satisfies it; tests inject a fake.
type askService interface {
	// Ask retrieves context for the question and generates a cited answer.
	Ask(ctx context.Context, question string, k int) (*answer.Response, error)
}

// historyReader is the read side of the history store used by handleHistory.
type historyReader interface {
	// Recent returns the most recent n exchanges, newest-first.
	Recent(ctx context.Context, n int) ([]history.Exchange, error)
}

// Server is the HTTP server that exposes the lore knowledge base.
type Server struct {
	// lookup runs hybrid searches for GET /api/lore/lookup.
	lookup lookupService
	// ask generates answers for GET /api/lore/ask. May be nil when no chat
	// model is configured; the endpoint then returns 503.
	ask askService
	// hist serves GET /api/lore/history. May be nil when history is disabled.
	hist historyReader
	// histWriter persists ask exchanges. May be nil when history is disabled.
	histWriter history.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// lookupResponse is the JSON response for GET /api/lore/lookup.
type lookupResponse struct {
	// Question is the query as received.
	Question string `json:"question"`
	// Hits is the ranked result list, best first.
	Hits []lore.SearchHit `json:"hits"`
	// GeneratedAt is when the lookup completed.
	GeneratedAt time.Time `json:"generatedAt"`
}

// historyResponse is the JSON response for GET /api/lore/history.
type historyResponse struct {
	// Exchanges is the list of answered questions, newest-first.
	Exchanges []history.Exchange `json:"exchanges"`
}

// errorResponse is the JSON error body returned by all API endpoints.
type errorResponse struct {
	// Error is a human-readable description safe to show to callers.
	Error string `json:"error"`
}
