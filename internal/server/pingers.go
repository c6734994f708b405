package server

import (
	"context"
	"fmt"

	"github.com/ncosentino/lore-bot/internal/lore"
	"github.com/ncosentino/lore-bot/internal/store"
)

// PostgresPinger probes the chunk store's Postgres connection pool.
// It satisfies the Pinger interface and is used by GET /api/ready.
type PostgresPinger struct {
	// store is the chunk store whose pool is probed.
	store *store.PostgresStore
}

// NewPostgresPinger constructs a PostgresPinger for the given store.
func NewPostgresPinger(s *store.PostgresStore) *PostgresPinger {
	return &PostgresPinger{store: s}
}

// Name returns the dependency label used in readiness responses.
func (p *PostgresPinger) Name() string { return "postgres" }

// Ping checks that the database accepts connections.
func (p *PostgresPinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a single short
// string. It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// embedder is the backend to probe.
	embedder lore.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(e lore.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: e}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a one-word probe text and checks a vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vectors, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}
