package server

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ncosentino/lore-bot/internal/answer"
	"github.com/ncosentino/lore-bot/internal/history"
	"github.com/ncosentino/lore-bot/internal/lore"
)

// ---------------------------------------------------------------------------
// Shared test doubles and server constructor
// ---------------------------------------------------------------------------

// fakeLookup is a test double for the lookupService interface. It records the
// arguments of the last call.
type fakeLookup struct {
	hits []lore.SearchHit
	err  error
	gotQ string
	gotK int
}

func (f *fakeLookup) Retrieve(_ context.Context, query string, k int) ([]lore.SearchHit, error) {
	f.gotQ = query
	f.gotK = k
	return f.hits, f.err
}

// fakeAsk is a test double for the askService interface.
type fakeAsk struct {
	resp *answer.Response
	err  error
	gotQ string
	gotK int
}

func (f *fakeAsk) Ask(_ context.Context, question string, k int) (*answer.Response, error) {
	f.gotQ = question
	f.gotK = k
	return f.resp, f.err
}

// fakeHistory is an in-memory test double for the history store.
type fakeHistory struct {
	appended  []history.Exchange
	appendErr error
	recent    []history.Exchange
	recentErr error
	gotN      int
}

func (f *fakeHistory) Append(_ context.Context, ex history.Exchange) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, ex)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, n int) ([]history.Exchange, error) {
	f.gotN = n
	return f.recent, f.recentErr
}

func (f *fakeHistory) Close() error { return nil }

// discardLogger returns a logger whose output is thrown away.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a minimal *Server with fake collaborators and a fresh
// isolated metrics registry.
func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		lookup: &fakeLookup{},
		cfg: &Config{
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		log:     discardLogger(),
		metrics: newServerMetrics(reg),
	}
}
