package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ncosentino/lore-bot/internal/history"
	"github.com/ncosentino/lore-bot/internal/lore"
)

// historyDefaultLimit is how many exchanges GET /api/lore/history returns
// when no n parameter is given. historyMaxLimit caps the parameter.
const (
	historyDefaultLimit = 20
	historyMaxLimit     = 100
)

// handleLookup handles GET /api/lore/lookup?q=...&k=... and returns the
// hybrid search results as JSON, best hit first.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q, k, err := searchParams(r)
	if err != nil {
		s.metrics.lookupRequestsTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := s.lookup.Retrieve(r.Context(), q, k)
	if err != nil {
		if errors.Is(err, lore.ErrEmptyQuery) || errors.Is(err, lore.ErrQueryTooLong) {
			s.metrics.lookupRequestsTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.lookupRequestsTotal.WithLabelValues("error").Inc()
		s.log.Error("lookup failed", "error", err, "query_len", len(q))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	s.metrics.lookupRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.lookupDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, lookupResponse{
		Question:    q,
		Hits:        hits,
		GeneratedAt: time.Now().UTC(),
	})
}

// handleAsk handles GET /api/lore/ask?q=...&k=.... It retrieves context,
// generates an answer with source citations, and records the exchange in
// the history store when one is configured.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.ask == nil {
		writeError(w, http.StatusServiceUnavailable, "no chat model configured")
		return
	}

	q, k, err := searchParams(r)
	if err != nil {
		s.metrics.askRequestsTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.ask.Ask(r.Context(), q, k)
	if err != nil {
		if errors.Is(err, lore.ErrEmptyQuery) || errors.Is(err, lore.ErrQueryTooLong) {
			s.metrics.askRequestsTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.askRequestsTotal.WithLabelValues("error").Inc()
		s.log.Error("ask failed", "error", err, "query_len", len(q))
		writeError(w, http.StatusInternalServerError, "answer generation failed")
		return
	}

	s.recordExchange(r.Context(), resp.Question, resp.Answer, resp.SourcePaths())

	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.askDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, resp)
}

// handleHistory handles GET /api/lore/history?n=... and returns the most
// recent answered questions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}

	n := historyDefaultLimit
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	if n > historyMaxLimit {
		n = historyMaxLimit
	}

	exchanges, err := s.hist.Recent(r.Context(), n)
	if err != nil {
		s.log.Error("history read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history read failed")
		return
	}
	if exchanges == nil {
		exchanges = []history.Exchange{}
	}

	writeJSON(w, http.StatusOK, historyResponse{Exchanges: exchanges})
}

// recordExchange persists an answered question to the history store. Failures
// are logged but never surfaced to the caller; the answer was already
// generated and history is best-effort.
func (s *Server) recordExchange(ctx context.Context, question, answer, sources string) {
	if s.histWriter == nil {
		return
	}
	ex := history.Exchange{
		Question:  question,
		Answer:    answer,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.histWriter.Append(ctx, ex); err != nil {
		s.log.Warn("recording exchange failed", "error", err)
	}
}

// searchParams extracts and validates the q and k query parameters shared by
// the lookup and ask endpoints. An absent k defaults; an explicit k outside
// 1..20 is rejected, never silently adjusted.
func searchParams(r *http.Request) (q string, k int, err error) {
	q = strings.TrimSpace(r.URL.Query().Get("q"))
	if err := lore.ValidateQuery(q); err != nil {
		return "", 0, err
	}

	k = lore.DefaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, perr := strconv.Atoi(raw)
		if perr != nil {
			return "", 0, errors.New("k must be an integer")
		}
		if err := lore.ValidateK(parsed); err != nil {
			return "", 0, err
		}
		k = parsed
	}
	return q, k, nil
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
