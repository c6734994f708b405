// Package answer generates grounded answers to lore questions. It runs the
// hybrid retriever to collect context, formats the hits into a prompt, and
// asks the configured chat model to answer with citations.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ncosentino/lore-bot/internal/budget"
	"github.com/ncosentino/lore-bot/internal/logging"
	"github.com/ncosentino/lore-bot/internal/lore"
)

const systemPrompt = `You are a helpful assistant that answers questions based on the provided context from a knowledge base.

Provide a comprehensive answer based only on the supplied context. If the context doesn't contain enough information to fully answer the question, indicate what information is missing. Always cite which sources you're using for your answer.`

// Response is a generated answer together with the hits it was grounded on.
type Response struct {
	// Question is the question as received.
	Question string `json:"question"`
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources lists the retrieval hits that were provided as context.
	Sources []lore.SearchHit `json:"sources"`
	// GeneratedAt is when the answer was produced.
	GeneratedAt time.Time `json:"generatedAt"`
}

// Answerer wires the retriever to a chat model.
type Answerer struct {
	// retriever supplies the context hits for each question.
	retriever *lore.Retriever
	// chat is the LLM backend constructed by the provider factory.
	chat model.ToolCallingChatModel
}

// New constructs an Answerer from the provided dependencies.
func New(retriever *lore.Retriever, chat model.ToolCallingChatModel) (*Answerer, error) {
	if retriever == nil {
		return nil, fmt.Errorf("answer: retriever must not be nil")
	}
	if chat == nil {
		return nil, fmt.Errorf("answer: chat model must not be nil")
	}
	return &Answerer{retriever: retriever, chat: chat}, nil
}

// Ask retrieves context for the question and generates a cited answer.
// k bounds the number of context hits; it is clamped the same way as a
// lookup.
func (a *Answerer) Ask(ctx context.Context, question string, k int) (*Response, error) {
	if err := lore.ValidateQuery(question); err != nil {
		return nil, err
	}

	hits, err := a.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieval failed: %w", err)
	}

	// Drop low-ranked context that would overflow the model's input window.
	hits = budget.TrimHits(hits, budget.DefaultMaxContextTokens)

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(buildPrompt(question, hits)),
	}

	start := time.Now()
	msg, err := a.chat.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer: generation failed: %w", err)
	}
	logging.FromContext(ctx).Debug("generated answer",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("context_hits", len(hits)),
	)

	text := msg.Content
	if strings.TrimSpace(text) == "" {
		text = "Unable to generate an answer."
	}

	return &Response{
		Question:    question,
		Answer:      text,
		Sources:     hits,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// buildPrompt formats the retrieval hits into the context block presented
// to the chat model.
func buildPrompt(question string, hits []lore.SearchHit) string {
	var sb strings.Builder
	sb.WriteString("Based on the following information from the knowledge base:\n\n")
	for _, hit := range hits {
		fmt.Fprintf(&sb, "**Source: %s**\n", hit.SourcePath)
		if hit.Title != "" {
			fmt.Fprintf(&sb, "Section: %s\n", hit.Title)
		}
		fmt.Fprintf(&sb, "Excerpt: %s\n", hit.Excerpt)
		fmt.Fprintf(&sb, "Relevance Score: %.2f\n\n", hit.FusedScore)
	}
	fmt.Fprintf(&sb, "Question: %s\n", question)
	return sb.String()
}

// SourcePaths returns the deduplicated source paths of a response's hits,
// joined with "; " for history persistence.
func (r *Response) SourcePaths() string {
	seen := make(map[string]bool, len(r.Sources))
	var paths []string
	for _, hit := range r.Sources {
		if !seen[hit.SourcePath] {
			seen[hit.SourcePath] = true
			paths = append(paths, hit.SourcePath)
		}
	}
	return strings.Join(paths, "; ")
}
