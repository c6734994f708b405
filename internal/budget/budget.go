// Package budget provides token budget estimation and context trimming for
// answer generation. Because lorebot supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/ncosentino/lore-bot/internal/lore"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for retrieved context in
	// tokens. Conservative enough to fit within 8k-context models (Llama 3 8B,
	// GPT-3.5) while leaving room for the question and the output.
	DefaultMaxContextTokens = 6000

	// hitOverheadTokens is the per-hit formatting overhead: the source,
	// section, and score lines wrapped around each excerpt in the prompt.
	hitOverheadTokens = 20
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateHit returns the estimated token cost of one hit as rendered into
// the answer prompt: formatting overhead plus title and excerpt.
func EstimateHit(hit lore.SearchHit) int {
	return hitOverheadTokens + Estimate(hit.Title) + Estimate(hit.Excerpt)
}

// TrimHits drops hits from the tail of the ranked list until the estimated
// total token cost fits within maxTokens. Hits arrive best-first, so the
// least relevant context is dropped first. The top hit is always kept even
// when it alone exceeds the budget, so the model sees some context.
func TrimHits(hits []lore.SearchHit, maxTokens int) []lore.SearchHit {
	if len(hits) <= 1 {
		return hits
	}

	total := 0
	for i, hit := range hits {
		total += EstimateHit(hit)
		if total > maxTokens && i > 0 {
			return hits[:i]
		}
	}
	return hits
}
