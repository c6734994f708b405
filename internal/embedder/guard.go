package embedder

import (
	"fmt"
	"strings"
)

// maxEmbedTokens is the largest estimated token count (characters / 4)
// accepted for a single input. Longer inputs fail rather than being
// silently truncated by the backend.
const maxEmbedTokens = 8000

// validateInputs rejects batches containing empty or over-long texts
// before any network call is made.
func validateInputs(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("embedder: input batch must not be empty")
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("embedder: input %d is empty", i)
		}
		if tokens := len(text) / 4; tokens > maxEmbedTokens {
			return fmt.Errorf("embedder: input %d is too long (~%d tokens, max %d)", i, tokens, maxEmbedTokens)
		}
	}
	return nil
}
