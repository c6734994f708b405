package lore

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// charsPerToken is the rough token heuristic used throughout segmentation:
// 1 token ≈ 4 characters. It trades exactness for zero dependency on a real
// tokenizer.
const charsPerToken = 4

// SegmenterConfig holds the token budgets for the markdown segmenter.
type SegmenterConfig struct {
	// TargetTokens is the soft budget per chunk.
	TargetTokens int
	// MaxTokens is the hard ceiling before forced splitting.
	MaxTokens int
	// OverlapTokens is the tail of the previous chunk carried into the next
	// so consecutive chunks share context across a split.
	OverlapTokens int
}

// Validate rejects budget orderings that would make segmentation misbehave.
// Violations are configuration errors, caught before any document is read.
func (c *SegmenterConfig) Validate() error {
	if c.TargetTokens <= 0 {
		return fmt.Errorf("segmenter: target_tokens must be positive, got %d", c.TargetTokens)
	}
	if c.MaxTokens < c.TargetTokens {
		return fmt.Errorf("segmenter: max_tokens (%d) must be >= target_tokens (%d)", c.MaxTokens, c.TargetTokens)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("segmenter: overlap_tokens must be >= 0, got %d", c.OverlapTokens)
	}
	return nil
}

var (
	// headingRe matches ATX headings of all six levels at line start.
	// Malformed heading syntax simply fails to match and is treated as body.
	headingRe = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)

	// frontMatterRe matches a fenced metadata header at the very start of
	// the document.
	frontMatterRe = regexp.MustCompile(`(?s)\A---[ \t]*\n.*?\n---[ \t]*\n`)

	// codeFenceRe matches fenced code blocks, which are never split internally.
	codeFenceRe = regexp.MustCompile("(?s)```.*?```")
)

// Segmenter splits raw markdown into structurally coherent, token-budgeted
// chunks. It is stateless after construction and safe for concurrent use.
type Segmenter struct {
	// cfg holds the validated token budgets.
	cfg SegmenterConfig
}

// NewSegmenter validates cfg and constructs a Segmenter.
func NewSegmenter(cfg SegmenterConfig) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{cfg: cfg}, nil
}

// section is one heading-delimited region of a document.
type section struct {
	// level is the heading level 1..6, or 0 for an untitled document.
	level int
	// title is the heading text, empty for an untitled section.
	title string
	// content is the body text up to the next heading.
	content string
	// anchorID is the slug of the title.
	anchorID string
}

// Segment splits content into chunk drafts: chunks without id, embedding, or
// content hash. Every emitted chunk inherits its section's title and anchor
// id; token estimate and word count are recomputed from the final content.
func (s *Segmenter) Segment(sourcePath, content string) []Chunk {
	content = stripFrontMatter(content)

	var chunks []Chunk
	for _, sec := range parseSections(content) {
		chunks = append(chunks, s.sectionChunks(sourcePath, sec)...)
	}
	return chunks
}

// stripFrontMatter removes a fenced metadata header at the very start of the
// document, if present.
func stripFrontMatter(content string) string {
	return frontMatterRe.ReplaceAllString(content, "")
}

// parseSections splits content into heading-delimited sections. A document
// with no headings becomes a single untitled section.
func parseSections(content string) []section {
	matches := headingRe.FindAllStringSubmatchIndex(content, -1)

	var sections []section
	for i, m := range matches {
		level := m[3] - m[2]
		title := strings.TrimSpace(content[m[4]:m[5]])

		start := m[1]
		end := len(content)
		if i < len(matches)-1 {
			end = matches[i+1][0]
		}

		sections = append(sections, section{
			level:    level,
			title:    title,
			content:  strings.TrimSpace(content[start:end]),
			anchorID: slugify(title),
		})
	}

	if len(sections) == 0 && strings.TrimSpace(content) != "" {
		sections = append(sections, section{content: content})
	}
	return sections
}

// slugify derives a GitHub-style anchor id from a heading title: lower-cased,
// spaces to hyphens, punctuation stripped.
func slugify(title string) string {
	if title == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case strings.ContainsRune(".,;:!?'\"()[]{}", r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sectionChunks turns one section into one or more chunks. A section that
// fits within the target budget is emitted verbatim; anything larger is
// split on paragraph boundaries with overlap between consecutive chunks.
func (s *Segmenter) sectionChunks(sourcePath string, sec section) []Chunk {
	if estimateTokens(sec.content) <= s.cfg.TargetTokens {
		return []Chunk{newChunk(sourcePath, sec, sec.content)}
	}

	var chunks []Chunk
	var buf strings.Builder
	bufTokens := 0

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			chunks = append(chunks, newChunk(sourcePath, sec, text))
		}
		buf.Reset()
		bufTokens = 0
	}

	for _, para := range splitParagraphs(sec.content) {
		paraTokens := estimateTokens(para)

		// A paragraph that alone exceeds the hard ceiling is broken up by
		// sentence, then word, boundaries.
		if paraTokens > s.cfg.MaxTokens {
			flush()
			for _, piece := range splitLargeParagraph(para, s.cfg.TargetTokens) {
				piece = strings.TrimSpace(piece)
				if piece != "" {
					chunks = append(chunks, newChunk(sourcePath, sec, piece))
				}
			}
			continue
		}

		if (bufTokens+paraTokens > s.cfg.TargetTokens && buf.Len() > 0) ||
			bufTokens+paraTokens > s.cfg.MaxTokens {
			flush()

			// Seed the next chunk with the tail of the previous one.
			if s.cfg.OverlapTokens > 0 && len(chunks) > 0 {
				tail := overlapTail(chunks[len(chunks)-1].Content, s.cfg.OverlapTokens)
				buf.WriteString(tail)
				buf.WriteByte('\n')
				bufTokens = estimateTokens(tail)
			}
		}

		buf.WriteString(para)
		buf.WriteByte('\n')
		bufTokens += paraTokens
	}

	flush()
	return chunks
}

// splitParagraphs splits body text on blank-line boundaries. Fenced code
// blocks are substituted with placeholders first so they survive the split
// as atomic units, then restored.
func splitParagraphs(content string) []string {
	placeholders := make(map[string]string)
	i := 0
	content = codeFenceRe.ReplaceAllStringFunc(content, func(block string) string {
		key := fmt.Sprintf("__CODE_BLOCK_%d__", i)
		placeholders[key] = block
		i++
		return key
	})

	var paras []string
	for _, p := range strings.Split(content, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for key, block := range placeholders {
			p = strings.ReplaceAll(p, key, block)
		}
		paras = append(paras, p)
	}
	return paras
}

// splitLargeParagraph breaks an oversized paragraph at sentence boundaries,
// and within an over-long sentence at word boundaries. Each piece is bounded
// by targetTokens measured in characters. A single unsplittable word longer
// than the budget is emitted whole — minimum progress beats non-termination.
func splitLargeParagraph(paragraph string, targetTokens int) []string {
	targetChars := targetTokens * charsPerToken

	var pieces []string
	var buf strings.Builder
	bufChars := 0

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			pieces = append(pieces, text)
		}
		buf.Reset()
		bufChars = 0
	}

	for _, sentence := range splitSentences(paragraph) {
		switch {
		case len(sentence) > targetChars:
			flush()
			for _, word := range strings.Split(sentence, " ") {
				if bufChars+len(word)+1 > targetChars && buf.Len() > 0 {
					flush()
				}
				if buf.Len() > 0 {
					buf.WriteByte(' ')
				}
				buf.WriteString(word)
				bufChars += len(word) + 1
			}

		case bufChars+len(sentence) > targetChars && buf.Len() > 0:
			flush()
			buf.WriteString(sentence)
			bufChars = len(sentence)

		default:
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(sentence)
			bufChars += len(sentence) + 1
		}
	}

	flush()
	return pieces
}

// splitSentences splits text after terminal punctuation followed by
// whitespace. RE2 has no lookbehind, so this is a hand-rolled scan.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && isSpace(text[i+1]) {
			sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(text) {
		if tail := strings.TrimSpace(text[start:]); tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

// isSpace reports whether b is ASCII whitespace.
func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}

// overlapTail returns the trailing overlapTokens*4 characters of content,
// or all of it when shorter.
func overlapTail(content string, overlapTokens int) string {
	overlapChars := overlapTokens * charsPerToken
	if len(content) <= overlapChars {
		return content
	}
	return content[len(content)-overlapChars:]
}

// estimateTokens applies the character-count heuristic.
func estimateTokens(text string) int {
	return len(text) / charsPerToken
}

// newChunk builds a chunk draft from the section metadata and final content.
func newChunk(sourcePath string, sec section, content string) Chunk {
	content = strings.TrimSpace(content)

	var headings []string
	if sec.title != "" {
		headings = []string{sec.title}
	}

	return Chunk{
		SourcePath: sourcePath,
		AnchorID:   sec.anchorID,
		Title:      sec.title,
		Headings:   headings,
		Content:    content,
		Tokens:     estimateTokens(content),
		WordCount:  len(strings.Fields(content)),
		UpdatedAt:  time.Now().UTC(),
	}
}
