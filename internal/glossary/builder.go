package glossary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okovalov/seritran/internal/chunker"
	"github.com/okovalov/seritran/internal/novel"
)

const (
	// DefaultMaxSample bounds how many chapters feed the glossary
	// build regardless of work length.
	DefaultMaxSample = 10

	// maxChapterSampleRunes caps each sampled chapter's contribution.
	maxChapterSampleRunes = 3000
	// maxCombinedSampleRunes caps the whole sample sent to the model.
	maxCombinedSampleRunes = 15000
)

// ErrDegraded marks a build that fell back to an empty glossary
// because the model was unavailable or returned unusable output.
// Callers should log the condition and continue without glossary
// assistance rather than abort the run.
var ErrDegraded = errors.New("glossary build degraded to empty")

// TermExtractor is the model capability the builder needs: one call
// that turns a combined chapter sample into raw categorized JSON.
// Implemented by translator.GeminiService.
type TermExtractor interface {
	GenerateGlossary(ctx context.Context, sample string) (string, error)
}

// Builder derives a Glossary from a work's opening chapters.
type Builder struct {
	extractor TermExtractor
}

// NewBuilder creates a glossary builder backed by the given extractor.
func NewBuilder(extractor TermExtractor) *Builder {
	return &Builder{extractor: extractor}
}

// Build analyzes at most maxSample chapters (in source order) and
// returns the extracted glossary. maxSample ≤ 0 uses DefaultMaxSample.
//
// The sample chapters must be non-empty; that is a caller bug and
// returns a plain error. Extractor failure or unparseable output
// degrades to an empty glossary wrapped in ErrDegraded instead, so a
// run can proceed unassisted.
func (b *Builder) Build(ctx context.Context, chapters []novel.Chapter, maxSample int) (*Glossary, error) {
	if len(chapters) == 0 {
		return nil, fmt.Errorf("glossary build requires at least one sample chapter")
	}
	if maxSample <= 0 {
		maxSample = DefaultMaxSample
	}
	if len(chapters) > maxSample {
		chapters = chapters[:maxSample]
	}

	raw, err := b.extractor.GenerateGlossary(ctx, combineSample(chapters))
	if err != nil {
		return New(), fmt.Errorf("%w: %v", ErrDegraded, err)
	}

	g, err := Parse(raw)
	if err != nil {
		return New(), fmt.Errorf("%w: %v", ErrDegraded, err)
	}
	return g, nil
}

// combineSample concatenates the sampled chapter bodies with chapter
// markers, bounding both per-chapter and total size.
func combineSample(chapters []novel.Chapter) string {
	parts := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		body := chunker.Truncate(ch.Body, maxChapterSampleRunes)
		parts = append(parts, fmt.Sprintf("Chapter %d:\n%s", ch.Index, body))
	}
	return chunker.Truncate(strings.Join(parts, "\n\n"), maxCombinedSampleRunes)
}

// Parse decodes the model's JSON glossary response. The decode is
// token-level so that when the model emits the same source term twice
// the first rendering wins — encoding/json's map decoding would
// silently keep the last.
func Parse(raw string) (*Glossary, error) {
	raw = stripFences(raw)
	dec := json.NewDecoder(strings.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("glossary response is not JSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("glossary response is not a JSON object")
	}

	g := New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("malformed glossary JSON: %w", err)
		}
		key, _ := keyTok.(string)

		cat, known := knownCategory(key)
		if !known {
			// Unknown top-level keys are skipped wholesale.
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return nil, fmt.Errorf("malformed glossary JSON: %w", err)
			}
			continue
		}

		if err := parseCategory(dec, g, cat); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// parseCategory consumes one nested {"term": "rendering", ...}
// object, adding entries with first-occurrence-wins semantics.
func parseCategory(dec *json.Decoder, g *Glossary, cat Category) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("malformed glossary category %q: %w", cat, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		// Category present but not an object; ignore it.
		return skipValue(dec, tok)
	}

	for dec.More() {
		termTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("malformed glossary category %q: %w", cat, err)
		}
		term, _ := termTok.(string)

		var rawVal json.RawMessage
		if err := dec.Decode(&rawVal); err != nil {
			return fmt.Errorf("malformed glossary category %q: %w", cat, err)
		}
		var rendering string
		if err := json.Unmarshal(rawVal, &rendering); err != nil {
			continue // non-string rendering, skip the term
		}
		g.Add(cat, term, rendering)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("malformed glossary category %q: %w", cat, err)
	}
	return nil
}

// skipValue discards the remainder of a value whose opening token was
// already consumed.
func skipValue(dec *json.Decoder, tok json.Token) error {
	if _, ok := tok.(json.Delim); !ok {
		return nil // scalar, already consumed
	}
	depth := 1
	for depth > 0 {
		t, err := dec.Token()
		if err != nil {
			return fmt.Errorf("malformed glossary JSON: %w", err)
		}
		if d, ok := t.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// stripFences removes a markdown code fence around the JSON body.
// The model wraps responses in ```json fences despite instructions.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "```json"); idx >= 0 {
		raw = raw[idx+len("```json"):]
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	} else if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```")
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	}
	return strings.TrimSpace(raw)
}

func knownCategory(key string) (Category, bool) {
	for _, cat := range Categories {
		if key == string(cat) {
			return cat, true
		}
	}
	return "", false
}
