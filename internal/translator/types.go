// Package translator defines the translation provider abstraction and
// the two concrete providers used by the pipeline: the context-aware
// Gemini provider (glossary-honoring, used for chapter content and
// descriptions) and the literal Google Translate provider (used for
// titles and as the fallback for content).
package translator

import (
	"context"
	"errors"
	"time"
)

const (
	// SourceLang and TargetLang fix the only language pair the
	// pipeline handles.
	SourceLang = "zh-CN"
	TargetLang = "en"
)

// Sentinel errors used to classify provider failures. Callers match
// with errors.Is.
var (
	// ErrTransient marks rate-limit and network failures that are
	// worth retrying on the same provider.
	ErrTransient = errors.New("transient provider error")
	// ErrContentPolicy marks a provider refusing to produce output.
	// Deterministic: never retried on the same provider.
	ErrContentPolicy = errors.New("content policy rejection")
	// ErrUnavailable marks a provider that is not configured or could
	// not be initialized.
	ErrUnavailable = errors.New("provider unavailable")
)

// Request is one translation unit handed to a provider.
type Request struct {
	Text string
	// GlossaryTerms maps source terms to fixed renderings. Honored by
	// the context-aware provider only; the literal provider ignores it.
	GlossaryTerms map[string]string
	// Instructions carries extra prompt instructions, e.g. the
	// description cleanup directive. Ignored by the literal provider.
	Instructions string
	// ChapterNumber is included in the prompt for context when > 0.
	ChapterNumber int
}

// Result is a successful provider response.
type Result struct {
	Text    string
	Model   string
	Latency time.Duration
}

// Provider is a stateless translation capability.
type Provider interface {
	Name() string
	Translate(ctx context.Context, req Request) (*Result, error)
}
