// Package orchestrator sequences provider calls for a single chapter:
// primary (context-aware) translation with bounded retries, fallback
// to the literal provider on content-policy rejections or retry
// exhaustion, and an optional polish pass over censored fallback
// output. It also enforces the inter-request delay both providers
// share, since rate limits are per API key, not per call site.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okovalov/seritran/internal/glossary"
	"github.com/okovalov/seritran/internal/novel"
	"github.com/okovalov/seritran/internal/translator"
)

// Config tunes retry and rate-shaping behavior.
type Config struct {
	// MaxAttempts is the total number of primary-provider attempts
	// per chapter, including the first (1 = no retries).
	MaxAttempts int
	// RetryDelay is the initial backoff; it doubles per retry.
	RetryDelay time.Duration
	// MinRequestInterval is the enforced minimum delay between any
	// two provider calls.
	MinRequestInterval time.Duration
	// UsePrimary selects whether the context-aware provider is used
	// for content at all. When false every chapter goes straight to
	// the literal provider.
	UsePrimary bool
}

// Polisher is the optional editor capability used after a
// content-policy rejection: the censored literal draft is handed back
// to the context-aware model for polishing.
type Polisher interface {
	Polish(ctx context.Context, draft string, terms map[string]string) (*translator.Result, error)
}

// AttemptFunc observes individual provider calls for the attempt log.
type AttemptFunc func(chapterIdx int, provider, outcome, errText string)

// Orchestrator drives the per-chapter fallback state machine.
type Orchestrator struct {
	primary  translator.Provider
	fallback translator.Provider
	polisher Polisher
	config   Config

	// OnAttempt, when set, is invoked after every provider call.
	OnAttempt AttemptFunc

	mu       sync.Mutex
	lastCall time.Time
}

// New creates an orchestrator over the two providers. primary may be
// nil when the context-aware provider is disabled; if it implements
// Polisher the censored polish pass is enabled.
func New(primary, fallback translator.Provider, config Config) *Orchestrator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	o := &Orchestrator{
		primary:  primary,
		fallback: fallback,
		config:   config,
	}
	if p, ok := primary.(Polisher); ok {
		o.polisher = p
	}
	return o
}

// TranslateChapter returns a copy of ch with its translated fields
// and terminal status filled in. A chapter that is already translated
// is returned unchanged with no provider call (idempotent resume).
// The returned error is non-nil only when both providers were
// exhausted; the chapter is then marked failed and the caller decides
// whether to continue the batch.
func (o *Orchestrator) TranslateChapter(ctx context.Context, ch novel.Chapter, g *glossary.Glossary) (novel.Chapter, error) {
	if ch.Status == novel.StatusTranslated {
		return ch, nil
	}

	var terms map[string]string
	if g != nil {
		terms = g.Flatten()
	}

	// Titles always go through the literal provider: short strings
	// need speed, not context. A failed title is not fatal to the
	// chapter; the source title is kept.
	if ch.TitleTranslated == "" && ch.Title != "" {
		if res, err := o.callFallback(ctx, ch.Title); err == nil {
			ch.TitleTranslated = res.Text
		} else {
			if ctx.Err() != nil {
				return ch, ctx.Err()
			}
			ch.TitleTranslated = ch.Title
		}
	}

	body, method, err := o.translateBody(ctx, ch.Index, ch.Body, terms)
	if err != nil {
		if ctx.Err() != nil {
			// An interrupted chapter stays pending, not failed.
			return ch, ctx.Err()
		}
		ch.Status = novel.StatusFailed
		ch.Method = novel.MethodNone
		return ch, err
	}

	ch.BodyTranslated = body
	ch.Status = novel.StatusTranslated
	ch.Method = method
	return ch, nil
}

// TranslateMetadata fills the work's translated title and
// description. The title uses the literal provider directly; the
// description goes through the primary with a cleanup instruction,
// falling back to the literal provider.
func (o *Orchestrator) TranslateMetadata(ctx context.Context, work *novel.Work, g *glossary.Glossary) error {
	if work.TitleTranslated == "" && work.Title != "" {
		res, err := o.callFallback(ctx, work.Title)
		if err != nil {
			return fmt.Errorf("failed to translate work title: %w", err)
		}
		work.TitleTranslated = res.Text
	}

	if work.DescriptionTranslated != "" || work.Description == "" {
		return nil
	}

	var terms map[string]string
	if g != nil {
		terms = g.Flatten()
	}

	if o.config.UsePrimary && o.primary != nil {
		req := translator.Request{
			Text:          work.Description,
			GlossaryTerms: terms,
			Instructions:  descriptionCleanupInstructions,
		}
		if res, err := o.tryPrimary(ctx, 0, req); err == nil {
			work.DescriptionTranslated = appendRawName(res.Text, work.Title)
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	res, err := o.callFallback(ctx, work.Description)
	if err != nil {
		return fmt.Errorf("failed to translate work description: %w", err)
	}
	work.DescriptionTranslated = appendRawName(res.Text, work.Title)
	return nil
}

// descriptionCleanupInstructions strips source-site boilerplate when
// translating descriptive text.
const descriptionCleanupInstructions = "6. ONLY return the main story synopsis\n" +
	"7. Remove character profiles, tags, reading guides, author notes, and upcoming-novel lists\n" +
	"8. Remove \"Latest Chapter:\", \"Update:\", footers, and advertisements\n"

// appendRawName keeps the untranslated title discoverable below the
// translated description.
func appendRawName(description, rawTitle string) string {
	if rawTitle == "" {
		return description
	}
	return fmt.Sprintf("%s\n\nRaw Novel Name: %s", description, rawTitle)
}

// translateBody runs the fallback chain for chapter content and
// reports which method produced the final text.
func (o *Orchestrator) translateBody(ctx context.Context, chapterIdx int, body string, terms map[string]string) (string, novel.Method, error) {
	if !o.config.UsePrimary || o.primary == nil {
		res, err := o.callFallbackLogged(ctx, chapterIdx, body)
		if err != nil {
			return "", novel.MethodNone, fmt.Errorf("literal translation failed: %w", err)
		}
		return res.Text, novel.MethodGoogle, nil
	}

	req := translator.Request{
		Text:          body,
		GlossaryTerms: terms,
		ChapterNumber: chapterIdx,
	}

	primaryRes, primaryErr := o.tryPrimary(ctx, chapterIdx, req)
	if primaryErr == nil {
		return primaryRes.Text, novel.MethodGemini, nil
	}
	if ctx.Err() != nil {
		return "", novel.MethodNone, ctx.Err()
	}

	fallbackRes, fallbackErr := o.callFallbackLogged(ctx, chapterIdx, body)
	if fallbackErr != nil {
		return "", novel.MethodNone, fmt.Errorf("both providers failed: primary: %v; fallback: %w", primaryErr, fallbackErr)
	}

	// After a deterministic content rejection the raw source will
	// never pass the primary's filter, but a censored English draft
	// often will. Keep the literal draft if polishing fails too.
	if errors.Is(primaryErr, translator.ErrContentPolicy) && o.polisher != nil {
		if err := o.waitTurn(ctx); err != nil {
			return "", novel.MethodNone, err
		}
		polished, err := o.polisher.Polish(ctx, Censor(fallbackRes.Text), terms)
		o.recordAttempt(chapterIdx, o.primary.Name(), outcomeOf(err, "polished"), err)
		if err == nil {
			return polished.Text, novel.MethodGeminiPolished, nil
		}
		if ctx.Err() != nil {
			return "", novel.MethodNone, ctx.Err()
		}
	}

	return fallbackRes.Text, novel.MethodGoogle, nil
}

// tryPrimary calls the context-aware provider with exponential
// backoff on transient errors. Content-policy rejections are
// deterministic and abort the retry loop immediately.
func (o *Orchestrator) tryPrimary(ctx context.Context, chapterIdx int, req translator.Request) (*translator.Result, error) {
	delay := o.config.RetryDelay

	var lastErr error
	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		if err := o.waitTurn(ctx); err != nil {
			return nil, err
		}

		res, err := o.primary.Translate(ctx, req)
		o.recordAttempt(chapterIdx, o.primary.Name(), outcomeOf(err, "success"), err)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, translator.ErrContentPolicy) || errors.Is(err, translator.ErrUnavailable) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < o.config.MaxAttempts {
			if err := wait(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}
	}

	return nil, lastErr
}

func (o *Orchestrator) callFallbackLogged(ctx context.Context, chapterIdx int, text string) (*translator.Result, error) {
	res, err := o.callFallback(ctx, text)
	o.recordAttempt(chapterIdx, o.fallback.Name(), outcomeOf(err, "success"), err)
	return res, err
}

func (o *Orchestrator) callFallback(ctx context.Context, text string) (*translator.Result, error) {
	if err := o.waitTurn(ctx); err != nil {
		return nil, err
	}
	return o.fallback.Translate(ctx, translator.Request{Text: text})
}

// waitTurn enforces MinRequestInterval between provider calls.
func (o *Orchestrator) waitTurn(ctx context.Context) error {
	o.mu.Lock()
	pause := o.config.MinRequestInterval - time.Since(o.lastCall)
	if pause > 0 {
		o.mu.Unlock()
		if err := wait(ctx, pause); err != nil {
			return err
		}
		o.mu.Lock()
	}
	o.lastCall = time.Now()
	o.mu.Unlock()
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) recordAttempt(chapterIdx int, provider, outcome string, err error) {
	if o.OnAttempt == nil {
		return
	}
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	o.OnAttempt(chapterIdx, provider, outcome, errText)
}

func outcomeOf(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, translator.ErrContentPolicy):
		return "content_policy"
	case errors.Is(err, translator.ErrTransient):
		return "transient_error"
	case errors.Is(err, translator.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
