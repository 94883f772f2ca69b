// Package pipeline drives the full translation pass over one work:
// presence check of raw chapters, one-time glossary build, sequential
// chapter translation with persistent per-chapter state, and handoff
// of completed chapters to the publisher. Every pass is safe to
// re-invoke: completed steps become no-ops and completed chapters are
// never retranslated.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okovalov/seritran/internal/glossary"
	"github.com/okovalov/seritran/internal/novel"
	"github.com/okovalov/seritran/internal/store"
)

// Source supplies raw (untranslated) chapters. Fetching and parsing
// the source site is outside the pipeline; it only consumes files the
// crawler produced.
type Source interface {
	Exists(workID string) bool
	Chapters(workID string) ([]novel.Chapter, error)
}

// Publisher hands finished content to the platform. Retries of failed
// publishes are the publisher side's responsibility.
type Publisher interface {
	PublishWork(ctx context.Context, work *novel.Work) (int64, error)
	PublishChapter(ctx context.Context, storyID int64, ch novel.Chapter) (int64, error)
}

// Translator is the per-chapter orchestration capability, implemented
// by orchestrator.Orchestrator.
type Translator interface {
	TranslateChapter(ctx context.Context, ch novel.Chapter, g *glossary.Glossary) (novel.Chapter, error)
	TranslateMetadata(ctx context.Context, work *novel.Work, g *glossary.Glossary) error
}

// GlossaryBuilder derives a glossary from sample chapters,
// implemented by glossary.Builder.
type GlossaryBuilder interface {
	Build(ctx context.Context, chapters []novel.Chapter, maxSample int) (*glossary.Glossary, error)
}

// Config is the immutable pipeline configuration, read once at
// startup.
type Config struct {
	// NovelsDir is the root of the per-work directory layout.
	NovelsDir string
	// MaxSampleChapters bounds the glossary build sample (≤0 uses the
	// builder default).
	MaxSampleChapters int
	// MaxChaptersPerRun caps how many pending chapters one invocation
	// processes (0 = unlimited), enabling incremental crawls.
	MaxChaptersPerRun int
	// RetryFailed resets failed chapters to pending before the pass.
	RetryFailed bool
}

// Result summarizes one pipeline pass. FailedChapters enumerates
// every chapter index left in the failed state so they can be
// targeted for manual retry.
type Result struct {
	TranslatedPrimary  int
	TranslatedFallback int
	Failed             int
	Skipped            int
	FailedChapters     []int
}

// Summary renders the run report.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "translated by primary: %d\n", r.TranslatedPrimary)
	fmt.Fprintf(&sb, "translated by fallback: %d\n", r.TranslatedFallback)
	fmt.Fprintf(&sb, "failed: %d\n", r.Failed)
	fmt.Fprintf(&sb, "skipped (already done): %d\n", r.Skipped)
	if len(r.FailedChapters) > 0 {
		idx := make([]string, 0, len(r.FailedChapters))
		for _, i := range r.FailedChapters {
			idx = append(idx, fmt.Sprintf("%d", i))
		}
		fmt.Fprintf(&sb, "failed chapter indices: %s\n", strings.Join(idx, ", "))
	}
	return sb.String()
}

// Pipeline sequences the fixed passes for one work.
type Pipeline struct {
	source     Source
	db         *store.Store
	publisher  Publisher
	translator Translator
	builder    GlossaryBuilder
	config     Config

	// Logf receives progress and warning lines; defaults to stderr.
	Logf func(format string, args ...any)
}

// New wires a pipeline. publisher and builder may be nil to disable
// publishing and glossary building respectively.
func New(source Source, db *store.Store, publisher Publisher, translator Translator, builder GlossaryBuilder, config Config) *Pipeline {
	return &Pipeline{
		source:     source,
		db:         db,
		publisher:  publisher,
		translator: translator,
		builder:    builder,
		config:     config,
		Logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
	}
}

// GlossaryPath returns the work's glossary file location.
func (p *Pipeline) GlossaryPath(workID string) string {
	return filepath.Join(p.config.NovelsDir, "novel_"+workID, "glossary.json")
}

// Run executes one pass over the work. It is safe to re-invoke at any
// point: chapters already translated are skipped without provider
// calls, and interruption between chapters leaves every in-flight
// chapter pending.
func (p *Pipeline) Run(ctx context.Context, workID, title, description string) (*Result, error) {
	// Pass 1: raw chapters must already be present.
	if !p.source.Exists(workID) {
		return nil, fmt.Errorf("no raw chapters found for work %s; fetch them first", workID)
	}
	rawChapters, err := p.source.Chapters(workID)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw chapters: %w", err)
	}
	if len(rawChapters) == 0 {
		return nil, fmt.Errorf("work %s has no chapters", workID)
	}

	if err := p.db.EnsureWork(ctx, workID, title, description); err != nil {
		return nil, fmt.Errorf("failed to register work: %w", err)
	}
	if err := p.db.SeedChapters(ctx, workID, rawChapters); err != nil {
		return nil, fmt.Errorf("failed to seed chapters: %w", err)
	}
	if p.config.RetryFailed {
		n, err := p.db.ResetFailed(ctx, workID)
		if err != nil {
			return nil, fmt.Errorf("failed to reset failed chapters: %w", err)
		}
		if n > 0 {
			p.Logf("reset %d failed chapter(s) to pending", n)
		}
	}

	// Pass 2: glossary — load once per run, build only when absent.
	g, err := p.ensureGlossary(ctx, workID, rawChapters)
	if err != nil {
		return nil, err
	}

	// Pass 3: metadata, then chapters in ascending index order.
	work, storyID, err := p.ensureMetadata(ctx, workID, g)
	if err != nil {
		return nil, err
	}

	result, err := p.translateChapters(ctx, work, storyID, rawChapters, g)
	if err != nil {
		return result, err
	}

	return result, nil
}

// ensureGlossary loads the work's glossary or builds one from the
// opening chapters. Build failure degrades to an empty glossary with
// a warning: chapters proceed unassisted rather than blocking the run.
func (p *Pipeline) ensureGlossary(ctx context.Context, workID string, chapters []novel.Chapter) (*glossary.Glossary, error) {
	path := p.GlossaryPath(workID)

	g, err := glossary.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load glossary: %w", err)
	}
	if g.Len() > 0 {
		p.Logf("loaded glossary with %d entries", g.Len())
		return g, nil
	}
	if p.builder == nil {
		return g, nil
	}

	p.Logf("building glossary from the first %d chapter(s)...", min(len(chapters), sampleSize(p.config.MaxSampleChapters)))
	built, err := p.builder.Build(ctx, chapters, p.config.MaxSampleChapters)
	if err != nil {
		if errors.Is(err, glossary.ErrDegraded) {
			p.Logf("warning: %v; continuing without glossary", err)
			return built, nil
		}
		return nil, fmt.Errorf("glossary build failed: %w", err)
	}

	if built.Len() > 0 {
		if err := glossary.Save(path, built); err != nil {
			return nil, fmt.Errorf("failed to save glossary: %w", err)
		}
		p.Logf("glossary saved with %d entries", built.Len())
	}
	return built, nil
}

func sampleSize(configured int) int {
	if configured > 0 {
		return configured
	}
	return glossary.DefaultMaxSample
}

// ensureMetadata translates and publishes the work record once,
// reusing stored results on later passes. A publish failure is warned
// about, not fatal: chapters are still translated, and publishing is
// retried on the next pass.
func (p *Pipeline) ensureMetadata(ctx context.Context, workID string, g *glossary.Glossary) (*novel.Work, int64, error) {
	rec, err := p.db.GetWork(ctx, workID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load work record: %w", err)
	}

	work := &novel.Work{
		ID:                    rec.ID,
		Title:                 rec.Title,
		TitleTranslated:       rec.TitleTranslated,
		Description:           rec.Description,
		DescriptionTranslated: rec.DescriptionTranslated,
	}

	if work.TitleTranslated == "" || (work.Description != "" && work.DescriptionTranslated == "") {
		if err := p.translator.TranslateMetadata(ctx, work, g); err != nil {
			return nil, 0, fmt.Errorf("failed to translate metadata: %w", err)
		}
		if err := p.db.SetWorkTranslation(ctx, workID, work.TitleTranslated, work.DescriptionTranslated); err != nil {
			return nil, 0, fmt.Errorf("failed to store metadata translation: %w", err)
		}
	}

	storyID := rec.PublishedID
	if storyID == 0 && p.publisher != nil {
		id, err := p.publisher.PublishWork(ctx, work)
		if err != nil {
			p.Logf("warning: failed to publish work: %v", err)
		} else {
			storyID = id
			if err := p.db.SetWorkPublishedID(ctx, workID, id); err != nil {
				return nil, 0, fmt.Errorf("failed to store published id: %w", err)
			}
		}
	}
	return work, storyID, nil
}

// translateChapters runs the orchestrator over every pending chapter
// in index order, bounded by MaxChaptersPerRun. A failed chapter
// never aborts the batch.
func (p *Pipeline) translateChapters(ctx context.Context, work *novel.Work, storyID int64, rawChapters []novel.Chapter, g *glossary.Glossary) (*Result, error) {
	states, err := p.db.ChapterStates(ctx, work.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapter states: %w", err)
	}
	byIndex := make(map[int]store.ChapterState, len(states))
	for _, st := range states {
		byIndex[st.Index] = st
	}

	sort.Slice(rawChapters, func(i, j int) bool { return rawChapters[i].Index < rawChapters[j].Index })

	result := &Result{}
	processed := 0

	for _, raw := range rawChapters {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		st, ok := byIndex[raw.Index]
		if ok && st.Status == novel.StatusTranslated {
			result.Skipped++
			if st.PublishedID == 0 {
				p.publishChapter(ctx, work.ID, storyID, chapterFromState(raw, st))
			}
			continue
		}
		if ok && st.Status == novel.StatusFailed {
			result.FailedChapters = append(result.FailedChapters, raw.Index)
			continue
		}

		// Past the cap the scan keeps going so translated and failed
		// rows are still accounted for; only translation work stops.
		if p.config.MaxChaptersPerRun > 0 && processed >= p.config.MaxChaptersPerRun {
			continue
		}
		processed++

		ch := raw
		ch.Status = novel.StatusPending

		translated, err := p.translator.TranslateChapter(ctx, ch, g)
		if err != nil {
			if ctx.Err() != nil {
				// Interrupted mid-chapter: nothing persisted, chapter
				// stays pending.
				return result, ctx.Err()
			}
			p.Logf("chapter %d failed: %v", ch.Index, err)
			if serr := p.db.SaveChapterResult(ctx, work.ID, translated); serr != nil {
				return result, fmt.Errorf("failed to record chapter %d failure: %w", ch.Index, serr)
			}
			result.FailedChapters = append(result.FailedChapters, ch.Index)
			continue
		}

		if err := p.db.SaveChapterResult(ctx, work.ID, translated); err != nil {
			return result, fmt.Errorf("failed to store chapter %d: %w", ch.Index, err)
		}

		if translated.Method.Primary() {
			result.TranslatedPrimary++
		} else {
			result.TranslatedFallback++
		}
		p.Logf("chapter %d translated (%s)", translated.Index, translated.Method)

		p.publishChapter(ctx, work.ID, storyID, translated)
	}

	result.Failed = len(result.FailedChapters)
	return result, nil
}

// publishChapter hands one finished chapter to the platform. Errors
// are warned about and left for the next pass.
func (p *Pipeline) publishChapter(ctx context.Context, workID string, storyID int64, ch novel.Chapter) {
	if p.publisher == nil || storyID == 0 {
		return
	}
	id, err := p.publisher.PublishChapter(ctx, storyID, ch)
	if err != nil {
		p.Logf("warning: failed to publish chapter %d: %v", ch.Index, err)
		return
	}
	if err := p.db.SetChapterPublishedID(ctx, workID, ch.Index, id); err != nil {
		p.Logf("warning: failed to record chapter %d publish id: %v", ch.Index, err)
	}
}

func chapterFromState(raw novel.Chapter, st store.ChapterState) novel.Chapter {
	raw.TitleTranslated = st.TitleTranslated
	raw.BodyTranslated = st.BodyTranslated
	raw.Status = st.Status
	raw.Method = st.Method
	return raw
}
