package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/okovalov/seritran/internal/glossary"
	"github.com/okovalov/seritran/internal/novel"
	"github.com/okovalov/seritran/internal/source"
	"github.com/okovalov/seritran/internal/store"
)

type mockTranslator struct {
	chapterCalls  atomic.Int64
	metadataCalls atomic.Int64
	translateFunc func(ch novel.Chapter) (novel.Chapter, error)
}

func (m *mockTranslator) TranslateChapter(ctx context.Context, ch novel.Chapter, g *glossary.Glossary) (novel.Chapter, error) {
	m.chapterCalls.Add(1)
	if m.translateFunc != nil {
		return m.translateFunc(ch)
	}
	ch.TitleTranslated = "Chapter " + fmt.Sprint(ch.Index)
	ch.BodyTranslated = "translated: " + ch.Body
	ch.Status = novel.StatusTranslated
	ch.Method = novel.MethodGemini
	return ch, nil
}

func (m *mockTranslator) TranslateMetadata(ctx context.Context, work *novel.Work, g *glossary.Glossary) error {
	m.metadataCalls.Add(1)
	if work.TitleTranslated == "" {
		work.TitleTranslated = "translated: " + work.Title
	}
	if work.DescriptionTranslated == "" && work.Description != "" {
		work.DescriptionTranslated = "translated: " + work.Description
	}
	return nil
}

type mockPublisher struct {
	workCalls    atomic.Int64
	chapterCalls atomic.Int64
	workErr      error
	chapterErr   error
}

func (m *mockPublisher) PublishWork(ctx context.Context, work *novel.Work) (int64, error) {
	m.workCalls.Add(1)
	if m.workErr != nil {
		return 0, m.workErr
	}
	return 42, nil
}

func (m *mockPublisher) PublishChapter(ctx context.Context, storyID int64, ch novel.Chapter) (int64, error) {
	m.chapterCalls.Add(1)
	if m.chapterErr != nil {
		return 0, m.chapterErr
	}
	return int64(100 + ch.Index), nil
}

type mockBuilder struct {
	buildCalls atomic.Int64
	buildFunc  func(chapters []novel.Chapter) (*glossary.Glossary, error)
}

func (m *mockBuilder) Build(ctx context.Context, chapters []novel.Chapter, maxSample int) (*glossary.Glossary, error) {
	m.buildCalls.Add(1)
	if m.buildFunc != nil {
		return m.buildFunc(chapters)
	}
	g := glossary.New()
	g.Add(glossary.CategoryCharacters, "林羽", "Lin Yu")
	return g, nil
}

type fixture struct {
	pipeline   *Pipeline
	source     *source.Dir
	store      *store.Store
	translator *mockTranslator
	publisher  *mockPublisher
	builder    *mockBuilder
	novelsDir  string
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()

	dir := t.TempDir()
	config.NovelsDir = dir

	src := source.NewDir(dir)
	db, err := store.New(filepath.Join(dir, "seritran.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		source:     src,
		store:      db,
		translator: &mockTranslator{},
		publisher:  &mockPublisher{},
		builder:    &mockBuilder{},
		novelsDir:  dir,
	}
	f.pipeline = New(src, db, f.publisher, f.translator, f.builder, config)
	f.pipeline.Logf = func(string, ...any) {}
	return f
}

func (f *fixture) writeChapters(t *testing.T, workID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		ch := novel.Chapter{Index: i, Title: fmt.Sprintf("第%d章", i), Body: fmt.Sprintf("第%d章的正文。", i)}
		if err := f.source.WriteChapter(workID, ch); err != nil {
			t.Fatalf("WriteChapter: %v", err)
		}
	}
}

func TestRun_FullPass(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 3)

	res, err := f.pipeline.Run(context.Background(), "w1", "测试小说", "一个描述")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.TranslatedPrimary != 3 || res.Failed != 0 || res.Skipped != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if f.translator.metadataCalls.Load() != 1 {
		t.Errorf("metadata calls = %d", f.translator.metadataCalls.Load())
	}
	if f.publisher.workCalls.Load() != 1 {
		t.Errorf("work publish calls = %d", f.publisher.workCalls.Load())
	}
	if f.publisher.chapterCalls.Load() != 3 {
		t.Errorf("chapter publish calls = %d", f.publisher.chapterCalls.Load())
	}

	states, _ := f.store.ChapterStates(context.Background(), "w1")
	for _, st := range states {
		if st.Status != novel.StatusTranslated {
			t.Errorf("chapter %d status = %s", st.Index, st.Status)
		}
		if st.PublishedID == 0 {
			t.Errorf("chapter %d has no published id", st.Index)
		}
	}
}

func TestRun_IdempotentResume(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 3)
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx, "w1", "测试小说", ""); err != nil {
		t.Fatalf("first run: %v", err)
	}
	chapterCallsAfterFirst := f.translator.chapterCalls.Load()

	res, err := f.pipeline.Run(ctx, "w1", "测试小说", "")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if f.translator.chapterCalls.Load() != chapterCallsAfterFirst {
		t.Error("second run must not re-issue chapter translations")
	}
	if res.Skipped != 3 || res.TranslatedPrimary != 0 {
		t.Errorf("unexpected resume result: %+v", res)
	}
	if f.publisher.workCalls.Load() != 1 {
		t.Error("work must not be re-published on resume")
	}
}

func TestRun_MaxChaptersPerRun(t *testing.T) {
	f := newFixture(t, Config{MaxChaptersPerRun: 2})
	f.writeChapters(t, "w1", 5)
	ctx := context.Background()

	res, err := f.pipeline.Run(ctx, "w1", "t", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TranslatedPrimary != 2 {
		t.Fatalf("first run translated %d, want 2", res.TranslatedPrimary)
	}

	// Lowest pending indices go first.
	states, _ := f.store.ChapterStates(ctx, "w1")
	if states[0].Status != novel.StatusTranslated || states[1].Status != novel.StatusTranslated {
		t.Error("chapters 1 and 2 should be translated first")
	}
	if states[2].Status != novel.StatusPending {
		t.Errorf("chapter 3 should be untouched, got %s", states[2].Status)
	}

	// Repeated capped runs converge without ever retranslating.
	for i := 0; i < 2; i++ {
		if _, err := f.pipeline.Run(ctx, "w1", "t", ""); err != nil {
			t.Fatalf("run %d: %v", i+2, err)
		}
	}
	if f.translator.chapterCalls.Load() != 5 {
		t.Errorf("total chapter calls = %d, want 5", f.translator.chapterCalls.Load())
	}
	states, _ = f.store.ChapterStates(ctx, "w1")
	for _, st := range states {
		if st.Status != novel.StatusTranslated {
			t.Errorf("chapter %d not translated after capped runs", st.Index)
		}
	}
}

func TestRun_FailedChapterDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 3)
	f.translator.translateFunc = func(ch novel.Chapter) (novel.Chapter, error) {
		if ch.Index == 2 {
			ch.Status = novel.StatusFailed
			return ch, errors.New("both providers failed")
		}
		ch.BodyTranslated = "translated"
		ch.Status = novel.StatusTranslated
		ch.Method = novel.MethodGoogle
		return ch, nil
	}

	res, err := f.pipeline.Run(context.Background(), "w1", "t", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.TranslatedFallback != 2 || res.Failed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.FailedChapters) != 1 || res.FailedChapters[0] != 2 {
		t.Errorf("failed chapters = %v, want [2]", res.FailedChapters)
	}
}

func TestRun_FailedChapterNotRetriedWithoutReset(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 2)
	ctx := context.Background()

	f.translator.translateFunc = func(ch novel.Chapter) (novel.Chapter, error) {
		ch.Status = novel.StatusFailed
		return ch, errors.New("both providers failed")
	}
	if _, err := f.pipeline.Run(ctx, "w1", "t", ""); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := f.translator.chapterCalls.Load()

	// Second run without --retry-failed: failed chapters stay failed
	// and are only reported.
	res, err := f.pipeline.Run(ctx, "w1", "t", "")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.translator.chapterCalls.Load() != callsAfterFirst {
		t.Error("failed chapters must not be retried without an explicit reset")
	}
	if len(res.FailedChapters) != 2 {
		t.Errorf("failed chapters = %v", res.FailedChapters)
	}

	// Third run with RetryFailed resets and retranslates.
	f.translator.translateFunc = nil
	f.pipeline.config.RetryFailed = true
	res, err = f.pipeline.Run(ctx, "w1", "t", "")
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if res.TranslatedPrimary != 2 || len(res.FailedChapters) != 0 {
		t.Errorf("unexpected retry result: %+v", res)
	}
}

func TestRun_CappedRunStillEnumeratesFailed(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// The crawler delivered chapters 1, 2 and 7 (a gap); chapter 7
	// fails on the first pass.
	for _, idx := range []int{1, 2, 7} {
		ch := novel.Chapter{Index: idx, Title: fmt.Sprintf("第%d章", idx), Body: "正文。"}
		if err := f.source.WriteChapter("w1", ch); err != nil {
			t.Fatal(err)
		}
	}
	f.translator.translateFunc = func(ch novel.Chapter) (novel.Chapter, error) {
		if ch.Index == 7 {
			ch.Status = novel.StatusFailed
			return ch, errors.New("both providers failed")
		}
		ch.BodyTranslated = "translated"
		ch.Status = novel.StatusTranslated
		ch.Method = novel.MethodGemini
		return ch, nil
	}
	if _, err := f.pipeline.Run(ctx, "w1", "t", ""); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The gap fills in; a capped pass translates only chapter 3 but
	// must still report the failed backlog at index 7, beyond the
	// point where the cap stops translation work.
	for _, idx := range []int{3, 4} {
		ch := novel.Chapter{Index: idx, Title: fmt.Sprintf("第%d章", idx), Body: "正文。"}
		if err := f.source.WriteChapter("w1", ch); err != nil {
			t.Fatal(err)
		}
	}
	f.translator.translateFunc = nil
	f.pipeline.config.MaxChaptersPerRun = 1

	res, err := f.pipeline.Run(ctx, "w1", "t", "")
	if err != nil {
		t.Fatalf("capped run: %v", err)
	}
	if res.TranslatedPrimary != 1 {
		t.Errorf("capped run translated %d, want 1", res.TranslatedPrimary)
	}
	if len(res.FailedChapters) != 1 || res.FailedChapters[0] != 7 {
		t.Errorf("failed chapters = %v, want [7]", res.FailedChapters)
	}
	if res.Failed != 1 {
		t.Errorf("failed count = %d, want 1", res.Failed)
	}

	// Chapter 4 stays untouched for the next pass.
	states, _ := f.store.ChapterStates(ctx, "w1")
	for _, st := range states {
		if st.Index == 4 && st.Status != novel.StatusPending {
			t.Errorf("chapter 4 should stay pending, got %s", st.Status)
		}
	}
}

func TestRun_GlossaryBuiltOnceAndPersisted(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 2)
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx, "w1", "t", ""); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if f.builder.buildCalls.Load() != 1 {
		t.Fatalf("build calls = %d", f.builder.buildCalls.Load())
	}

	g, err := glossary.Load(f.pipeline.GlossaryPath("w1"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rendering, ok := g.Lookup(glossary.CategoryCharacters, "林羽"); !ok || rendering != "Lin Yu" {
		t.Errorf("persisted glossary missing entry: %q %v", rendering, ok)
	}

	// Later passes load the saved glossary instead of rebuilding.
	if _, err := f.pipeline.Run(ctx, "w1", "t", ""); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.builder.buildCalls.Load() != 1 {
		t.Error("glossary must not be rebuilt once persisted")
	}
}

func TestRun_DegradedGlossaryContinues(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 2)
	f.builder.buildFunc = func([]novel.Chapter) (*glossary.Glossary, error) {
		return glossary.New(), fmt.Errorf("%w: model unavailable", glossary.ErrDegraded)
	}

	res, err := f.pipeline.Run(context.Background(), "w1", "t", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TranslatedPrimary != 2 {
		t.Errorf("degraded glossary must not block translation: %+v", res)
	}

	// Nothing useful was built, so nothing is persisted and the next
	// pass can retry the build.
	g, err := glossary.Load(f.pipeline.GlossaryPath("w1"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("degraded build must not persist entries, got %d", g.Len())
	}
}

func TestRun_MissingRawChapters(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.pipeline.Run(context.Background(), "w1", "t", "")
	if err == nil {
		t.Fatal("expected error when no raw chapters exist")
	}
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 2)
	f.publisher.workErr = errors.New("connection refused")
	ctx := context.Background()

	res, err := f.pipeline.Run(ctx, "w1", "t", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TranslatedPrimary != 2 {
		t.Errorf("publish failure must not block translation: %+v", res)
	}

	// Next pass publishes the story and the already-translated
	// chapters without retranslating.
	f.publisher.workErr = nil
	if _, err := f.pipeline.Run(ctx, "w1", "t", ""); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.publisher.chapterCalls.Load() != 2 {
		t.Errorf("chapter publish calls = %d, want 2", f.publisher.chapterCalls.Load())
	}

	rec, _ := f.store.GetWork(ctx, "w1")
	if rec.PublishedID != 42 {
		t.Errorf("work published id = %d", rec.PublishedID)
	}
}

func TestRun_MetadataTranslatedOnce(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 1)
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx, "w1", "测试小说", "一个描述"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := f.pipeline.Run(ctx, "w1", "测试小说", "一个描述"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.translator.metadataCalls.Load() != 1 {
		t.Errorf("metadata calls = %d, want 1", f.translator.metadataCalls.Load())
	}
}

func TestRun_CancellationLeavesCleanState(t *testing.T) {
	f := newFixture(t, Config{})
	f.writeChapters(t, "w1", 3)

	ctx, cancel := context.WithCancel(context.Background())
	f.translator.translateFunc = func(ch novel.Chapter) (novel.Chapter, error) {
		if ch.Index == 2 {
			cancel()
			return ch, ctx.Err()
		}
		ch.BodyTranslated = "translated"
		ch.Status = novel.StatusTranslated
		ch.Method = novel.MethodGemini
		return ch, nil
	}

	res, err := f.pipeline.Run(ctx, "w1", "t", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.TranslatedPrimary != 1 {
		t.Errorf("result before cancel: %+v", res)
	}

	states, _ := f.store.ChapterStates(context.Background(), "w1")
	if states[0].Status != novel.StatusTranslated {
		t.Errorf("chapter 1 = %s", states[0].Status)
	}
	for _, st := range states[1:] {
		if st.Status != novel.StatusPending {
			t.Errorf("chapter %d should stay pending after cancel, got %s", st.Index, st.Status)
		}
	}
}
