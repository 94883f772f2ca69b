package glossary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/okovalov/seritran/internal/novel"
)

type mockExtractor struct {
	response  string
	err       error
	callCount int
	lastInput string
}

func (m *mockExtractor) GenerateGlossary(ctx context.Context, sample string) (string, error) {
	m.callCount++
	m.lastInput = sample
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func sampleChapters(n int) []novel.Chapter {
	chapters := make([]novel.Chapter, 0, n)
	for i := 1; i <= n; i++ {
		chapters = append(chapters, novel.Chapter{
			Index: i,
			Body:  fmt.Sprintf("第%d章的内容。林羽向前走去。", i),
		})
	}
	return chapters
}

func TestBuilder_Build(t *testing.T) {
	ext := &mockExtractor{response: `{
		"characters": {"林羽": "Lin Yu", "苏瑶": "Su Yao"},
		"places": {"青云宗": "Azure Cloud Sect"},
		"terms": {"筑基": "Foundation Establishment"}
	}`}

	g, err := NewBuilder(ext).Build(context.Background(), sampleChapters(3), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 4 {
		t.Errorf("expected 4 entries, got %d", g.Len())
	}
	if rendering, ok := g.Lookup(CategoryCharacters, "林羽"); !ok || rendering != "Lin Yu" {
		t.Errorf("expected 林羽 → Lin Yu, got %q (ok=%v)", rendering, ok)
	}
	if rendering, ok := g.Lookup(CategoryPlaces, "青云宗"); !ok || rendering != "Azure Cloud Sect" {
		t.Errorf("expected 青云宗 → Azure Cloud Sect, got %q (ok=%v)", rendering, ok)
	}
}

func TestBuilder_Build_EmptySample(t *testing.T) {
	ext := &mockExtractor{response: "{}"}

	_, err := NewBuilder(ext).Build(context.Background(), nil, 10)
	if err == nil {
		t.Fatal("expected error for empty sample")
	}
	if errors.Is(err, ErrDegraded) {
		t.Error("empty sample is a caller bug, not a degraded build")
	}
	if ext.callCount != 0 {
		t.Errorf("no model call expected, got %d", ext.callCount)
	}
}

func TestBuilder_Build_SampleBound(t *testing.T) {
	ext := &mockExtractor{response: "{}"}

	_, err := NewBuilder(ext).Build(context.Background(), sampleChapters(25), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(ext.lastInput, "Chapter 11:") {
		t.Error("sample should be capped at 10 chapters")
	}
	if !strings.Contains(ext.lastInput, "Chapter 10:") {
		t.Error("sample should include chapter 10")
	}
}

func TestBuilder_Build_DefaultSampleSize(t *testing.T) {
	ext := &mockExtractor{response: "{}"}

	_, err := NewBuilder(ext).Build(context.Background(), sampleChapters(15), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(ext.lastInput, "Chapter 11:") {
		t.Error("maxSample=0 should fall back to the default of 10")
	}
}

func TestBuilder_Build_ExtractorFailureDegrades(t *testing.T) {
	ext := &mockExtractor{err: errors.New("model unavailable")}

	g, err := NewBuilder(ext).Build(context.Background(), sampleChapters(2), 10)
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("expected ErrDegraded, got %v", err)
	}
	if g == nil || g.Len() != 0 {
		t.Error("degraded build must still return an empty usable glossary")
	}
}

func TestBuilder_Build_UnparseableOutputDegrades(t *testing.T) {
	ext := &mockExtractor{response: "I could not produce a glossary, sorry."}

	g, err := NewBuilder(ext).Build(context.Background(), sampleChapters(2), 10)
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("expected ErrDegraded, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("expected empty glossary, got %d entries", g.Len())
	}
}

func TestBuilder_Build_Deterministic(t *testing.T) {
	response := `{
		"characters": {"林羽": "Lin Yu"},
		"places": {},
		"terms": {"灵气": "spiritual energy"}
	}`

	build := func() *Glossary {
		g, err := NewBuilder(&mockExtractor{response: response}).Build(context.Background(), sampleChapters(2), 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return g
	}

	first := build().Flatten()
	for i := 0; i < 5; i++ {
		again := build().Flatten()
		if len(again) != len(first) {
			t.Fatalf("rebuild produced %d entries, want %d", len(again), len(first))
		}
		for term, rendering := range first {
			if again[term] != rendering {
				t.Errorf("rebuild changed %q: %q vs %q", term, again[term], rendering)
			}
		}
	}
}

func TestParse_FirstOccurrenceWins(t *testing.T) {
	// The model repeats 林羽 with a conflicting rendering; the first
	// one must win.
	raw := `{"characters": {"林羽": "Lin Yu", "苏瑶": "Su Yao"}, "characters": {"林羽": "Forest Feather"}}`

	g, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rendering, _ := g.Lookup(CategoryCharacters, "林羽"); rendering != "Lin Yu" {
		t.Errorf("expected first rendering to win, got %q", rendering)
	}
}

func TestParse_FirstOccurrenceWins_SameCategoryObject(t *testing.T) {
	// The duplicate term sits inside a single category object, the
	// shape the model most often produces.
	raw := `{"characters": {"林羽": "Lin Yu", "林羽": "Forest Feather", "苏瑶": "Su Yao"}}`

	g, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rendering, _ := g.Lookup(CategoryCharacters, "林羽"); rendering != "Lin Yu" {
		t.Errorf("expected first rendering to win, got %q", rendering)
	}
	if rendering, _ := g.Lookup(CategoryCharacters, "苏瑶"); rendering != "Su Yao" {
		t.Errorf("entry after the duplicate was lost, got %q", rendering)
	}
}

func TestParse_FencedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"characters\": {\"林羽\": \"Lin Yu\"}}\n```"

	g, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", g.Len())
	}
}

func TestParse_UnknownCategorySkipped(t *testing.T) {
	raw := `{"organizations": {"天剑盟": "Heavenly Sword Alliance"}, "characters": {"林羽": "Lin Yu"}}`

	g, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 1 {
		t.Errorf("unknown category should be skipped, got %d entries", g.Len())
	}
}

func TestParse_NonStringRenderingSkipped(t *testing.T) {
	raw := `{"terms": {"灵气": {"nested": true}, "筑基": "Foundation Establishment"}}`

	g, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 1 {
		t.Errorf("expected only the string rendering, got %d entries", g.Len())
	}
}
