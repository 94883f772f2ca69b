// Package glossary holds the per-work term glossary: a categorized
// mapping of recurring source terms (character names, places, special
// terminology) to fixed English renderings. A glossary is built once
// per work from a bounded chapter sample and then applied read-only
// to every chapter translation, so renderings stay consistent across
// the whole work.
package glossary

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Category names the three term groups. They match the named groups
// in the glossary file so the file stays human-editable.
type Category string

const (
	CategoryCharacters Category = "characters"
	CategoryPlaces     Category = "places"
	CategoryTerms      Category = "terms"
)

// Categories lists all categories in their fixed order. The order
// matters: Flatten resolves cross-category duplicates in favor of the
// earlier category.
var Categories = []Category{CategoryCharacters, CategoryPlaces, CategoryTerms}

// Glossary maps source terms to fixed renderings, grouped by
// category. Within one category a term has exactly one rendering.
type Glossary struct {
	entries map[Category]map[string]string
}

// New returns an empty glossary.
func New() *Glossary {
	return &Glossary{entries: make(map[Category]map[string]string)}
}

// Add records a term rendering. The first rendering for a
// (category, term) pair wins; later duplicates are discarded and Add
// reports false. Terms are normalized (NFC, trimmed) before keying.
func (g *Glossary) Add(cat Category, term, rendering string) bool {
	term = normalizeTerm(term)
	rendering = strings.TrimSpace(rendering)
	if term == "" || rendering == "" {
		return false
	}
	if g.entries[cat] == nil {
		g.entries[cat] = make(map[string]string)
	}
	if _, exists := g.entries[cat][term]; exists {
		return false
	}
	g.entries[cat][term] = rendering
	return true
}

// Lookup returns the rendering for a term within a category.
func (g *Glossary) Lookup(cat Category, term string) (string, bool) {
	rendering, ok := g.entries[cat][normalizeTerm(term)]
	return rendering, ok
}

// Remove deletes a term from a category and reports whether it was
// present.
func (g *Glossary) Remove(cat Category, term string) bool {
	term = normalizeTerm(term)
	if _, ok := g.entries[cat][term]; !ok {
		return false
	}
	delete(g.entries[cat], term)
	return true
}

// Category returns a copy of one category's term map.
func (g *Glossary) Category(cat Category) map[string]string {
	out := make(map[string]string, len(g.entries[cat]))
	for term, rendering := range g.entries[cat] {
		out[term] = rendering
	}
	return out
}

// Len returns the total number of entries across all categories.
func (g *Glossary) Len() int {
	n := 0
	for _, terms := range g.entries {
		n += len(terms)
	}
	return n
}

// Flatten collapses the glossary into a single prompt-ready map.
// Categories are visited in their fixed order and an earlier
// category's rendering wins when the same term appears in more than
// one, which keeps the result deterministic.
func (g *Glossary) Flatten() map[string]string {
	out := make(map[string]string, g.Len())
	for _, cat := range Categories {
		for term, rendering := range g.entries[cat] {
			if _, exists := out[term]; !exists {
				out[term] = rendering
			}
		}
	}
	return out
}

// normalizeTerm trims whitespace and applies Unicode NFC
// normalization so the same term always keys identically.
func normalizeTerm(term string) string {
	return norm.NFC.String(strings.TrimSpace(term))
}
