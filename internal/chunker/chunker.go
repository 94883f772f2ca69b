// Package chunker splits chapter text into request-sized pieces for
// the literal translation provider, preferring paragraph and sentence
// boundaries so no sentence is ever cut across two requests. It also
// provides rune-aware truncation for bounding glossary sample sizes.
package chunker

import (
	"strings"
	"unicode"
)

// Chunk splits text into pieces each no longer than maxRunes unicode
// code points. Splits are attempted (in order of preference) at:
//  1. Paragraph boundaries (\n\n or \r\n\r\n)
//  2. Sentence-ending punctuation (. ! ? and CJK 。！？)
//  3. Whitespace (word boundary)
//  4. Hard cut at maxRunes if no suitable boundary is found
//
// If text fits entirely within maxRunes, a single-element slice is
// returned. maxRunes ≤ 0 means unlimited.
func Chunk(text string, maxRunes int) []string {
	if maxRunes <= 0 || len([]rune(text)) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len([]rune(remaining)) > maxRunes {
		split := findSplit(remaining, maxRunes)
		chunk := strings.TrimSpace(remaining[:split])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimSpace(remaining[split:])
	}

	if strings.TrimSpace(remaining) != "" {
		chunks = append(chunks, strings.TrimSpace(remaining))
	}

	return chunks
}

// findSplit returns the byte index within text at which to split,
// aiming for at most maxRunes runes. It searches backwards from
// maxRunes for the best boundary.
func findSplit(text string, maxRunes int) int {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return len(text)
	}

	candidate := runes[:maxRunes]

	// 1. Paragraph boundary.
	prefix := string(candidate)
	if idx := strings.LastIndex(prefix, "\n\n"); idx > 0 {
		return idx + 2
	}
	if idx := strings.LastIndex(prefix, "\r\n\r\n"); idx > 0 {
		return idx + 4
	}

	// 2. Sentence-ending punctuation. CJK full stops need no trailing
	// space; Latin ones do.
	for i := len(candidate) - 1; i > 0; i-- {
		r := candidate[i]
		if r == '。' || r == '！' || r == '？' {
			return len(string(candidate[:i+1]))
		}
		if (r == '.' || r == '!' || r == '?') && i+1 < len(candidate) && unicode.IsSpace(candidate[i+1]) {
			return len(string(candidate[:i+1]))
		}
	}

	// 3. Whitespace word boundary.
	for i := len(candidate) - 1; i > 0; i-- {
		if unicode.IsSpace(candidate[i]) {
			return len(string(candidate[:i]))
		}
	}

	// 4. Hard cut.
	return len(prefix)
}

// Truncate returns text cut to at most maxRunes unicode code points.
// maxRunes ≤ 0 means unlimited.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
