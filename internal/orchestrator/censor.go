package orchestrator

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// censorMap substitutes vocabulary that tends to trip the primary
// provider's safety filter with softer equivalents. Applied only to
// the literal English draft before the polish pass; the published
// fallback text is untouched when polishing is skipped or fails.
var censorMap = map[string]string{
	"anal":        "intimate",
	"aroused":     "excited",
	"ass":         "behind",
	"attack":      "strike",
	"attacked":    "struck",
	"blood":       "energy",
	"bloody":      "intense",
	"breast":      "chest",
	"cock":        "member",
	"corpse":      "body",
	"cum":         "finish",
	"dick":        "member",
	"erection":    "reaction",
	"fuck":        "embrace",
	"fucked":      "embraced",
	"fucking":     "embracing",
	"kiss":        "touch",
	"kissing":     "touching",
	"knife":       "blade",
	"lust":        "desire",
	"moan":        "sound",
	"moaning":     "sounding",
	"naked":       "unclothed",
	"nude":        "bare",
	"orgasm":      "peak",
	"pain":        "discomfort",
	"penetrate":   "enter",
	"penetration": "entry",
	"penis":       "member",
	"seduce":      "attract",
	"sex":         "intimacy",
	"sexual":      "intimate",
	"sexy":        "attractive",
	"sword":       "blade",
	"thrust":      "move",
	"thrusting":   "moving",
	"torture":     "pressure",
	"violence":    "intensity",
	"violent":     "intense",
	"weapon":      "tool",
}

var censorPatterns = buildCensorPatterns()

type censorPattern struct {
	re          *regexp.Regexp
	replacement string
}

// buildCensorPatterns compiles one word-boundary pattern per entry.
// Longer words are replaced first so "fucking" is not half-matched by
// "fuck".
func buildCensorPatterns() []censorPattern {
	words := make([]string, 0, len(censorMap))
	for w := range censorMap {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})

	patterns := make([]censorPattern, 0, len(words))
	for _, w := range words {
		patterns = append(patterns, censorPattern{
			re:          regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`),
			replacement: censorMap[w],
		})
	}
	return patterns
}

// Censor rewrites filter-sensitive vocabulary in text, preserving
// leading capitalization of each replaced word.
func Censor(text string) string {
	for _, p := range censorPatterns {
		text = p.re.ReplaceAllStringFunc(text, func(match string) string {
			return matchCase(match, p.replacement)
		})
	}
	return text
}

// matchCase capitalizes replacement when the matched word was
// capitalized.
func matchCase(match, replacement string) string {
	if match == "" || replacement == "" {
		return replacement
	}
	first := []rune(match)[0]
	if unicode.IsUpper(first) {
		r := []rune(replacement)
		return strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return replacement
}
