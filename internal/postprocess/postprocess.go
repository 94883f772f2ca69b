// Package postprocess removes common model artifacts from Gemini
// output before the text is stored or published: thinking blocks,
// instruction echoes, markdown code fences, and quote wrapping.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean strips model artifacts from text and returns the trimmed
// result. Applied to every context-aware provider response, both
// translations and glossary JSON.
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeCodeFence(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// thinkingBlockRe matches complete <thinking>…</thinking> style
// blocks. Each tag variant is listed explicitly because Go's RE2
// engine does not support backreferences.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing
// tag is missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// removeCodeFence unwraps text entirely enclosed in a markdown code
// fence, with or without a language tag. Gemini wraps JSON glossary
// responses this way despite instructions not to.
func removeCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return text
	}
	body := strings.TrimSuffix(trimmed, "```")
	body = strings.TrimPrefix(body, "```")
	// Drop a language tag on the opening fence line ("json", "text").
	if idx := strings.Index(body, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(body[:idx])
		if firstLine != "" && !strings.ContainsAny(firstLine, " \t{[") {
			body = body[idx+1:]
		}
	}
	return strings.TrimSpace(body)
}

// echoPatterns match introductory phrases that models sometimes
// prepend even when instructed not to. Each pattern is anchored to
// the start and requires a colon to reduce false positives.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:polished |translated )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:polished )?(?:translation|translated text)\s*:`),
	regexp.MustCompile(`(?i)^english translation\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:polished |translated )?(?:translation|text)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// removeQuoteWrapping strips a matching pair of outer quotes when the
// entire text is wrapped in them.
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') {
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}
