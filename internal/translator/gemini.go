package translator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/okovalov/seritran/internal/postprocess"
	"github.com/okovalov/seritran/internal/validator"
)

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.0-flash"

	// maxGlossaryPromptTerms caps how many glossary entries are
	// embedded in a single prompt.
	maxGlossaryPromptTerms = 50
)

// GeminiService is the context-aware provider. It honors glossary
// terms and cleanup instructions, which makes it the primary choice
// for chapter content and work descriptions.
type GeminiService struct {
	client *genai.Client
	model  string
	valid  *validator.Validator
}

// NewGeminiService creates a Gemini-backed provider. Returns
// ErrUnavailable when no API key is configured.
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: gemini API key not configured", ErrUnavailable)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %v", ErrUnavailable, err)
	}

	return &GeminiService{client: client, model: model, valid: validator.New()}, nil
}

func (s *GeminiService) Name() string {
	return "gemini"
}

// Translate renders the request as a translation prompt and returns
// the cleaned model output. Errors are classified into ErrTransient
// and ErrContentPolicy so the orchestrator can decide between retry
// and fallback.
func (s *GeminiService) Translate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	prompt := buildTranslationPrompt(req)
	text, err := s.generate(ctx, prompt, 0.3)
	if err != nil {
		return nil, err
	}

	// A model that echoes the source or returns a stub has not
	// translated anything; treat it like a transient failure so the
	// retry budget applies.
	if text == strings.TrimSpace(req.Text) || len([]rune(text)) < 10 {
		return nil, fmt.Errorf("%w: translation returned original or empty text", ErrTransient)
	}
	if err := s.valid.Validate(text, TargetLang); err != nil {
		return nil, fmt.Errorf("%w: output failed language check: %v", ErrTransient, err)
	}

	return &Result{Text: text, Model: s.model, Latency: time.Since(start)}, nil
}

// Polish asks the model to act as an editor over an already-English
// draft, keeping glossary renderings intact. Used after a
// content-policy rejection, on the censored literal translation.
func (s *GeminiService) Polish(ctx context.Context, draft string, terms map[string]string) (*Result, error) {
	start := time.Now()

	var sb strings.Builder
	sb.WriteString("You are a professional editor for web novels.\n\n")
	sb.WriteString("Task: Improve and polish the following English text.\n\n")
	sb.WriteString("Instructions:\n")
	sb.WriteString("1. Fix any awkward phrasing or grammar\n")
	sb.WriteString("2. Keep the same paragraph structure\n")
	sb.WriteString("3. Make the text flow naturally\n")
	sb.WriteString("4. Output ONLY the polished content\n")
	writeGlossaryBlock(&sb, terms)
	sb.WriteString("\nText to polish:\n")
	sb.WriteString(draft)
	sb.WriteString("\n\nPolished version:")

	text, err := s.generate(ctx, sb.String(), 0.3)
	if err != nil {
		return nil, err
	}
	if len([]rune(text)) < 10 {
		return nil, fmt.Errorf("%w: polish returned empty text", ErrTransient)
	}

	return &Result{Text: text, Model: s.model, Latency: time.Since(start)}, nil
}

// GenerateGlossary sends the combined chapter sample to the model and
// returns the raw response text. Parsing into categorized entries is
// the glossary package's job.
func (s *GeminiService) GenerateGlossary(ctx context.Context, sample string) (string, error) {
	prompt := buildGlossaryPrompt(sample)
	return s.generate(ctx, prompt, 0.2)
}

func (s *GeminiService) generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	})
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrContentPolicy, resp.PromptFeedback.BlockReason)
	}
	for _, cand := range resp.Candidates {
		if cand.FinishReason == genai.FinishReasonSafety || cand.FinishReason == genai.FinishReasonProhibitedContent {
			return "", fmt.Errorf("%w: candidate finished with %s", ErrContentPolicy, cand.FinishReason)
		}
	}

	text := postprocess.Clean(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response from model", ErrTransient)
	}
	return text, nil
}

// classifyGeminiError maps SDK errors onto the package's sentinel
// errors. Safety rejections are deterministic and must not be
// retried; rate limits and server errors are transient.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code == 408 || apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		case containsPolicyMarker(apiErr.Message) || containsPolicyMarker(apiErr.Status):
			return fmt.Errorf("%w: %v", ErrContentPolicy, err)
		}
	}
	if containsPolicyMarker(err.Error()) {
		return fmt.Errorf("%w: %v", ErrContentPolicy, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// containsPolicyMarker recognizes the safety-filter vocabulary the
// Gemini API uses in refusal messages.
func containsPolicyMarker(msg string) bool {
	upper := strings.ToUpper(msg)
	for _, marker := range []string{"SAFETY", "BLOCK", "HARM", "PROHIBITED"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// buildTranslationPrompt constructs the chapter/description prompt,
// injecting glossary terms and any extra instructions.
func buildTranslationPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("You are a professional translator for Chinese web novels.\n\n")
	sb.WriteString("Task: Translate the following Chinese text to natural, fluent English.\n\n")
	sb.WriteString("Instructions:\n")
	sb.WriteString("1. Maintain narrative flow and readability\n")
	sb.WriteString("2. Keep the same paragraph structure\n")
	sb.WriteString("3. Remove ALL markdown formatting (**, ##, etc.) - plain text only\n")
	sb.WriteString("4. Do NOT include any notes, explanations, or meta-commentary\n")
	sb.WriteString("5. Output ONLY the translated content\n")

	if req.Instructions != "" {
		sb.WriteString(req.Instructions)
	}

	writeGlossaryBlock(&sb, req.GlossaryTerms)

	if req.ChapterNumber > 0 {
		sb.WriteString(fmt.Sprintf("\nChapter %d content (Chinese):\n", req.ChapterNumber))
	} else {
		sb.WriteString("\nChinese text to translate:\n")
	}
	sb.WriteString(req.Text)
	sb.WriteString("\n\nEnglish translation:")

	return sb.String()
}

// writeGlossaryBlock appends the terminology block used to keep
// renderings consistent across chapters. Terms are emitted in sorted
// order so every chapter of a work sees the identical block; when the
// glossary exceeds maxGlossaryPromptTerms the cap then drops the same
// entries for every chapter.
func writeGlossaryBlock(sb *strings.Builder, terms map[string]string) {
	if len(terms) == 0 {
		return
	}

	keys := make([]string, 0, len(terms))
	for src := range terms {
		keys = append(keys, src)
	}
	sort.Strings(keys)
	if len(keys) > maxGlossaryPromptTerms {
		keys = keys[:maxGlossaryPromptTerms]
	}

	sb.WriteString("\nUse this glossary for consistent translations (always render the source term as the given English form):\n")
	for _, src := range keys {
		sb.WriteString(fmt.Sprintf("- %s = %s\n", src, terms[src]))
	}
}

// buildGlossaryPrompt asks the model for a categorized JSON glossary
// over the combined sample text.
func buildGlossaryPrompt(sample string) string {
	var sb strings.Builder

	sb.WriteString("You are a professional translator for Chinese web novels.\n\n")
	sb.WriteString("Task: Analyze the following Chinese novel chapters and create a consistent English glossary for character names, place names, and special terms.\n\n")
	sb.WriteString("Instructions:\n")
	sb.WriteString("1. Extract all important names (characters, places, organizations)\n")
	sb.WriteString("2. Extract cultivation terms, skill names, and special terminology\n")
	sb.WriteString("3. Provide consistent English translations that sound natural\n")
	sb.WriteString("4. For names, use pinyin or appropriate English equivalents\n")
	sb.WriteString("5. Return ONLY a JSON object in this exact format:\n\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"characters\": {\"中文名\": \"English Name\"},\n")
	sb.WriteString("  \"places\": {\"中文地名\": \"English Place\"},\n")
	sb.WriteString("  \"terms\": {\"中文术语\": \"English Term\"}\n")
	sb.WriteString("}\n")
	sb.WriteString("\nChinese chapters:\n")
	sb.WriteString(sample)
	sb.WriteString("\n\nJSON glossary:")

	return sb.String()
}
