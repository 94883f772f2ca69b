package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/okovalov/seritran/internal/chunker"
)

// maxChunkRunes keeps each request safely under the translate API's
// 5 000 character limit.
const maxChunkRunes = 4500

// GoogleService is the fast-literal provider. It ignores glossary
// terms and instructions: it has no instruction-following capability.
// Used for titles and as the fallback for chapter content.
type GoogleService struct {
	credentials string
}

// NewGoogleService creates a Google Translate provider.
// credentials may be empty to rely on ambient application-default
// credentials.
func NewGoogleService(credentials string) *GoogleService {
	return &GoogleService{credentials: credentials}
}

func (s *GoogleService) Name() string {
	return "google"
}

// Translate sends the text through the Cloud Translation API,
// splitting long texts at paragraph boundaries so each request stays
// under the API's size limit. Chunk order is preserved in the output.
func (s *GoogleService) Translate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	targetTag, err := language.Parse(TargetLang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language: %w", err)
	}
	sourceTag, err := language.Parse(SourceLang)
	if err != nil {
		return nil, fmt.Errorf("invalid source language: %w", err)
	}

	var opts []option.ClientOption
	if s.credentials != "" {
		opts = append(opts, option.WithCredentialsFile(s.credentials))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create translate client: %v", ErrUnavailable, err)
	}
	defer client.Close()

	chunks := chunker.Chunk(req.Text, maxChunkRunes)
	translated := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		translations, err := client.Translate(ctx, []string{chunk}, targetTag, &translate.Options{
			Source: sourceTag,
			Format: translate.Text,
		})
		if err != nil {
			return nil, classifyGoogleError(err)
		}
		if len(translations) == 0 {
			return nil, fmt.Errorf("%w: no translation returned", ErrTransient)
		}
		translated = append(translated, strings.TrimSpace(translations[0].Text))
	}

	return &Result{
		Text:    strings.Join(translated, "\n\n"),
		Model:   "google-translate",
		Latency: time.Since(start),
	}, nil
}

// classifyGoogleError maps API errors onto the sentinel taxonomy.
// The literal provider has no content filter, so everything that is
// not a hard client error is treated as transient.
func classifyGoogleError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 403 || apiErr.Code == 401 || apiErr.Code == 400 {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
