// Package publisher is the REST client for the WordPress crawler
// plugin that hosts the translated works. Publishing is fire-and-walk:
// the pipeline records returned platform IDs but retries nothing here.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okovalov/seritran/internal/novel"
)

const apiBase = "/wp-json/crawler/v1"

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Health checks that the plugin endpoint is reachable and the API key
// is accepted.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("unexpected health status: %q", resp.Status)
	}
	return nil
}

// PublishWork creates the story on the platform, or returns the
// existing story's ID when a story with the same source ID is already
// present.
func (c *Client) PublishWork(ctx context.Context, work *novel.Work) (int64, error) {
	payload := map[string]any{
		"source_id":   work.ID,
		"title":       work.TitleTranslated,
		"description": work.DescriptionTranslated,
	}

	var resp struct {
		StoryID int64 `json:"story_id"`
		Existed bool  `json:"existed"`
	}
	if err := c.do(ctx, http.MethodPost, "/story", payload, &resp); err != nil {
		return 0, fmt.Errorf("failed to publish story: %w", err)
	}
	if resp.StoryID == 0 {
		return 0, fmt.Errorf("platform returned no story id")
	}
	return resp.StoryID, nil
}

// PublishChapter uploads one translated chapter under its story.
func (c *Client) PublishChapter(ctx context.Context, storyID int64, ch novel.Chapter) (int64, error) {
	payload := map[string]any{
		"story_id":      storyID,
		"chapter_index": ch.Index,
		"title":         ch.TitleTranslated,
		"content":       ch.BodyTranslated,
	}

	var resp struct {
		ChapterID int64 `json:"chapter_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/chapter", payload, &resp); err != nil {
		return 0, fmt.Errorf("failed to publish chapter %d: %w", ch.Index, err)
	}
	if resp.ChapterID == 0 {
		return 0, fmt.Errorf("platform returned no chapter id")
	}
	return resp.ChapterID, nil
}

// ChapterExists asks the platform whether a chapter index is already
// present under a story.
func (c *Client) ChapterExists(ctx context.Context, storyID int64, index int) (bool, error) {
	path := fmt.Sprintf("/chapter/exists?story_id=%d&chapter_index=%d", storyID, index)

	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiBase+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("API key rejected (%d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("API error (%d)", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
