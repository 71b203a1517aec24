package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// ErrNoEndpoint is returned when synthesis is attempted without a configured
// engine.
var ErrNoEndpoint = errors.New("tts endpoint not configured")

// Client speaks to an HTTP text-to-speech engine that accepts JSON
// {text, voice} and answers with MP3 bytes.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	voice      string
	maxChunk   int
	maxRetries int
}

// NewClient builds a synthesis client.
func NewClient(endpoint, apiKey, voice string, maxChunk, maxRetries int) *Client {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		endpoint:   endpoint,
		apiKey:     apiKey,
		voice:      voice,
		maxChunk:   maxChunk,
		maxRetries: maxRetries,
	}
}

// Synthesize converts article text to a single MP3. Long texts are chunked on
// paragraph boundaries and the per-chunk MP3 streams are concatenated.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.endpoint == "" {
		return nil, ErrNoEndpoint
	}
	chunks := ChunkText(text, c.maxChunk)
	if len(chunks) == 0 {
		return nil, errors.New("no synthesizable text")
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		part, err := c.synthesizeChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio.Write(part)
	}
	return audio.Bytes(), nil
}

type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// synthesizeChunk retries transient engine failures (5xx, transport errors)
// with exponential backoff. 4xx responses fail immediately.
func (c *Client) synthesizeChunk(ctx context.Context, chunk string) ([]byte, error) {
	payload, err := json.Marshal(synthesisRequest{Text: chunk, Voice: c.voice})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffWithJitter(time.Second, 10*time.Second, attempt)):
			}
		}
		body, retryable, err := c.post(ctx, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) post(ctx context.Context, payload []byte) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("synthesize: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, false, fmt.Errorf("synthesize: status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read audio: %w", err)
	}
	if len(body) == 0 {
		return nil, false, errors.New("engine returned empty audio")
	}
	return body, false, nil
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-2))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}
