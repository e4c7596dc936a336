package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 16000
	apiVersion       = "2023-06-01"

	// Anthropic returns 529 when the service is overloaded.
	statusOverloaded = 529

	maxAttempts = 3
)

// ErrTruncated indicates the provider stopped at its token limit and the
// response is incomplete. Callers should not attempt extraction.
var ErrTruncated = errors.New("response truncated: stop reason max_tokens")

// Client calls the Anthropic messages API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	sleep      func(time.Duration)
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, e.g. for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/") }
}

// WithModel overrides the generation model.
func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithSleep replaces the backoff sleep function, e.g. for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient constructs a client with the provided API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key required")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		maxTokens:  defaultMaxTokens,
		httpClient: &http.Client{Timeout: 300 * time.Second},
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// StreamChunk is one item of a streaming generation. Text chunks carry
// incremental deltas; the final chunk has Done set, or Err on failure.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// Generate returns the complete response text for a prompt.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.doWithRetry(ctx, systemPrompt, userPrompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.StopReason == "max_tokens" {
		return "", ErrTruncated
	}
	if len(decoded.Content) == 0 || strings.TrimSpace(decoded.Content[0].Text) == "" {
		return "", fmt.Errorf("empty response from anthropic")
	}
	return decoded.Content[0].Text, nil
}

// GenerateStream issues a streaming generation and returns a channel of
// chunks. Only incremental text deltas are forwarded; all other event types
// are ignored. The channel is closed after the Done or Err chunk.
func (c *Client) GenerateStream(ctx context.Context, systemPrompt, userPrompt string) <-chan StreamChunk {
	// Capacity 1 so the terminal chunk never blocks; every send still
	// selects on ctx so an abandoned consumer cannot strand this goroutine
	// and leak the provider connection.
	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)

		send := func(chunk StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				select {
				case out <- StreamChunk{Err: ctx.Err()}:
				default:
				}
				return false
			}
		}

		resp, err := c.doWithRetry(ctx, systemPrompt, userPrompt, true)
		if err != nil {
			send(StreamChunk{Err: err})
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}
			var event streamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text != "" {
					if !send(StreamChunk{Text: event.Delta.Text}) {
						return
					}
				}
			case "message_delta":
				if event.Delta.StopReason == "max_tokens" {
					send(StreamChunk{Err: ErrTruncated})
					return
				}
			case "message_stop":
				send(StreamChunk{Done: true})
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(StreamChunk{Err: fmt.Errorf("read stream: %w", err)})
			return
		}
		send(StreamChunk{Done: true})
	}()
	return out
}

// doWithRetry issues the request with exponential backoff. Overloaded (529)
// responses back off starting at 1s doubling each attempt; any other
// failure backs off starting at 1s multiplying by 1.5. Both share the same
// attempt ceiling.
func (c *Client) doWithRetry(ctx context.Context, systemPrompt, userPrompt string, stream bool) (*http.Response, error) {
	body, err := json.Marshal(messageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Stream:    stream,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return nil, err
	}

	overloadedDelay := time.Second
	failureDelay := time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", apiVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("anthropic request: %w", err)
			c.sleep(failureDelay)
			failureDelay = failureDelay * 3 / 2
			continue
		}
		if resp.StatusCode == statusOverloaded {
			drainAndClose(resp.Body)
			lastErr = fmt.Errorf("anthropic api overloaded (status 529)")
			c.sleep(overloadedDelay)
			overloadedDelay *= 2
			continue
		}
		if resp.StatusCode >= 400 {
			msg := readAPIError(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("anthropic api error (status %d): %s", resp.StatusCode, msg)
			c.sleep(failureDelay)
			failureDelay = failureDelay * 3 / 2
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("generation failed after %d attempts: %w", maxAttempts, lastErr)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	body.Close()
}

func readAPIError(body io.Reader) string {
	var decoded struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64*1024)).Decode(&decoded); err == nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	return "request failed"
}

// Anthropic request/response types.

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream,omitempty"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type messageResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}
