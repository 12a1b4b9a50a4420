// Package openaicompat provides an llm.Provider that speaks the
// OpenAI-compatible chat completions wire protocol with streaming enabled.
// It decodes the server-sent event reply incrementally so callers see each
// text delta as it arrives.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nivara-ai/glasswing/pkg/provider/llm"
)

const (
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultModel       = "llama-3.3-70b-versatile"
	defaultTemperature = 0.6
	defaultMaxTokens   = 1024

	// chunkBuf is the buffer depth of the delta channel; sized to absorb a
	// burst of small deltas without stalling the body reader.
	chunkBuf = 32

	// readBuf is the read size against the response body. Small enough
	// that event lines routinely span reads, which the decoder reassembles.
	readBuf = 4096

	// maxErrorBody caps the error response excerpt carried in errors.
	maxErrorBody = 100
)

// Client implements [llm.Provider] over a raw streaming HTTP connection.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ llm.Provider = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithModel sets the chat model identifier.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHTTPClient replaces the default HTTP client. The default has no
// overall timeout because a streamed reply may legitimately stay open for
// the duration of a long generation; use the request context to bound it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New constructs a Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openaicompat: apiKey must not be empty")
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// chatRequest is the JSON request body for a streamed completion.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// StreamCompletion implements [llm.Provider]. It issues the request and
// spawns a reader goroutine that decodes the chunked SSE body into ordered
// text deltas. The returned channel is closed when the stream ends; a
// mid-stream transport failure is delivered as a final Chunk with Err set,
// leaving already-delivered deltas in place.
func (c *Client) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("openaicompat: API error %d: %s", resp.StatusCode, excerpt)
	}

	ch := make(chan llm.Chunk, chunkBuf)
	go c.readStream(ctx, resp.Body, ch)
	return ch, nil
}

// readStream pulls raw chunks off the response body, runs them through the
// carry-buffer decoder, and forwards completed deltas in arrival order.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, ch chan<- llm.Chunk) {
	defer close(ch)
	defer body.Close()

	dec := &streamDecoder{}
	buf := make([]byte, readBuf)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, delta := range dec.feed(buf[:n]) {
				select {
				case ch <- llm.Chunk{Text: delta}:
				case <-ctx.Done():
					return
				}
			}
			if dec.finished() {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// Delivered text stands; report the failure and end the stream.
			select {
			case ch <- llm.Chunk{Err: fmt.Errorf("openaicompat: stream read: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// buildRequest converts an llm.CompletionRequest into the wire body,
// prepending the system message and applying defaults.
func (c *Client) buildRequest(req llm.CompletionRequest) chatRequest {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, req.Messages...)

	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	}
}
