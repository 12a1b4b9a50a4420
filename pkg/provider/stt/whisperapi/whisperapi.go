// Package whisperapi provides an stt.Transcriber backed by an
// OpenAI-compatible hosted transcription endpoint (Whisper-style
// /audio/transcriptions). Audio is uploaded as an uncompressed WAV
// container in a multipart form.
package whisperapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"

	"github.com/nivara-ai/glasswing/pkg/audio"
	"github.com/nivara-ai/glasswing/pkg/provider/stt"
)

const (
	defaultBaseURL    = "https://api.groq.com/openai/v1"
	defaultModel      = "whisper-large-v3"
	defaultRetries    = 2
	defaultRetryDelay = 1500 * time.Millisecond

	// maxErrorBody caps how much of an error response body is carried in
	// the returned error for diagnostics.
	maxErrorBody = 100
)

// APIError is returned when the endpoint answers with a non-retryable HTTP
// error status. Body holds at most the first 100 bytes of the response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whisperapi: API error %d: %s", e.StatusCode, e.Body)
}

// Client implements [stt.Transcriber] against a hosted transcription API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	retries    int
	retryDelay time.Duration
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithModel sets the transcription model identifier sent with each request.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithRetry configures the retry budget for rate-limit and transport
// failures: retries extra attempts separated by delay.
func WithRetry(retries int, delay time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.retryDelay = delay
	}
}

// WithHTTPClient replaces the default HTTP client, e.g. to set a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New constructs a Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("whisperapi: apiKey must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// transcriptionResponse is the JSON body returned by the endpoint.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe implements [stt.Transcriber]. The PCM buffer is wrapped in a
// 44-byte WAV container and uploaded as the "file" field of a multipart
// form alongside the "model" field.
//
// HTTP 429 and transport-level errors are retried with a fixed delay until
// the retry budget is exhausted. Any other HTTP error status fails
// immediately with an [*APIError]; a malformed JSON body fails without
// retrying.
func (c *Client) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	wav, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("whisperapi: encode wav: %w", err)
	}

	body, contentType, err := c.buildForm(wav)
	if err != nil {
		return "", err
	}

	reqID := uuid.NewString()
	url := c.baseURL + "/audio/transcriptions"

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			slog.Debug("whisperapi: retrying request",
				"request_id", reqID,
				"attempt", attempt,
				"delay", c.retryDelay,
			)
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return "", fmt.Errorf("whisperapi: %w", ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("whisperapi: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", contentType)

		text, retryable, err := c.doOnce(req)
		if err == nil {
			return text, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("whisperapi: retries exhausted: %w", lastErr)
}

// doOnce performs a single request attempt. retryable reports whether the
// failure is worth another attempt (429 or transport error).
func (c *Client) doOnce(req *http.Request) (text string, retryable bool, err error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("whisperapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("whisperapi: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", true, &APIError{StatusCode: resp.StatusCode, Body: truncate(data)}
	}
	if resp.StatusCode >= 400 {
		return "", false, &APIError{StatusCode: resp.StatusCode, Body: truncate(data)}
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("whisperapi: decode response: %w", err)
	}
	return parsed.Text, false, nil
}

// buildForm assembles the multipart body. multipart.Writer generates a
// fresh random boundary per call, so the body is rebuilt once and replayed
// byte-identically on retries.
func (c *Client) buildForm(wav []byte) (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	hdr.Set("Content-Type", "audio/wav")
	part, err := w.CreatePart(hdr)
	if err != nil {
		return nil, "", fmt.Errorf("whisperapi: create file part: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("whisperapi: write file part: %w", err)
	}

	if err := w.WriteField("model", c.model); err != nil {
		return nil, "", fmt.Errorf("whisperapi: write model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("whisperapi: close form: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// truncate shortens an error body to maxErrorBody bytes.
func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
