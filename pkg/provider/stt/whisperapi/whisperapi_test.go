package whisperapi

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// testPCM returns a small sample-aligned PCM16 buffer.
func testPCM(samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(1000))
	}
	return out
}

func newTestClient(t *testing.T, srvURL string) *Client {
	t.Helper()
	c, err := New("test-key",
		WithBaseURL(srvURL),
		WithRetry(2, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestTranscribeMultipartShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q, want /audio/transcriptions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-large-v3" {
			t.Errorf("model field = %q", got)
		}

		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file field: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "audio.wav" {
			t.Errorf("filename = %q, want audio.wav", hdr.Filename)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("file content-type = %q, want audio/wav", ct)
		}
		data, _ := io.ReadAll(f)
		if len(data) < 44 || string(data[0:4]) != "RIFF" {
			t.Errorf("uploaded file is not a WAV container (%d bytes)", len(data))
		}

		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.Transcribe(context.Background(), testPCM(1000), 24000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
}

func TestTranscribeRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"text":"third time lucky"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.Transcribe(context.Background(), testPCM(500), 24000)
	if err != nil {
		t.Fatalf("Transcribe after two 429s: %v", err)
	}
	if text != "third time lucky" {
		t.Errorf("text = %q", text)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestTranscribeRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Transcribe(context.Background(), testPCM(500), 24000)
	if err == nil {
		t.Fatal("expected error after three 429s with 2 retries")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("error = %v, want wrapped 429 APIError", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3 (1 + 2 retries)", got)
	}
}

func TestTranscribeClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad audio"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Transcribe(context.Background(), testPCM(500), 24000)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.Body == "" {
		t.Error("APIError carries no body excerpt")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1 (no retry on 400)", got)
	}
}

func TestTranscribeMalformedJSONFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"text": not-json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Transcribe(context.Background(), testPCM(500), 24000); err == nil {
		t.Fatal("expected decode error for malformed JSON")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
