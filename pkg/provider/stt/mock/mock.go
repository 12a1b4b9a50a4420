// Package mock provides a test double for stt.Transcriber.
package mock

import (
	"context"
	"sync"

	"github.com/nivara-ai/glasswing/pkg/provider/stt"
)

// Transcriber is a configurable stt.Transcriber double that records calls.
type Transcriber struct {
	// Text is returned by Transcribe when Func is nil.
	Text string

	// Err is returned by Transcribe when Func is nil.
	Err error

	// Func, when non-nil, handles each call instead of Text/Err.
	Func func(ctx context.Context, pcm []byte, sampleRate int) (string, error)

	mu    sync.Mutex
	calls [][]byte
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	t.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	t.calls = append(t.calls, cp)
	t.mu.Unlock()

	if t.Func != nil {
		return t.Func(ctx, pcm, sampleRate)
	}
	return t.Text, t.Err
}

// Calls returns a copy of all PCM buffers passed to Transcribe.
func (t *Transcriber) Calls() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.calls))
	copy(out, t.calls)
	return out
}
