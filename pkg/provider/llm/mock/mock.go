// Package mock provides a test double for llm.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/nivara-ai/glasswing/pkg/provider/llm"
)

// Provider is a scripted llm.Provider double that records requests.
type Provider struct {
	// Deltas are emitted in order on each StreamCompletion call.
	Deltas []string

	// StreamErr, when non-nil, is emitted as a final error chunk after
	// Deltas.
	StreamErr error

	// StartErr, when non-nil, is returned by StreamCompletion directly.
	StartErr error

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.StartErr != nil {
		return nil, p.StartErr
	}

	ch := make(chan llm.Chunk, len(p.Deltas)+1)
	go func() {
		defer close(ch)
		for _, d := range p.Deltas {
			select {
			case ch <- llm.Chunk{Text: d}:
			case <-ctx.Done():
				return
			}
		}
		if p.StreamErr != nil {
			ch <- llm.Chunk{Err: p.StreamErr}
		}
	}()
	return ch, nil
}

// Requests returns a copy of all recorded completion requests.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}
