// Package archive persists completed conversation turns beyond the bounded
// model context. The session layer appends turns asynchronously and never
// depends on the archive for pipeline progress: append failures are logged
// and dropped.
package archive

import (
	"context"
	"sync"
	"time"
)

// Turn is one completed user/assistant exchange.
type Turn struct {
	// SessionID correlates the turn with the session that produced it.
	SessionID string

	// Utterance is the transcribed user speech.
	Utterance string

	// Reply is the full assistant reply.
	Reply string

	// Timestamp records when the turn completed.
	Timestamp time.Time
}

// Store archives completed turns.
type Store interface {
	// Append records one completed turn.
	Append(ctx context.Context, turn Turn) error

	// Recent returns up to limit turns for sessionID in chronological
	// order (oldest first).
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases backing resources.
	Close() error
}

// MemoryStore is the in-process [Store] used when no database is
// configured. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	turns []Turn
}

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements [Store].
func (m *MemoryStore) Append(_ context.Context, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return nil
}

// Recent implements [Store].
func (m *MemoryStore) Recent(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]Turn, 0, limit)
	for i := len(m.turns) - 1; i >= 0 && len(matched) < limit; i-- {
		if m.turns[i].SessionID == sessionID {
			matched = append(matched, m.turns[i])
		}
	}

	// Reverse to chronological order.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched, nil
}

// Ping implements [Store]; an in-process store is always reachable.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements [Store].
func (m *MemoryStore) Close() error { return nil }
