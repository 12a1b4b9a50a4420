// Package llm defines the chat completion provider interface used by the
// Glasswing pipeline. Implementations live in subpackages (e.g. openaicompat).
package llm

import "context"

// Message is a single chat message in provider wire order.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one streamed chat completion call.
type CompletionRequest struct {
	// SystemPrompt is sent as the leading system message when non-empty.
	SystemPrompt string

	// Messages is the bounded conversation history followed by the new
	// user message, in wire order.
	Messages []Message

	// Temperature for sampling. Zero means the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero means the provider default.
	MaxTokens int
}

// Chunk is one incremental piece of a streamed reply.
//
// Text carries a non-empty delta in arrival order. Err is non-nil only on
// the final chunk of a failed stream; text already delivered before the
// failure stands (at-most-once-partial delivery). The channel closing marks
// end of stream.
type Chunk struct {
	Text string
	Err  error
}

// Provider produces streamed chat completions.
type Provider interface {
	// StreamCompletion issues the request with streaming enabled and
	// returns a channel of reply deltas in arrival order. The channel is
	// closed when the stream ends. A non-nil error return means the
	// stream could not be started at all.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
