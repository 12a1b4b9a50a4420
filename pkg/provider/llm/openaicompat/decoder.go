package openaicompat

import (
	"encoding/json"
	"strings"
)

// terminatorLine ends the event stream early.
const terminatorLine = "data: [DONE]"

// dataPrefix marks a line carrying a JSON payload.
const dataPrefix = "data: "

// streamDecoder reassembles `data:`-prefixed event lines from a chunked
// HTTP response body. Network reads do not align with line boundaries, so
// the trailing incomplete line of each chunk is carried over and prepended
// to the next one. Malformed JSON lines are skipped; the stream continues.
//
// Not safe for concurrent use; feed chunks from a single reader goroutine.
type streamDecoder struct {
	carry string
	done  bool
}

// eventPayload is the per-line JSON shape of a streamed completion delta.
type eventPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// feed processes one network chunk and returns the non-empty text deltas it
// completes, in arrival order. After the terminator line has been seen all
// further input is discarded.
func (d *streamDecoder) feed(chunk []byte) []string {
	if d.done {
		return nil
	}

	combined := d.carry + string(chunk)
	lines := strings.Split(combined, "\n")
	d.carry = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var deltas []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == terminatorLine {
			d.done = true
			break
		}
		if !strings.HasPrefix(trimmed, dataPrefix) {
			continue
		}

		var payload eventPayload
		if err := json.Unmarshal([]byte(trimmed[len(dataPrefix):]), &payload); err != nil {
			continue
		}
		if len(payload.Choices) == 0 {
			continue
		}
		if content := payload.Choices[0].Delta.Content; content != "" {
			deltas = append(deltas, content)
		}
	}
	return deltas
}

// finished reports whether the terminator line has been consumed.
func (d *streamDecoder) finished() bool { return d.done }
