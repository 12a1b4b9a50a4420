// Package segment turns a continuous push of raw PCM16 audio frames into
// discrete utterance buffers using energy-based endpointing.
//
// A [Segmenter] accumulates every inbound frame and tracks the last time the
// mean amplitude of a frame crossed the silence threshold. A segment is
// flushed to the sink when silence has lasted long enough after speech, or
// when the buffer reaches its hard duration cap. Segments that are too short
// or contain no speech at all are discarded without a sink call.
//
// All methods are safe for concurrent use, although frames are normally
// pushed from a single capture goroutine.
package segment

import (
	"sync"
	"time"

	"github.com/nivara-ai/glasswing/pkg/audio"
)

// Defaults for [Config]. The amplitude threshold is on the 16-bit sample
// scale; the time values bound tail latency (silence) and worst-case
// buffering (cap).
const (
	DefaultSilenceThreshold = 350
	DefaultSilenceDuration  = 1000 * time.Millisecond
	DefaultMinUtterance     = 400 * time.Millisecond
	DefaultMaxBuffer        = 15000 * time.Millisecond
	DefaultMinFlushBytes    = 500
)

// Sink receives a flushed utterance buffer. It must return quickly: accepted
// reports whether the segment was taken for processing. A false return means
// the downstream pipeline is still busy with a previous segment; the
// segmenter keeps accumulating and will retry the flush on a later frame.
type Sink func(pcm []byte) (accepted bool)

// Config holds the endpointing parameters of a [Segmenter]. Zero values are
// replaced with the package defaults.
type Config struct {
	// SampleRate of the inbound PCM16 mono stream in Hz.
	SampleRate int

	// SilenceThreshold is the mean absolute amplitude below which a frame
	// counts as silence.
	SilenceThreshold float64

	// SilenceDuration is how long the stream must stay below the threshold
	// after speech before a segment is flushed.
	SilenceDuration time.Duration

	// MinUtterance is the minimum buffered duration for a silence-triggered
	// flush. Shorter buffers keep accumulating.
	MinUtterance time.Duration

	// MaxBuffer is the hard cap on buffered duration. Reaching it flushes
	// regardless of ongoing speech.
	MaxBuffer time.Duration

	// MinFlushBytes is the minimum buffer size actually handed to the sink.
	// Smaller buffers are discarded at flush time.
	MinFlushBytes int
}

// withDefaults returns cfg with zero values replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	if c.MaxBuffer <= 0 {
		c.MaxBuffer = DefaultMaxBuffer
	}
	if c.MinFlushBytes <= 0 {
		c.MinFlushBytes = DefaultMinFlushBytes
	}
	return c
}

// Segmenter accumulates PCM16 frames and emits utterance segments to a sink.
type Segmenter struct {
	cfg  Config
	sink Sink

	mu            sync.Mutex
	buf           []byte
	lastLoud      time.Time
	speechInBuf   bool
	flushed       uint64
	discarded     uint64

	// now is swapped out in tests for deterministic endpointing.
	now func() time.Time
}

// New creates a Segmenter with the given configuration and sink. The sink
// must not be nil.
func New(cfg Config, sink Sink) *Segmenter {
	s := &Segmenter{
		cfg:  cfg.withDefaults(),
		sink: sink,
		now:  time.Now,
	}
	s.lastLoud = s.now()
	return s
}

// PushFrame ingests one inbound audio frame of arbitrary size. It computes
// the frame's mean amplitude, appends the frame to the current segment, and
// evaluates the flush conditions. PushFrame never blocks on the network; the
// heaviest work is the O(len(frame)) amplitude scan.
func (s *Segmenter) PushFrame(frame []byte) {
	if len(frame) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if audio.MeanAmplitude(frame) >= s.cfg.SilenceThreshold {
		s.lastLoud = now
		s.speechInBuf = true
	}
	s.buf = append(s.buf, frame...)

	buffered := audio.Duration(len(s.buf), s.cfg.SampleRate)
	silentFor := now.Sub(s.lastLoud)

	if (silentFor > s.cfg.SilenceDuration && buffered > s.cfg.MinUtterance) ||
		buffered > s.cfg.MaxBuffer {
		s.flushLocked()
	}
}

// Reset discards any buffered audio and clears the speech flag. Called when
// a session starts so stale capture data cannot leak into a new session.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// BufferedBytes returns the current accumulated buffer size.
func (s *Segmenter) BufferedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Stats returns the number of segments handed to the sink and the number
// discarded as too short or speechless.
func (s *Segmenter) Stats() (flushed, discarded uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed, s.discarded
}

// flushLocked finalises the current buffer. Must be called with s.mu held.
//
// Undersized or speechless buffers are dropped. When the sink reports busy
// the buffer is left intact: frames keep accumulating and the flush
// re-arms on the next frame, so at most one segment is ever in flight.
func (s *Segmenter) flushLocked() {
	if len(s.buf) < s.cfg.MinFlushBytes || !s.speechInBuf {
		s.discarded++
		s.resetLocked()
		return
	}

	seg := s.buf
	if !s.sink(seg) {
		return
	}
	s.flushed++
	s.buf = nil
	s.speechInBuf = false
	s.lastLoud = s.now()
}

// resetLocked clears accumulated state. Must be called with s.mu held.
func (s *Segmenter) resetLocked() {
	s.buf = nil
	s.speechInBuf = false
	s.lastLoud = s.now()
}
