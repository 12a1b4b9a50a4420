package segment

import (
	"encoding/binary"
	"testing"
	"time"
)

const testRate = 24000

// fakeClock advances manually so endpointing is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// frame builds a PCM16 frame of the given duration where every sample has
// the given amplitude.
func frame(d time.Duration, amplitude int16) []byte {
	samples := int(d.Seconds() * testRate)
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(amplitude))
	}
	return out
}

// collector is a test sink recording flushed segments.
type collector struct {
	segments [][]byte
	busy     bool
}

func (c *collector) sink(pcm []byte) bool {
	if c.busy {
		return false
	}
	c.segments = append(c.segments, pcm)
	return true
}

func newTestSegmenter(c *collector) (*Segmenter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	s := New(Config{SampleRate: testRate}, c.sink)
	s.now = clock.now
	// Re-anchor lastLoud to the fake clock.
	s.Reset()
	return s, clock
}

func TestTinyBufferNeverFlushes(t *testing.T) {
	c := &collector{}
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	// Shrink the utterance floor so the silence trigger fires while the
	// buffer is still below the 500 byte minimum flush size.
	s := New(Config{SampleRate: testRate, MinUtterance: time.Millisecond}, c.sink)
	s.now = clock.now
	s.Reset()

	s.PushFrame(frame(6*time.Millisecond, 5000)) // 144 samples = 288 bytes
	clock.advance(1100 * time.Millisecond)
	s.PushFrame(frame(time.Millisecond, 0)) // trips the silence condition

	if len(c.segments) != 0 {
		t.Fatalf("got %d segments, want 0 for a sub-minimum buffer", len(c.segments))
	}
	if s.BufferedBytes() != 0 {
		t.Errorf("buffer holds %d bytes, want 0 after silent discard", s.BufferedBytes())
	}
}

func TestSpeechThenSilenceFlushesOnce(t *testing.T) {
	c := &collector{}
	s, clock := newTestSegmenter(c)

	// 2000 ms of sustained speech.
	for i := 0; i < 20; i++ {
		s.PushFrame(frame(100*time.Millisecond, 1000))
		clock.advance(100 * time.Millisecond)
	}
	// 1100 ms of silence.
	for i := 0; i < 11; i++ {
		s.PushFrame(frame(100*time.Millisecond, 0))
		clock.advance(100 * time.Millisecond)
	}

	if len(c.segments) != 1 {
		t.Fatalf("got %d segments, want exactly 1", len(c.segments))
	}
	wantMin := int((2000 * time.Millisecond).Seconds() * testRate * 2)
	if len(c.segments[0]) < wantMin {
		t.Errorf("segment holds %d bytes, want at least %d (the speech span)", len(c.segments[0]), wantMin)
	}

	// Further silence must not flush again.
	for i := 0; i < 20; i++ {
		s.PushFrame(frame(100*time.Millisecond, 0))
		clock.advance(100 * time.Millisecond)
	}
	if len(c.segments) != 1 {
		t.Fatalf("trailing silence produced %d segments, want 1", len(c.segments))
	}
}

func TestContinuousSpeechFlushesAtCap(t *testing.T) {
	c := &collector{}
	s, clock := newTestSegmenter(c)

	// Loud audio with no silence at all; the 15 s cap must force a flush.
	for i := 0; i < 151; i++ {
		s.PushFrame(frame(100*time.Millisecond, 2000))
		clock.advance(100 * time.Millisecond)
	}

	if len(c.segments) != 1 {
		t.Fatalf("got %d segments, want 1 at the duration cap", len(c.segments))
	}
	capBytes := int((15 * time.Second).Seconds() * testRate * 2)
	if len(c.segments[0]) < capBytes {
		t.Errorf("segment holds %d bytes, want >= %d", len(c.segments[0]), capBytes)
	}
}

func TestNoSpeechDiscardedSilently(t *testing.T) {
	c := &collector{}
	s, clock := newTestSegmenter(c)

	// Quiet hum below the threshold, long enough to hit the duration cap.
	for i := 0; i < 151; i++ {
		s.PushFrame(frame(100*time.Millisecond, 100))
		clock.advance(100 * time.Millisecond)
	}

	if len(c.segments) != 0 {
		t.Fatalf("got %d segments, want 0 when no frame crossed the threshold", len(c.segments))
	}
	if s.BufferedBytes() != 0 {
		t.Errorf("buffer holds %d bytes after discard, want 0", s.BufferedBytes())
	}
	if _, discarded := s.Stats(); discarded == 0 {
		t.Error("discard counter not incremented")
	}
}

func TestBusySinkDefersFlush(t *testing.T) {
	c := &collector{busy: true}
	s, clock := newTestSegmenter(c)

	for i := 0; i < 10; i++ {
		s.PushFrame(frame(100*time.Millisecond, 1000))
		clock.advance(100 * time.Millisecond)
	}
	for i := 0; i < 12; i++ {
		s.PushFrame(frame(100*time.Millisecond, 0))
		clock.advance(100 * time.Millisecond)
	}

	if len(c.segments) != 0 {
		t.Fatalf("busy sink received %d segments, want 0", len(c.segments))
	}
	if s.BufferedBytes() == 0 {
		t.Fatal("buffer was cleared even though the sink refused the segment")
	}

	// Pipeline frees up; the next frame re-arms the flush with the full
	// accumulated buffer.
	c.busy = false
	clock.advance(100 * time.Millisecond)
	s.PushFrame(frame(100*time.Millisecond, 0))

	if len(c.segments) != 1 {
		t.Fatalf("got %d segments after sink freed up, want 1", len(c.segments))
	}
	if s.BufferedBytes() != 0 {
		t.Errorf("buffer holds %d bytes after accepted flush, want 0", s.BufferedBytes())
	}
}

func TestResetClearsState(t *testing.T) {
	c := &collector{}
	s, clock := newTestSegmenter(c)

	s.PushFrame(frame(500*time.Millisecond, 1000))
	clock.advance(500 * time.Millisecond)
	s.Reset()

	if s.BufferedBytes() != 0 {
		t.Fatalf("buffer holds %d bytes after Reset, want 0", s.BufferedBytes())
	}

	// Silence after Reset must not flush the (now empty) pre-reset speech.
	for i := 0; i < 15; i++ {
		s.PushFrame(frame(100*time.Millisecond, 0))
		clock.advance(100 * time.Millisecond)
	}
	if len(c.segments) != 0 {
		t.Fatalf("got %d segments, want 0 after Reset", len(c.segments))
	}
}
