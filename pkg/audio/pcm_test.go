package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// pcmFrom builds a little-endian PCM16 buffer from samples.
func pcmFrom(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestMeanAmplitude(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{name: "empty buffer", pcm: nil, want: 0},
		{name: "single byte ignored", pcm: []byte{0x7f}, want: 0},
		{name: "silence", pcm: pcmFrom(0, 0, 0, 0), want: 0},
		{name: "constant positive", pcm: pcmFrom(1000, 1000), want: 1000},
		{name: "negative mirrors positive", pcm: pcmFrom(-1000, 1000), want: 1000},
		{name: "mixed", pcm: pcmFrom(100, -300), want: 200},
		{name: "min int16 does not overflow", pcm: pcmFrom(math.MinInt16), want: 32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeanAmplitude(tt.pcm)
			if got != tt.want {
				t.Errorf("MeanAmplitude() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeanAmplitudeOddTrailingByte(t *testing.T) {
	buf := append(pcmFrom(500, 500), 0xff)
	if got := MeanAmplitude(buf); got != 500 {
		t.Errorf("MeanAmplitude() = %v, want 500 (trailing byte ignored)", got)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name       string
		byteLen    int
		sampleRate int
		want       time.Duration
	}{
		{name: "one second at 24kHz", byteLen: 48000, sampleRate: 24000, want: time.Second},
		{name: "400ms at 24kHz", byteLen: 19200, sampleRate: 24000, want: 400 * time.Millisecond},
		{name: "empty", byteLen: 0, sampleRate: 24000, want: 0},
		{name: "invalid rate", byteLen: 48000, sampleRate: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Duration(tt.byteLen, tt.sampleRate); got != tt.want {
				t.Errorf("Duration(%d, %d) = %v, want %v", tt.byteLen, tt.sampleRate, got, tt.want)
			}
		})
	}
}
