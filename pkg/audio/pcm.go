// Package audio provides helpers for the raw PCM16 mono audio format used
// throughout the Glasswing pipeline: little-endian signed 16-bit samples at
// a fixed sample rate (24000 Hz by default).
package audio

import (
	"encoding/binary"
	"time"
)

// DefaultSampleRate is the sample rate the capture layer delivers audio at.
const DefaultSampleRate = 24000

// bytesPerSample is the size of one PCM16 sample.
const bytesPerSample = 2

// MeanAmplitude returns the mean absolute sample amplitude of a PCM16
// little-endian buffer on the 16-bit scale (0..32768). A trailing odd byte
// is ignored. An empty (or single-byte) buffer yields 0.
func MeanAmplitude(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n*bytesPerSample; i += bytesPerSample {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if s < 0 {
			// Negating math.MinInt16 overflows int16; widen first.
			sum += -float64(s)
		} else {
			sum += float64(s)
		}
	}
	return sum / float64(n)
}

// Duration returns the playback duration of a PCM16 mono buffer of byteLen
// bytes at the given sample rate. A non-positive sample rate yields 0.
func Duration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
