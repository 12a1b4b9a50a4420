// Package stt defines the speech-to-text provider interface used by the
// Glasswing pipeline. Implementations live in subpackages (e.g. whisperapi).
package stt

import "context"

// Transcriber converts one utterance of raw PCM16 mono audio into text.
type Transcriber interface {
	// Transcribe sends the PCM buffer at the given sample rate to the
	// backing speech-to-text service and returns the recognised text,
	// which may be empty. Implementations own their retry policy; a
	// returned error means the utterance could not be transcribed and
	// the caller should drop it.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}
