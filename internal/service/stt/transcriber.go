// Package stt defines the interface for speech-to-text providers.
package stt

import (
	"context"
	"errors"
)

// ErrTranscriptionFailed is wrapped by provider errors other than timeouts.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Transcriber turns one complete utterance into text. An empty string with a
// nil error means no speech was recognized.
type Transcriber interface {
	// Transcribe recognizes mono 16-bit little-endian PCM sampled at
	// sampleRate. A deadline on ctx surfaces as context.DeadlineExceeded.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, languageCode string) (string, error)
}
