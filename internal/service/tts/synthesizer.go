// Package tts defines the interface for text-to-speech providers.
package tts

import (
	"context"
	"errors"
)

// ErrSynthesisFailed is wrapped by provider errors other than timeouts.
var ErrSynthesisFailed = errors.New("synthesis failed")

// Voice selects and shapes the synthesized voice.
type Voice struct {
	Name         string
	LanguageCode string
	SpeakingRate float64
	Pitch        float64
	SampleRateHz int
}

// Synthesizer renders text as mono 16-bit little-endian PCM at
// Voice.SampleRateHz, without any container header.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}
