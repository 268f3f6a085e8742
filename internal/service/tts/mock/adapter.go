// Package mock provides a synthesizer that renders a tone instead of speech.
package mock

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/service/tts"
)

const (
	msPerRune = 60
	maxMs     = 3000
	toneHz    = 330
)

// Adapter implements tts.Synthesizer with a tone whose length follows the
// text length.
type Adapter struct {
	Delay time.Duration
	Err   error
}

// New returns a tone synthesizer.
func New() *Adapter {
	return &Adapter{}
}

// Synthesize returns a tone of roughly 60ms per character, capped at 3s.
func (a *Adapter) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	if a.Delay > 0 {
		t := time.NewTimer(a.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if a.Err != nil {
		return nil, a.Err
	}

	ms := utf8.RuneCountInString(text) * msPerRune
	if ms > maxMs {
		ms = maxMs
	}
	if ms == 0 {
		ms = msPerRune
	}
	return audio.Tone(voice.SampleRateHz, ms, toneHz, 0.2), nil
}
