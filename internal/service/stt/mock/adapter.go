// Package mock provides a mock transcriber for running without cloud
// credentials. It returns canned transcripts in rotation and treats
// near-silent audio as no speech.
package mock

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

// DefaultTranscripts are returned in rotation, one per utterance.
var DefaultTranscripts = []string{
	"안녕하세요",
	"오늘 날씨 어때요",
	"손주야 밥은 먹었니",
	"내일 병원 예약이 몇 시였지",
	"고마워요",
}

// silencePeak is the largest absolute sample treated as silence.
const silencePeak = 64

// Adapter implements stt.Transcriber with canned responses.
type Adapter struct {
	Transcripts []string
	Delay       time.Duration // simulated recognition latency
	Err         error         // returned instead of a transcript when set

	mu    sync.Mutex
	next  int
	calls int
}

// New creates a mock transcriber cycling through DefaultTranscripts.
func New() *Adapter {
	return &Adapter{Transcripts: DefaultTranscripts}
}

// Transcribe returns the next canned transcript, or "" for silent audio.
func (a *Adapter) Transcribe(ctx context.Context, pcm []byte, sampleRate int, languageCode string) (string, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	if a.Delay > 0 {
		t := time.NewTimer(a.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if a.Err != nil {
		return "", a.Err
	}
	if isSilent(pcm) || len(a.Transcripts) == 0 {
		return "", nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	text := a.Transcripts[a.next%len(a.Transcripts)]
	a.next++
	return text, nil
}

// Calls returns how many times Transcribe was invoked.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func isSilent(pcm []byte) bool {
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if s > silencePeak || s < -silencePeak {
			return false
		}
	}
	return true
}
