package mock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/service/tts"
)

func TestAdapter_LengthFollowsText(t *testing.T) {
	voice := tts.Voice{SampleRateHz: 22050}
	a := New()

	short, err := a.Synthesize(context.Background(), "네", voice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := audio.PCMDuration(len(short), 22050); d != 60*time.Millisecond {
		t.Errorf("expected 60ms for one rune, got %v", d)
	}

	long, _ := a.Synthesize(context.Background(), strings.Repeat("가", 500), voice)
	if d := audio.PCMDuration(len(long), 22050); d != 3*time.Second {
		t.Errorf("expected 3s cap, got %v", d)
	}
}

func TestAdapter_Errors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := (&Adapter{Err: boom}).Synthesize(context.Background(), "x", tts.Voice{SampleRateHz: 16000}); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := (&Adapter{Delay: time.Second}).Synthesize(ctx, "x", tts.Voice{SampleRateHz: 16000}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}
