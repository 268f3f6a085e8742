// Package google provides a Google Cloud Text-to-Speech synthesizer.
package google

import (
	"bytes"
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/service/tts"
)

type speechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// Adapter implements tts.Synthesizer with LINEAR16 output.
type Adapter struct {
	client speechSynthesizer
	logger zerolog.Logger
}

// New creates a Google TTS adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context) (*Adapter, error) {
	c, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create texttospeech client: %w", err)
	}
	return newWithClient(c), nil
}

func newWithClient(c speechSynthesizer) *Adapter {
	return &Adapter{
		client: c,
		logger: logging.WithProvider("tts", "google"),
	}
}

// Synthesize renders text and returns raw PCM. LINEAR16 responses carry a
// WAV header, which is stripped.
func (a *Adapter) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voice.LanguageCode,
			Name:         voice.Name,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(voice.SampleRateHz),
			SpeakingRate:    voice.SpeakingRate,
			Pitch:           voice.Pitch,
		},
	}

	resp, err := a.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	pcm, err := stripWAV(resp.GetAudioContent(), voice.SampleRateHz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tts.ErrSynthesisFailed, err)
	}
	a.logger.Debug().
		Str("voice", voice.Name).
		Int("chars", len(text)).
		Int("bytes", len(pcm)).
		Msg("SynthesizeSpeech completed")
	return pcm, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func stripWAV(content []byte, wantRate int) ([]byte, error) {
	if !bytes.HasPrefix(content, []byte("RIFF")) {
		return content, nil
	}
	pcm, rate, err := audio.ReadWAV(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	if wantRate > 0 && rate != wantRate {
		return nil, fmt.Errorf("provider returned %dHz, requested %dHz", rate, wantRate)
	}
	return pcm, nil
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("synthesize: %w", context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("synthesize: %w", context.Canceled)
	}
	return fmt.Errorf("%w: %s", tts.ErrSynthesisFailed, status.Convert(err).Message())
}
