// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	AudioEncoding              string
	Model                      string
	EnableAutomaticPunctuation bool
}

// DefaultConfig returns the settings used for device utterances.
func DefaultConfig() Config {
	return Config{
		AudioEncoding:              "LINEAR16",
		EnableAutomaticPunctuation: true,
	}
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Adapter implements stt.Transcriber with synchronous Recognize calls.
type Adapter struct {
	client recognizer
	cfg    Config
	logger zerolog.Logger
}

// New creates a Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return newWithClient(c, cfg), nil
}

func newWithClient(c recognizer, cfg Config) *Adapter {
	return &Adapter{
		client: c,
		cfg:    cfg,
		logger: logging.WithProvider("stt", "google"),
	}
}

// Transcribe sends the whole utterance in one request and joins the top
// alternative of every result.
func (a *Adapter) Transcribe(ctx context.Context, pcm []byte, sampleRate int, languageCode string) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz:            int32(sampleRate),
			LanguageCode:               languageCode,
			EnableAutomaticPunctuation: a.cfg.EnableAutomaticPunctuation,
			Model:                      a.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	}

	resp, err := a.client.Recognize(ctx, req)
	if err != nil {
		return "", classify(err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}

	text := strings.Join(parts, " ")
	a.logger.Debug().
		Int("bytes", len(pcm)).
		Int("results", len(resp.GetResults())).
		Int("chars", len(text)).
		Msg("Recognize completed")
	return text, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("recognize: %w", context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("recognize: %w", context.Canceled)
	}
	return fmt.Errorf("%w: %s", stt.ErrTranscriptionFailed, status.Convert(err).Message())
}

// parseAudioEncoding converts a string to Google's AudioEncoding enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
