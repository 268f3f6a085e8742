package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yusin8/WERO/internal/config"
	"github.com/yusin8/WERO/internal/service/llm"
	llmfunction "github.com/yusin8/WERO/internal/service/llm/function"
	llmgemini "github.com/yusin8/WERO/internal/service/llm/gemini"
	llmmock "github.com/yusin8/WERO/internal/service/llm/mock"
	"github.com/yusin8/WERO/internal/service/pipeline"
	"github.com/yusin8/WERO/internal/service/stt"
	sttgoogle "github.com/yusin8/WERO/internal/service/stt/google"
	sttmock "github.com/yusin8/WERO/internal/service/stt/mock"
	"github.com/yusin8/WERO/internal/service/tts"
	ttsgoogle "github.com/yusin8/WERO/internal/service/tts/google"
	ttsmock "github.com/yusin8/WERO/internal/service/tts/mock"
)

// Pipeline is the orchestrator built from the configured providers, plus the
// cleanup for any cloud clients it opened.
type Pipeline struct {
	*pipeline.Orchestrator
	closers []func() error
}

// Close waits for pending turn events and releases provider clients.
func (p *Pipeline) Close() error {
	if p.Orchestrator != nil {
		p.Orchestrator.Wait()
	}
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// BuildPipeline constructs the providers selected by cfg. Cloud credentials
// are checked here, once, at startup.
func (a *Application) BuildPipeline(ctx context.Context, publisher pipeline.TurnPublisher) (*Pipeline, error) {
	cfg := a.Cfg
	p := &Pipeline{}

	transcriber, err := newTranscriber(ctx, cfg, p)
	if err != nil {
		p.Close()
		return nil, err
	}
	generator, err := newGenerator(ctx, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	synthesizer, err := newSynthesizer(ctx, cfg, p)
	if err != nil {
		p.Close()
		return nil, err
	}

	p.Orchestrator = pipeline.New(pipeline.Config{
		LanguageCode: cfg.STT.LanguageCode,
		Voice: tts.Voice{
			Name:         cfg.TTS.Voice,
			LanguageCode: cfg.TTS.LanguageCode,
			SpeakingRate: cfg.TTS.SpeakingRate,
			Pitch:        cfg.TTS.Pitch,
			SampleRateHz: cfg.TTS.SampleRateHz,
		},
		STTTimeout: cfg.STT.Timeout,
		LLMTimeout: cfg.LLM.Timeout,
		TTSTimeout: cfg.TTS.Timeout,
	}, transcriber, generator, synthesizer, publisher)

	a.Logger.Info().
		Str("stt", cfg.STT.Provider).
		Str("llm", cfg.LLM.Provider).
		Str("tts", cfg.TTS.Provider).
		Msg("Pipeline providers initialized")
	return p, nil
}

func newTranscriber(ctx context.Context, cfg *config.Configuration, p *Pipeline) (stt.Transcriber, error) {
	switch cfg.STT.Provider {
	case config.ProviderGoogle:
		a, err := sttgoogle.New(ctx, sttgoogle.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("stt: %w", err)
		}
		p.closers = append(p.closers, a.Close)
		return a, nil
	case config.ProviderMock:
		return sttmock.New(), nil
	default:
		return nil, fmt.Errorf("stt: unknown provider %q", cfg.STT.Provider)
	}
}

func newGenerator(ctx context.Context, cfg *config.Configuration) (llm.Generator, error) {
	switch cfg.LLM.Provider {
	case config.ProviderFunction:
		return llmfunction.New(cfg.LLM.FunctionURL, &http.Client{}), nil
	case config.ProviderGemini:
		c, err := llmgemini.New(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
		return c, nil
	case config.ProviderMock:
		return llmmock.New(), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}

func newSynthesizer(ctx context.Context, cfg *config.Configuration, p *Pipeline) (tts.Synthesizer, error) {
	switch cfg.TTS.Provider {
	case config.ProviderGoogle:
		a, err := ttsgoogle.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("tts: %w", err)
		}
		p.closers = append(p.closers, a.Close)
		return a, nil
	case config.ProviderMock:
		return ttsmock.New(), nil
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", cfg.TTS.Provider)
	}
}
