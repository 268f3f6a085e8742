// Package pipeline runs a closed utterance through transcription, generation
// and synthesis, and turns the outcome into exactly one reply message.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/models"
	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/observability/metrics"
	"github.com/yusin8/WERO/internal/protocol"
	"github.com/yusin8/WERO/internal/service/llm"
	"github.com/yusin8/WERO/internal/service/stt"
	"github.com/yusin8/WERO/internal/service/tts"
)

const publishTimeout = 5 * time.Second

// Config holds stage settings.
type Config struct {
	LanguageCode string
	Voice        tts.Voice
	STTTimeout   time.Duration
	LLMTimeout   time.Duration
	TTSTimeout   time.Duration
}

// Request is a closed utterance ready for processing.
type Request struct {
	SessionID   string
	UtteranceID string
	Audio       []byte
	SampleRate  int
	ClosedAt    time.Time
}

// TurnPublisher receives one event per processed utterance.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, ev models.TurnEvent) error
}

// Orchestrator runs the three stages in order. It is safe for concurrent use
// by many sessions.
type Orchestrator struct {
	cfg         Config
	transcriber stt.Transcriber
	generator   llm.Generator
	synthesizer tts.Synthesizer
	publisher   TurnPublisher
	metrics     *metrics.Metrics

	wg sync.WaitGroup
}

// New creates an orchestrator. publisher may be nil.
func New(cfg Config, transcriber stt.Transcriber, generator llm.Generator, synthesizer tts.Synthesizer, publisher TurnPublisher) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
		publisher:   publisher,
		metrics:     metrics.DefaultMetrics,
	}
}

// turn accumulates one utterance's outcome.
type turn struct {
	req     Request
	sttText string
	llmText string
	metrics protocol.Metrics
}

// Process runs the pipeline for req and returns the reply message. It only
// returns an error when ctx is cancelled, in which case no reply is produced.
func (o *Orchestrator) Process(ctx context.Context, req Request) (protocol.Message, error) {
	if req.ClosedAt.IsZero() {
		req.ClosedAt = time.Now()
	}
	logger := logging.WithUtterance(req.SessionID, req.UtteranceID)
	t := &turn{req: req}
	t.metrics.AudioSec = audio.PCMSeconds(len(req.Audio), req.SampleRate)

	reply, err := o.run(ctx, t, &logger)
	if err != nil {
		logger.Info().Err(err).Msg("Pipeline cancelled, discarding utterance")
		o.metrics.RecordUtteranceDropped("cancelled")
		return nil, err
	}

	o.finish(t, reply, &logger)
	return reply, nil
}

func (o *Orchestrator) run(ctx context.Context, t *turn, logger *zerolog.Logger) (protocol.Message, error) {
	mark := t.req.ClosedAt

	// Stage 1: transcription
	if len(t.req.Audio) == 0 {
		return protocol.NoSpeech(), nil
	}
	text, err := runStage(ctx, o.cfg.STTTimeout, func(sctx context.Context) (string, error) {
		return o.transcriber.Transcribe(sctx, t.req.Audio, t.req.SampleRate, o.cfg.LanguageCode)
	})
	t.metrics.STTMs = elapsedMs(mark)
	mark = time.Now()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.stageFailed(metrics.StageSTT, err, logger)
		return protocol.STTFailed(detail(err)), nil
	}
	o.metrics.RecordStage(metrics.StageSTT, float64(t.metrics.STTMs)/1000)
	t.sttText = strings.TrimSpace(text)
	if t.sttText == "" {
		return protocol.NoSpeech(), nil
	}

	// Stage 2: generation
	text, err = runStage(ctx, o.cfg.LLMTimeout, func(sctx context.Context) (string, error) {
		return o.generator.Generate(sctx, t.sttText)
	})
	t.metrics.LLMMs = elapsedMs(mark)
	mark = time.Now()
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, llm.ErrEmptyResponse) {
			o.metrics.RecordStageError(metrics.StageLLM, "empty")
			logger.Warn().Msg("Generation returned no text")
			return protocol.Failure{Reason: protocol.ReasonEmptyLLMResponse}, nil
		}
		o.stageFailed(metrics.StageLLM, err, logger)
		return protocol.LLMCallFailed(detail(err)), nil
	}
	o.metrics.RecordStage(metrics.StageLLM, float64(t.metrics.LLMMs)/1000)
	t.llmText = strings.TrimSpace(text)

	// Stage 3: synthesis
	pcm, err := runStage(ctx, o.cfg.TTSTimeout, func(sctx context.Context) ([]byte, error) {
		return o.synthesizer.Synthesize(sctx, t.llmText, o.cfg.Voice)
	})
	t.metrics.TTSMs = elapsedMs(mark)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.stageFailed(metrics.StageTTS, err, logger)
		return protocol.TTSFailed(detail(err)), nil
	}
	o.metrics.RecordStage(metrics.StageTTS, float64(t.metrics.TTSMs)/1000)

	t.metrics.TotalMs = elapsedMs(t.req.ClosedAt)
	return protocol.AudioReply{
		STTText: t.sttText,
		LLMText: t.llmText,
		Rate:    o.cfg.Voice.SampleRateHz,
		PCM:     pcm,
		Metrics: t.metrics,
	}, nil
}

func (o *Orchestrator) stageFailed(stage string, err error, logger *zerolog.Logger) {
	errorType := "failed"
	if isTimeout(err) {
		errorType = "timeout"
	}
	o.metrics.RecordStageError(stage, errorType)
	logger.Error().Err(err).Str("stage", stage).Msg("Pipeline stage failed")
}

// finish records metrics, logs the outcome and publishes the turn event.
func (o *Orchestrator) finish(t *turn, reply protocol.Message, logger *zerolog.Logger) {
	ev := models.TurnEvent{
		EventType:   models.EventTurnCompleted,
		SessionID:   t.req.SessionID,
		UtteranceID: t.req.UtteranceID,
		STTText:     t.sttText,
		Metrics: models.TurnMetrics{
			AudioSec: t.metrics.AudioSec,
			STTMs:    t.metrics.STTMs,
			LLMMs:    t.metrics.LLMMs,
			TTSMs:    t.metrics.TTSMs,
			TotalMs:  t.metrics.TotalMs,
		},
		Timestamp: time.Now().UnixMilli(),
	}

	switch r := reply.(type) {
	case protocol.AudioReply:
		ev.Outcome = models.OutcomeCompleted
		ev.LLMText = r.LLMText
		o.metrics.RecordTurn(float64(r.Metrics.TotalMs) / 1000)
		logger.Info().
			Float64("audioSec", r.Metrics.AudioSec).
			Int64("sttMs", r.Metrics.STTMs).
			Int64("llmMs", r.Metrics.LLMMs).
			Int64("ttsMs", r.Metrics.TTSMs).
			Int64("totalMs", r.Metrics.TotalMs).
			Int("replyBytes", len(r.PCM)).
			Msg("Turn completed")
	case protocol.STT:
		ev.Outcome = models.OutcomeNoSpeech
		logger.Info().Float64("audioSec", t.metrics.AudioSec).Msg("No speech recognized")
	case protocol.Failure:
		ev.EventType = models.EventTurnFailed
		ev.Outcome = models.OutcomeFailed
		ev.Error = r.Reason
	}
	o.metrics.RecordUtteranceFinished(string(ev.Outcome), t.metrics.AudioSec)

	if o.publisher == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := o.publisher.PublishTurn(ctx, ev); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish turn event")
		}
	}()
}

// Wait blocks until pending turn events have been handed to the publisher.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrStageTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// detail is the text after "<kind>: " in a stage failure reply.
func detail(err error) string {
	if isTimeout(err) {
		return "timeout"
	}
	return err.Error()
}
