// Package session implements the per-connection protocol state machine: it
// accepts at most one open utterance, accumulates its audio and hands it to
// the pipeline on end_utt.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/observability/metrics"
	"github.com/yusin8/WERO/internal/protocol"
	"github.com/yusin8/WERO/internal/service/pipeline"
	"github.com/yusin8/WERO/internal/service/segment"
)

// DefaultSampleRate is used when begin_utt carries no usable rate.
const DefaultSampleRate = 16000

// DefaultMaxAudioDuration matches the longest audio synchronous recognition
// accepts.
const DefaultMaxAudioDuration = 60 * time.Second

var (
	// ErrNoActiveUtterance is returned for audio_chunk or end_utt with no open
	// utterance, and for begin_utt while one is already open.
	ErrNoActiveUtterance = errors.New("no active utterance")
	// ErrUtteranceTooLarge is returned when an utterance exceeds its audio cap.
	ErrUtteranceTooLarge = errors.New("utterance too large")
	// ErrSessionClosed is returned by Handle after Close.
	ErrSessionClosed = errors.New("session closed")
)

// Processor runs a closed utterance through the pipeline.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (protocol.Message, error)
}

// Limits defines per-utterance guardrails.
type Limits struct {
	MaxAudioBytes    int64 // 0 disables the limit
	// MaxAudioDuration caps an utterance at this much 16-bit mono audio at its
	// declared rate. 0 disables the limit.
	MaxAudioDuration time.Duration
	DefaultRate      int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes:    10 * 1024 * 1024,
		MaxAudioDuration: DefaultMaxAudioDuration,
		DefaultRate:      DefaultSampleRate,
	}
}

// bytesFor returns the audio cap for an utterance at rate, or 0 for none.
func (l Limits) bytesFor(rate int) int64 {
	limit := l.MaxAudioBytes
	if l.MaxAudioDuration > 0 && rate > 0 {
		byDuration := int64(l.MaxAudioDuration/time.Millisecond) * int64(rate) / 1000 * audio.BytesPerSample
		if limit <= 0 || byDuration < limit {
			limit = byDuration
		}
	}
	return limit
}

// Utterance is the audio of one begin_utt .. end_utt span.
type Utterance struct {
	ID        string
	Rate      int
	StartedAt time.Time
	EndedAt   time.Time

	buf       []byte
	maxBytes  int64
	lifecycle *segment.Lifecycle
}

// Audio returns the accumulated PCM.
func (u *Utterance) Audio() []byte {
	return u.buf
}

// State returns the utterance lifecycle state.
func (u *Utterance) State() segment.State {
	return u.lifecycle.State()
}

func (u *Utterance) append(pcm []byte) error {
	if err := u.lifecycle.Append(); err != nil {
		return err
	}
	u.buf = append(u.buf, pcm...)
	return nil
}

// Session is owned by a single connection goroutine and is not safe for
// concurrent use.
type Session struct {
	id        string
	processor Processor
	ids       *segment.Generator
	limits    Limits
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	open       *Utterance
	utterances int
	closed     bool
}

// New creates a session for connection id.
func New(id string, processor Processor, limits Limits) *Session {
	if limits.DefaultRate <= 0 {
		limits.DefaultRate = DefaultSampleRate
	}
	return &Session{
		id:        id,
		processor: processor,
		ids:       segment.New(),
		limits:    limits,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithSession(id),
	}
}

// ID returns the connection ID.
func (s *Session) ID() string {
	return s.id
}

// Open returns the open utterance, or nil.
func (s *Session) Open() *Utterance {
	return s.open
}

// Utterances returns how many utterances have been opened.
func (s *Session) Utterances() int {
	return s.utterances
}

// HandleFrame decodes one inbound frame and handles it. Decode failures are
// answered with an error message and leave the state unchanged.
func (s *Session) HandleFrame(ctx context.Context, data []byte) ([]protocol.Message, error) {
	msg, err := protocol.Decode(data)
	if err != nil {
		reply := protocol.DecodeErrorReply(err)
		s.metrics.RecordProtocolError(metricReason(reply.Reason))
		s.logger.Warn().Err(err).Msg("Rejected inbound frame")
		return []protocol.Message{reply}, nil
	}
	return s.Handle(ctx, msg)
}

// Handle applies msg to the state machine and returns the replies to send,
// in order. The only errors returned are cancellation of ctx during the
// pipeline, and ErrSessionClosed.
func (s *Session) Handle(ctx context.Context, msg protocol.Message) ([]protocol.Message, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	switch m := msg.(type) {
	case protocol.BeginUtterance:
		return s.begin(m), nil
	case protocol.AudioChunk:
		return s.appendChunk(m), nil
	case protocol.EndUtterance:
		return s.end(ctx)
	default:
		// Server-to-client variants are not valid input.
		reply := protocol.DecodeErrorReply(&protocol.UnknownTypeError{Tag: string(msg.Type())})
		s.metrics.RecordProtocolError("unknown_type")
		return []protocol.Message{reply}, nil
	}
}

func (s *Session) begin(m protocol.BeginUtterance) []protocol.Message {
	if s.open != nil {
		return s.reject(ErrNoActiveUtterance, "begin_utt while utterance open")
	}

	rate := m.Rate
	if rate <= 0 {
		rate = s.limits.DefaultRate
	}
	s.utterances++
	id := s.ids.Next(s.id)
	s.open = &Utterance{
		ID:        id,
		Rate:      rate,
		StartedAt: time.Now(),
		maxBytes:  s.limits.bytesFor(rate),
		lifecycle: segment.NewLifecycle(id),
	}
	s.metrics.RecordUtteranceStarted()
	s.logger.Debug().Str("utteranceId", id).Int("rate", rate).Msg("Utterance opened")
	return []protocol.Message{protocol.Ack{OK: true}}
}

func (s *Session) appendChunk(m protocol.AudioChunk) []protocol.Message {
	if s.open == nil {
		return s.reject(ErrNoActiveUtterance, "audio_chunk without utterance")
	}
	if len(m.PCM) == 0 {
		return nil
	}

	u := s.open
	if u.maxBytes > 0 && int64(len(u.buf)+len(m.PCM)) > u.maxBytes {
		u.lifecycle.Drop()
		s.open = nil
		s.metrics.RecordUtteranceDropped("max_audio_bytes")
		s.metrics.RecordProtocolError(protocol.ReasonUtteranceTooLarge)
		s.logger.Warn().
			Str("utteranceId", u.ID).
			Int("bufferedBytes", len(u.buf)).
			Int64("maxAudioBytes", u.maxBytes).
			Msg("Utterance DROPPED: max audio exceeded")
		return []protocol.Message{protocol.Failure{Reason: protocol.ReasonUtteranceTooLarge}}
	}

	if err := u.append(m.PCM); err != nil {
		// Unreachable while the slot only holds OPEN utterances.
		return s.reject(err, "append to non-open utterance")
	}
	s.metrics.RecordAudioReceived(len(m.PCM))
	return nil
}

func (s *Session) end(ctx context.Context) ([]protocol.Message, error) {
	if s.open == nil {
		return s.reject(ErrNoActiveUtterance, "end_utt without utterance"), nil
	}

	u := s.open
	s.open = nil
	if err := u.lifecycle.Close(); err != nil {
		return s.reject(err, "close non-open utterance"), nil
	}
	u.EndedAt = time.Now()

	logger := logging.WithUtterance(s.id, u.ID)
	logger.Info().
		Int("bytes", len(u.buf)).
		Float64("audioSec", audio.PCMSeconds(len(u.buf), u.Rate)).
		Dur("duration", u.EndedAt.Sub(u.StartedAt)).
		Msg("Utterance closed, running pipeline")

	reply, err := s.processor.Process(ctx, pipeline.Request{
		SessionID:   s.id,
		UtteranceID: u.ID,
		Audio:       u.buf,
		SampleRate:  u.Rate,
		ClosedAt:    u.EndedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", u.ID, err)
	}
	if reply == nil {
		return nil, nil
	}
	return []protocol.Message{reply}, nil
}

func (s *Session) reject(err error, what string) []protocol.Message {
	s.metrics.RecordProtocolError(protocol.ReasonNoActiveUtterance)
	s.logger.Debug().Err(err).Msg("Rejected: " + what)
	return []protocol.Message{protocol.Failure{Reason: protocol.ReasonNoActiveUtterance}}
}

// Close drops any open utterance. An in-flight pipeline is cancelled by the
// caller's context, not here.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.open != nil {
		s.open.lifecycle.Drop()
		s.metrics.RecordUtteranceDropped("session_closed")
		s.logger.Info().Str("utteranceId", s.open.ID).Msg("Utterance DROPPED: session closed")
		s.open = nil
	}
}

// metricReason keeps the protocol error label set bounded.
func metricReason(reason string) string {
	if protocol.HasReasonPrefix(reason, "unknown_type") {
		return "unknown_type"
	}
	return reason
}
