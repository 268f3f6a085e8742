package segment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/protocol"
)

// ErrInvalidThreshold is returned by NewSegmenter for non-positive start or
// end thresholds.
var ErrInvalidThreshold = errors.New("segmenter: thresholds must be positive")

// Classifier decides whether a frame contains speech.
type Classifier interface {
	Classify(frame audio.Frame) (bool, error)
}

// Sender delivers one outbound message to the server.
type Sender func(ctx context.Context, msg protocol.Message) error

// Phase is the segmenter's position in the utterance cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSpeaking
	// PhaseAwaiting follows end_utt until ReplyReceived is called.
	PhaseAwaiting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseSpeaking:
		return "SPEAKING"
	case PhaseAwaiting:
		return "AWAITING_REPLY"
	default:
		return "UNKNOWN"
	}
}

// Config holds the segmenter thresholds.
type Config struct {
	SampleRate  int
	FrameMs     int
	StartFrames int
	EndFrames   int
}

// Segmenter turns a stream of classified frames into
// begin_utt / audio_chunk / end_utt messages.
type Segmenter struct {
	cfg Config
	vad Classifier

	mu      sync.Mutex
	phase   Phase
	run     []audio.Frame
	silence int
	started int
}

// NewSegmenter validates cfg and returns an idle segmenter.
func NewSegmenter(cfg Config, vad Classifier) (*Segmenter, error) {
	if cfg.StartFrames <= 0 || cfg.EndFrames <= 0 {
		return nil, ErrInvalidThreshold
	}
	if vad == nil {
		return nil, errors.New("segmenter: classifier is required")
	}
	return &Segmenter{
		cfg: cfg,
		vad: vad,
		run: make([]audio.Frame, 0, cfg.StartFrames),
	}, nil
}

// Phase returns the current phase.
func (s *Segmenter) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Utterances returns how many utterances have been started.
func (s *Segmenter) Utterances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Push feeds one frame and returns the messages it produces, in send order.
// discontinuous reports that frames were lost immediately before f.
func (s *Segmenter) Push(f audio.Frame, discontinuous bool) ([]protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseAwaiting:
		return nil, nil

	case PhaseIdle:
		if discontinuous {
			s.run = s.run[:0]
		}
		voiced, err := s.vad.Classify(f)
		if err != nil {
			return nil, fmt.Errorf("classify frame: %w", err)
		}
		if !voiced {
			s.run = s.run[:0]
			return nil, nil
		}
		s.run = append(s.run, f)
		if len(s.run) < s.cfg.StartFrames {
			return nil, nil
		}

		out := make([]protocol.Message, 0, len(s.run)+1)
		out = append(out, protocol.BeginUtterance{Rate: s.rate(f)})
		for _, rf := range s.run {
			out = append(out, protocol.AudioChunk{PCM: rf.Data})
		}
		s.run = s.run[:0]
		s.silence = 0
		s.started++
		s.phase = PhaseSpeaking
		log.Debug().Int("utterance", s.started).Msg("speech started")
		return out, nil

	case PhaseSpeaking:
		voiced, err := s.vad.Classify(f)
		if err != nil {
			return nil, fmt.Errorf("classify frame: %w", err)
		}
		out := []protocol.Message{protocol.AudioChunk{PCM: f.Data}}
		if voiced {
			s.silence = 0
			return out, nil
		}
		s.silence++
		if s.silence >= s.cfg.EndFrames {
			out = append(out, protocol.EndUtterance{})
			s.silence = 0
			s.phase = PhaseAwaiting
			log.Debug().Int("utterance", s.started).Msg("speech ended")
		}
		return out, nil
	}
	return nil, nil
}

// ReplyReceived releases the awaiting-reply latch.
func (s *Segmenter) ReplyReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseAwaiting {
		s.phase = PhaseIdle
	}
}

// Abort discards any in-flight utterance and returns to idle. It reports
// whether an utterance was open.
func (s *Segmenter) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasSpeaking := s.phase == PhaseSpeaking
	s.phase = PhaseIdle
	s.run = s.run[:0]
	s.silence = 0
	return wasSpeaking
}

// Discard drops an utterance that is still being sent, for when the server
// has already given up on it. An utterance awaiting its reply is kept.
func (s *Segmenter) Discard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSpeaking {
		return false
	}
	s.phase = PhaseIdle
	s.run = s.run[:0]
	s.silence = 0
	return true
}

// Run pops frames from q and sends the resulting messages until q is closed
// and drained or ctx is done. Cancellation never emits end_utt.
func (s *Segmenter) Run(ctx context.Context, q *FrameQueue, send Sender) error {
	for {
		f, gap, err := q.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				return nil
			}
			if s.Abort() {
				log.Info().Msg("capture cancelled mid-utterance, discarding")
			}
			return err
		}

		msgs, err := s.Push(f, gap)
		if err != nil {
			log.Warn().Err(err).Msg("dropping unclassifiable frame")
			continue
		}
		for _, m := range msgs {
			if err := ctx.Err(); err != nil {
				s.Abort()
				return err
			}
			if err := send(ctx, m); err != nil {
				s.Abort()
				return fmt.Errorf("send %s: %w", m.Type(), err)
			}
		}
	}
}

func (s *Segmenter) rate(f audio.Frame) int {
	if f.SampleRate > 0 {
		return f.SampleRate
	}
	return s.cfg.SampleRate
}
