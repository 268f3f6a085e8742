// Package schema checks turn events before they are published.
package schema

import (
	"errors"
	"fmt"

	"github.com/yusin8/WERO/internal/models"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid turn event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate reports the first rule ev violates.
func (v *Validator) Validate(ev *models.TurnEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	switch {
	case ev.SessionID == "":
		return fmt.Errorf("%w: missing sessionId", ErrInvalidEvent)
	case ev.UtteranceID == "":
		return fmt.Errorf("%w: missing utteranceId", ErrInvalidEvent)
	case ev.Timestamp <= 0:
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}

	switch ev.Outcome {
	case models.OutcomeCompleted:
		if ev.EventType != models.EventTurnCompleted {
			return fmt.Errorf("%w: completed turn with eventType %q", ErrInvalidEvent, ev.EventType)
		}
		if ev.STTText == "" || ev.LLMText == "" {
			return fmt.Errorf("%w: completed turn without text", ErrInvalidEvent)
		}
	case models.OutcomeNoSpeech:
		if ev.EventType != models.EventTurnCompleted {
			return fmt.Errorf("%w: no_speech turn with eventType %q", ErrInvalidEvent, ev.EventType)
		}
	case models.OutcomeFailed:
		if ev.EventType != models.EventTurnFailed {
			return fmt.Errorf("%w: failed turn with eventType %q", ErrInvalidEvent, ev.EventType)
		}
		if ev.Error == "" {
			return fmt.Errorf("%w: failed turn without error", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidEvent, ev.Outcome)
	}

	m := ev.Metrics
	if m.AudioSec < 0 || m.STTMs < 0 || m.LLMMs < 0 || m.TTSMs < 0 || m.TotalMs < 0 {
		return fmt.Errorf("%w: negative metric", ErrInvalidEvent)
	}
	return nil
}
