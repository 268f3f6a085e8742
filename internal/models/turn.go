// Package models defines the data structures for turn events.
package models

// Event types carried in the eventType field and Kafka header.
const (
	EventTurnCompleted = "voice.turn.completed"
	EventTurnFailed    = "voice.turn.failed"
)

// Outcome is the result of one utterance's pipeline run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeNoSpeech  Outcome = "no_speech"
	OutcomeFailed    Outcome = "failed"
)

// TurnMetrics carries the per-turn latency breakdown.
type TurnMetrics struct {
	AudioSec float64 `json:"audioSec"`
	STTMs    int64   `json:"sttMs"`
	LLMMs    int64   `json:"llmMs"`
	TTSMs    int64   `json:"ttsMs"`
	TotalMs  int64   `json:"totalMs"`
}

// TurnEvent records the outcome of one closed utterance.
type TurnEvent struct {
	EventType   string      `json:"eventType"`
	SessionID   string      `json:"sessionId"`
	UtteranceID string      `json:"utteranceId"`
	Outcome     Outcome     `json:"outcome"`
	STTText     string      `json:"sttText,omitempty"`
	LLMText     string      `json:"llmText,omitempty"`
	Error       string      `json:"error,omitempty"`
	Metrics     TurnMetrics `json:"metrics"`
	Timestamp   int64       `json:"timestamp"`
}
