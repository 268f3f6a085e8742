package protocol

import (
	"errors"
	"strings"
)

// Wire reasons carried in error / stt messages.
const (
	ReasonNoActiveUtterance  = "no_active_utterance"
	ReasonInvalidMessageType = "invalid message type"
	ReasonMalformedPayload   = "malformed_payload"
	ReasonNoSpeech           = "no_speech"
	ReasonEmptyLLMResponse   = "empty_llm_response"
	ReasonUtteranceTooLarge  = "utterance_too_large"

	prefixUnknownType   = "unknown_type:"
	prefixSTTFailed     = "stt_failed"
	prefixLLMCallFailed = "llm_call_failed"
	prefixTTSFailed     = "tts_failed"
)

var (
	// ErrInvalidMessageType is returned when the type tag is missing or not a string.
	ErrInvalidMessageType = errors.New(ReasonInvalidMessageType)
	// ErrUnknownMessageType matches any *UnknownTypeError via errors.Is.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrMalformedPayload is returned for invalid JSON or invalid base64 fields.
	ErrMalformedPayload = errors.New(ReasonMalformedPayload)
)

// UnknownTypeError reports an unrecognized type tag.
type UnknownTypeError struct {
	Tag string
}

func (e *UnknownTypeError) Error() string {
	return prefixUnknownType + e.Tag
}

func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownMessageType
}

// DecodeErrorReply maps a Decode error to the error message sent back to the peer.
func DecodeErrorReply(err error) Failure {
	var ute *UnknownTypeError
	switch {
	case errors.As(err, &ute):
		return Failure{Reason: ute.Error()}
	case errors.Is(err, ErrInvalidMessageType):
		return Failure{Reason: ReasonInvalidMessageType}
	default:
		return Failure{Reason: ReasonMalformedPayload}
	}
}

// STTFailed builds the reply for a failed or timed-out transcription stage.
func STTFailed(detail string) Failure {
	return Failure{Reason: withDetail(prefixSTTFailed, detail)}
}

// LLMCallFailed builds the reply for a failed or timed-out generation stage.
func LLMCallFailed(detail string) Failure {
	return Failure{Reason: withDetail(prefixLLMCallFailed, detail)}
}

// TTSFailed builds the reply for a failed or timed-out synthesis stage.
func TTSFailed(detail string) Failure {
	return Failure{Reason: withDetail(prefixTTSFailed, detail)}
}

// NoSpeech is the reply for an utterance that transcribed to nothing.
func NoSpeech() STT {
	return STT{Text: "", Error: ReasonNoSpeech}
}

// HasReasonPrefix reports whether reason is of the given kind, e.g.
// HasReasonPrefix(r, "llm_call_failed").
func HasReasonPrefix(reason, kind string) bool {
	return reason == kind || strings.HasPrefix(reason, kind+":")
}

func withDetail(kind, detail string) string {
	if detail == "" {
		return kind
	}
	return kind + ": " + detail
}
