// Package llm defines the interface for text generation backends.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrGenerationFailed is wrapped by backend errors other than timeouts.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyResponse is returned when the backend produced no text.
	ErrEmptyResponse = errors.New("empty generation response")
)

// Generator produces a reply to a user utterance.
type Generator interface {
	// Generate returns the reply text for prompt. A deadline on ctx surfaces
	// as context.DeadlineExceeded.
	Generate(ctx context.Context, prompt string) (string, error)
}

// personaTemplate frames every question for an elderly listener: a polite
// grandchild answering in one or two short, plain Korean sentences.
const personaTemplate = "당신은 손주입니다. 70세 어르신에게 말하듯 공손하고 또박또박, " +
	"쉬운 한국어로 한두 문장 안에서 짧고 명확하게 답하세요. " +
	"어려운 용어와 이모지는 피하고 존댓말을 사용하세요. 질문: %s"

// PersonaPrompt wraps a user question in the persona instruction.
func PersonaPrompt(question string) string {
	return fmt.Sprintf(personaTemplate, question)
}
