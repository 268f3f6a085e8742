// Package mock provides a canned generator for running without a backend.
package mock

import (
	"context"
	"sync"
	"time"
)

// Generator answers every prompt with a fixed reply built from Reply.
type Generator struct {
	// Reply formats the answer; nil echoes the prompt back politely.
	Reply func(prompt string) string
	Delay time.Duration
	Err   error

	mu      sync.Mutex
	prompts []string
}

// New returns a generator that echoes prompts.
func New() *Generator {
	return &Generator{}
}

// Generate returns the canned reply for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.Delay > 0 {
		t := time.NewTimer(g.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if g.Err != nil {
		return "", g.Err
	}
	if g.Reply != nil {
		return g.Reply(prompt), nil
	}
	return "네, \"" + prompt + "\" 말씀이시군요.", nil
}

// Prompts returns the prompts received so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
