// Package segment turns a continuous audio stream into utterances: the
// client-side Segmenter and its frame queue, and the lifecycle state machine
// that tracks one utterance on the server.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of an utterance.
type State int

const (
	// StateOpen - Utterance is accepting audio.
	StateOpen State = iota
	// StateClosed - Utterance is immutable and handed to the pipeline.
	StateClosed
	// StateDropped - Utterance was discarded without being processed.
	// This is a terminal state.
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (CLOSED or DROPPED).
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateDropped
}

// Errors for invalid state transitions.
var (
	ErrUtteranceClosed  = errors.New("utterance is closed")
	ErrUtteranceDropped = errors.New("utterance was dropped")
)

// Lifecycle manages the state machine for a single utterance.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	OPEN ──Close()──→ CLOSED
//	  │
//	  └───Drop()───→ DROPPED
//
// Rules:
//   - OPEN: audio may be appended; Close hands the utterance to the pipeline
//   - CLOSED: no more audio; the buffer is immutable
//   - DROPPED: discarded (connection closed, limit exceeded); never processed
type Lifecycle struct {
	mu          sync.RWMutex
	utteranceId string
	state       State
}

// NewLifecycle creates a new utterance lifecycle in OPEN state.
func NewLifecycle(utteranceId string) *Lifecycle {
	return &Lifecycle{
		utteranceId: utteranceId,
		state:       StateOpen,
	}
}

// UtteranceId returns the utterance ID.
func (l *Lifecycle) UtteranceId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.utteranceId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsOpen returns true if audio can still be appended.
func (l *Lifecycle) IsOpen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateOpen
}

// IsDropped returns true if the utterance was dropped.
func (l *Lifecycle) IsDropped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateDropped
}

// Append validates that audio may be appended.
func (l *Lifecycle) Append() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkOpen()
}

// Close transitions OPEN → CLOSED. Closing twice or closing a dropped
// utterance is an error so the pipeline never runs twice for one utterance.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return err
	}
	l.state = StateClosed
	return nil
}

// Drop transitions the utterance to DROPPED state.
// Returns true if the utterance was dropped, false if already in a terminal state.
func (l *Lifecycle) Drop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateDropped
	return true
}

// Reset reopens the lifecycle under a new utterance ID.
func (l *Lifecycle) Reset(newUtteranceId string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.utteranceId = newUtteranceId
	l.state = StateOpen
}

func (l *Lifecycle) checkOpen() error {
	switch l.state {
	case StateOpen:
		return nil
	case StateClosed:
		return ErrUtteranceClosed
	case StateDropped:
		return ErrUtteranceDropped
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}
