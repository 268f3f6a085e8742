// Package vad provides a stateless per-frame voice activity classifier.
//
// The classifier is a pure function of the frame and a fixed aggressiveness
// level: it keeps no history between calls, so one instance can be shared by
// any number of streams.
package vad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/yusin8/WERO/internal/audio"
)

var (
	ErrInvalidFrameDuration = errors.New("vad: invalid frame duration")
	ErrInvalidLevel         = errors.New("vad: aggressiveness level must be 0..3")
	ErrInvalidSampleRate    = errors.New("vad: unsupported sample rate")
)

// SupportedFrameMs lists the frame durations the classifier accepts.
var SupportedFrameMs = []int{10, 20, 30}

// SupportedSampleRates lists the capture rates the classifier accepts.
var SupportedSampleRates = []int{8000, 16000, 32000, 48000}

// Level trades false positives against false negatives. Higher levels are
// more aggressive at rejecting non-speech.
type Level int

type levelParams struct {
	minRMS float64 // normalized to full scale
	maxZCR float64 // zero crossings per sample
}

var levels = [...]levelParams{
	{minRMS: 0.003, maxZCR: 1.0},
	{minRMS: 0.006, maxZCR: 1.0},
	{minRMS: 0.012, maxZCR: 0.45},
	{minRMS: 0.025, maxZCR: 0.35},
}

// Classifier decides whether a frame contains speech.
type Classifier struct {
	level  Level
	params levelParams
}

// New returns a classifier for the given aggressiveness level.
func New(level Level) (*Classifier, error) {
	if level < 0 || int(level) >= len(levels) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	return &Classifier{level: level, params: levels[level]}, nil
}

// Level returns the configured aggressiveness.
func (c *Classifier) Level() Level {
	return c.level
}

// ValidateFormat checks a sample rate / frame duration pair up front so that
// callers can fail at startup instead of on the first frame.
func ValidateFormat(sampleRate, frameMs int) error {
	if !contains(SupportedSampleRates, sampleRate) {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if !contains(SupportedFrameMs, frameMs) {
		return fmt.Errorf("%w: %dms", ErrInvalidFrameDuration, frameMs)
	}
	return nil
}

// Classify reports whether frame is speech.
func (c *Classifier) Classify(frame audio.Frame) (bool, error) {
	if !contains(SupportedSampleRates, frame.SampleRate) {
		return false, fmt.Errorf("%w: %d", ErrInvalidSampleRate, frame.SampleRate)
	}
	if len(frame.Data)%audio.BytesPerSample != 0 || !supportedDuration(frame.Duration()) ||
		audio.FrameBytes(frame.SampleRate, int(frame.Duration()/time.Millisecond)) != len(frame.Data) {
		return false, fmt.Errorf("%w: %d bytes at %dHz", ErrInvalidFrameDuration, len(frame.Data), frame.SampleRate)
	}

	rms, zcr := energy(frame.Data)
	return rms >= c.params.minRMS && zcr <= c.params.maxZCR, nil
}

// energy returns the normalized RMS level and zero-crossing rate of pcm.
func energy(pcm []byte) (rms, zcr float64) {
	n := len(pcm) / audio.BytesPerSample
	if n == 0 {
		return 0, 0
	}
	var (
		sum       float64
		crossings int
		prev      int16
	)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(s) / math.MaxInt16
		sum += v * v
		if i > 0 && (s >= 0) != (prev >= 0) {
			crossings++
		}
		prev = s
	}
	return math.Sqrt(sum / float64(n)), float64(crossings) / float64(n)
}

func supportedDuration(d time.Duration) bool {
	if d%time.Millisecond != 0 {
		return false
	}
	return contains(SupportedFrameMs, int(d/time.Millisecond))
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
