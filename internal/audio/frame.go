// Package audio defines the PCM frame type shared by the capture, VAD and
// segmentation stages, plus WAV-file capture sources and playback sinks.
package audio

import (
	"context"
	"time"
)

// BytesPerSample is the width of one mono 16-bit signed little-endian sample.
const BytesPerSample = 2

// Frame is a fixed-duration slice of mono 16-bit LE PCM audio.
// Frames are immutable once produced.
type Frame struct {
	Data       []byte
	SampleRate int
}

// NewFrame copies data into a new Frame so later writes by the producer do
// not leak into queued frames.
func NewFrame(data []byte, sampleRate int) Frame {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Frame{Data: buf, SampleRate: sampleRate}
}

// Samples returns the number of samples in the frame.
func (f Frame) Samples() int {
	return len(f.Data) / BytesPerSample
}

// Duration returns len(bytes)/2/sample_rate.
func (f Frame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate)
}

// PCMDuration returns the play time of n bytes of mono 16-bit PCM at rate.
func PCMDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n/BytesPerSample) * time.Second / time.Duration(rate)
}

// PCMSeconds is PCMDuration expressed in (fractional) seconds.
func PCMSeconds(n, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n/BytesPerSample) / float64(rate)
}

// FrameBytes returns the byte length of a frame of frameMs at rate.
func FrameBytes(rate, frameMs int) int {
	return rate * frameMs / 1000 * BytesPerSample
}

// Source produces a live sequence of fixed-duration frames. Read returns when
// the source is exhausted or ctx is cancelled. emit must not block.
type Source interface {
	Read(ctx context.Context, emit func(Frame)) error
}

// Sink renders raw PCM at the given rate and blocks until it has been rendered.
type Sink interface {
	Play(ctx context.Context, pcm []byte, rate int) error
}
