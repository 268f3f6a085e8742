package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

var (
	ErrNotWAV            = errors.New("not a valid WAV file")
	ErrUnsupportedFormat = errors.New("only 16-bit mono PCM WAV is supported")
)

// ReadWAV parses a RIFF/WAVE stream and returns its PCM payload and sample rate.
// Only uncompressed 16-bit mono PCM is accepted.
func ReadWAV(r io.Reader) ([]byte, int, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		sampleRate int
		sawFmt     bool
	)
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, 0, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, 0, ErrNotWAV
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			numChannels := binary.LittleEndian.Uint16(body[2:4])
			bitsPerSample := binary.LittleEndian.Uint16(body[14:16])
			if audioFormat != 1 || numChannels != 1 || bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("%w: format=%d channels=%d bits=%d",
					ErrUnsupportedFormat, audioFormat, numChannels, bitsPerSample)
			}
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			sawFmt = true
		case "data":
			if !sawFmt {
				return nil, 0, ErrNotWAV
			}
			pcm, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
			return pcm, sampleRate, nil
		default:
			// chunks are word aligned
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, 0, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// WriteWAV writes pcm as a canonical 44-byte-header mono 16-bit WAV file.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*BytesPerSample))
	binary.LittleEndian.PutUint16(header[32:34], BytesPerSample)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// SplitFrames cuts pcm into frames of frameMs. A trailing partial frame is
// zero padded so every frame has the configured duration.
func SplitFrames(pcm []byte, sampleRate, frameMs int) []Frame {
	size := FrameBytes(sampleRate, frameMs)
	if size <= 0 {
		return nil
	}
	frames := make([]Frame, 0, (len(pcm)+size-1)/size)
	for off := 0; off < len(pcm); off += size {
		end := off + size
		if end > len(pcm) {
			buf := make([]byte, size)
			copy(buf, pcm[off:])
			frames = append(frames, Frame{Data: buf, SampleRate: sampleRate})
			break
		}
		frames = append(frames, NewFrame(pcm[off:end], sampleRate))
	}
	return frames
}

// FileSource replays a WAV file as a capture device.
type FileSource struct {
	Path    string
	FrameMs int
	// Realtime paces frames at their play duration, like a sound card would.
	Realtime bool
	// TrailingSilence appends this much silence after the file so the
	// segmenter can observe the end of the last utterance.
	TrailingSilence time.Duration
}

// Read emits every frame of the file, then the trailing silence.
func (s *FileSource) Read(ctx context.Context, emit func(Frame)) error {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return err
	}
	pcm, rate, err := ReadWAV(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	if s.TrailingSilence > 0 {
		silence := int(s.TrailingSilence.Seconds()*float64(rate)) * BytesPerSample
		pcm = append(pcm, make([]byte, silence)...)
	}

	frames := SplitFrames(pcm, rate, s.FrameMs)
	var tick <-chan time.Time
	if s.Realtime {
		ticker := time.NewTicker(time.Duration(s.FrameMs) * time.Millisecond)
		defer ticker.Stop()
		tick = ticker.C
	}

	for _, f := range frames {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		emit(f)
	}
	return nil
}

// WAVSink "plays" audio by writing each reply to a numbered WAV file.
type WAVSink struct {
	// Pattern is a fmt pattern taking the reply number, e.g. "reply-%03d.wav".
	Pattern string
	n       int
}

// Play writes pcm to the next file in the sequence.
func (s *WAVSink) Play(ctx context.Context, pcm []byte, rate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.n++
	f, err := os.Create(fmt.Sprintf(s.Pattern, s.n))
	if err != nil {
		return err
	}
	if err := WriteWAV(f, pcm, rate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
