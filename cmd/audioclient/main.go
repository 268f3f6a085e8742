// Command audioclient plays a WAV file into the gateway as if it were a
// microphone: frames are segmented by the VAD, streamed per utterance, and
// every reply is written out as a WAV file.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/client"
	"github.com/yusin8/WERO/internal/config"
	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/service/segment"
	"github.com/yusin8/WERO/internal/service/vad"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono)")
	serverURL := flag.String("server", cfg.Capture.ServerURL, "Gateway WebSocket URL")
	out := flag.String("out", "reply-%03d.wav", "Reply file pattern")
	realtime := flag.Bool("realtime", true, "Pace frames at capture speed")
	trailing := flag.Duration("trailing-silence", time.Second, "Silence appended after the file")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = "console"
	logging.Init(logCfg)

	if err := cfg.ValidateCapture(); err != nil {
		log.Fatal().Err(err).Msg("Invalid capture configuration")
	}
	classifier, err := vad.New(vad.Level(cfg.Capture.VADLevel))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create VAD")
	}

	c := client.New(client.Config{
		ServerURL: *serverURL,
		Segment: segment.Config{
			SampleRate:  cfg.Capture.SampleRate,
			FrameMs:     cfg.Capture.FrameMs,
			StartFrames: cfg.Capture.StartFrames,
			EndFrames:   cfg.Capture.EndFrames,
		},
		QueueCapacity: cfg.Capture.QueueCapacity,
	}, classifier, &audio.WAVSink{Pattern: *out})

	c.OnTurn = func(t client.Turn) {
		ev := log.Info().
			Int("utterance", t.Utterance).
			Str("stt", t.STTText).
			Dur("roundTrip", t.RoundTrip)
		if t.Error != "" {
			ev.Str("error", t.Error).Msg("Turn finished without audio")
			return
		}
		ev.Str("llm", t.LLMText).
			Int("replyBytes", t.ReplyBytes).
			Int("replyRate", t.ReplyRate).
			Float64("audioSec", t.ServerMetrics.AudioSec).
			Int64("sttMs", t.ServerMetrics.STTMs).
			Int64("llmMs", t.ServerMetrics.LLMMs).
			Int64("ttsMs", t.ServerMetrics.TTSMs).
			Int64("serverTotalMs", t.ServerMetrics.TotalMs).
			Msg("Turn completed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := &audio.FileSource{
		Path:            *audioFile,
		FrameMs:         cfg.Capture.FrameMs,
		Realtime:        *realtime,
		TrailingSilence: *trailing,
	}
	if err := c.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Client stopped with error")
		os.Exit(1)
	}
}
