// Command testclient sends one scripted utterance (begin, three chunks, end)
// without VAD and prints every server message.
package main

import (
	"flag"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/config"
	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/protocol"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	serverURL := flag.String("server", cfg.Capture.ServerURL, "Gateway WebSocket URL")
	rate := flag.Int("rate", 16000, "Sample rate of the generated audio")
	silent := flag.Bool("silent", false, "Send silence instead of a tone")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Format = "console"
	logging.Init(logCfg)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("server", *serverURL).Msg("Connected to server")

	send := func(m protocol.Message) {
		data, err := protocol.Encode(m)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode")
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Fatal().Err(err).Msg("Failed to send")
		}
		log.Info().Str("type", string(m.Type())).Msg("Sent")
	}
	receive := func() protocol.Message {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to receive")
		}
		m, err := protocol.Decode(data)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to decode")
		}
		return m
	}

	start := time.Now()
	send(protocol.BeginUtterance{Rate: *rate})
	log.Info().Interface("reply", receive()).Msg("Received")

	for i := 0; i < 3; i++ {
		pcm := audio.Tone(*rate, 300, 440, 0.4)
		if *silent {
			pcm = audio.Silence(*rate, 300)
		}
		send(protocol.AudioChunk{PCM: pcm})
	}
	endSent := time.Now()
	send(protocol.EndUtterance{})

	switch m := receive().(type) {
	case protocol.AudioReply:
		log.Info().
			Str("stt", m.STTText).
			Str("llm", m.LLMText).
			Int("bytes", len(m.PCM)).
			Int("rate", m.Rate).
			Interface("serverMetrics", m.Metrics).
			Dur("roundTrip", time.Since(endSent)).
			Dur("total", time.Since(start)).
			Msg("Received audio reply")
	default:
		log.Info().Interface("reply", m).Dur("roundTrip", time.Since(endSent)).Msg("Received")
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
