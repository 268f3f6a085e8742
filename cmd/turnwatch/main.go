// Command turnwatch follows the turn event topics and logs every turn as it
// is published.
package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/yusin8/WERO/internal/config"
	"github.com/yusin8/WERO/internal/events"
	"github.com/yusin8/WERO/internal/models"
	"github.com/yusin8/WERO/internal/observability/logging"
)

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma-separated)")
	topicTurns := flag.String("topic-turns", cfg.Kafka.TopicTurns, "Completed turn topic")
	topicFailures := flag.String("topic-failures", cfg.Kafka.TopicFailures, "Failed turn topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Format = "console"
	logging.Init(logCfg)

	if *brokers == "" {
		log.Fatal().Msg("No Kafka brokers configured (KAFKA_BROKERS or -brokers)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	show := func(ev models.TurnEvent) {
		e := log.Info().
			Str("session", ev.SessionID).
			Str("utterance", ev.UtteranceID).
			Str("outcome", string(ev.Outcome)).
			Str("stt", truncate(ev.STTText, 40)).
			Int64("totalMs", ev.Metrics.TotalMs)
		if ev.Error != "" {
			e = e.Str("error", ev.Error)
		} else {
			e = e.Str("llm", truncate(ev.LLMText, 60))
		}
		e.Msg(ev.EventType)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range []string{*topicTurns, *topicFailures} {
		w, err := events.NewWatcher(gctx, events.WatchConfig{
			Brokers: strings.Split(*brokers, ","),
			Topic:   topic,
			Since:   *since,
		})
		if err != nil {
			log.Fatal().Err(err).Str("topic", topic).Msg("Failed to open topic")
		}
		defer w.Close()

		log.Info().Str("topic", topic).Dur("since", *since).Msg("Watching turn events")
		g.Go(func() error { return w.Run(gctx, show) })
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Watcher stopped with error")
	}
}
