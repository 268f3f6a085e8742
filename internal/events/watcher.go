package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/yusin8/WERO/internal/models"
)

// messageReader is the subset of *kafka.Reader the watcher uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// WatchConfig selects the topic to follow.
type WatchConfig struct {
	Brokers []string
	Topic   string
	// Since rewinds a partition reader to events newer than this age.
	Since time.Duration
}

// Watcher follows one turn event topic.
type Watcher struct {
	reader messageReader
	topic  string
}

// NewWatcher creates a partition-0 reader for cfg.Topic. A consumer group is
// not used so that several watchers each see every event.
func NewWatcher(ctx context.Context, cfg WatchConfig) (*Watcher, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	if cfg.Since > 0 {
		if err := r.SetOffsetAt(ctx, time.Now().Add(-cfg.Since)); err != nil {
			r.Close()
			return nil, err
		}
	}
	return &Watcher{reader: r, topic: cfg.Topic}, nil
}

// Run decodes events and hands them to handle until ctx is done. Read errors
// are retried after a second; undecodable messages are skipped.
func (w *Watcher) Run(ctx context.Context, handle func(models.TurnEvent)) error {
	for {
		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("topic", w.topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var ev models.TurnEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Warn().Err(err).Str("topic", w.topic).Int64("offset", msg.Offset).Msg("Skipping undecodable event")
			continue
		}
		handle(ev)
	}
}

// Close closes the underlying reader.
func (w *Watcher) Close() error {
	return w.reader.Close()
}
