// Package events publishes turn events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/yusin8/WERO/internal/models"
	"github.com/yusin8/WERO/internal/observability/metrics"
	"github.com/yusin8/WERO/internal/schema"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes turn events to separate Kafka topics for completed
// and failed turns.
type Publisher struct {
	writerTurns    messageWriter
	writerFailures messageWriter
	principal      string
	topicTurns     string
	topicFailures  string
	enabled        bool
	validator      *schema.Validator
	metrics        *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicTurns    string
	TopicFailures string
	Principal     string
	Enabled       bool
}

// New creates a Kafka turn event publisher. A nil or disabled config yields a
// log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: v,
			metrics:   m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:     cfg.Principal,
			topicTurns:    cfg.TopicTurns,
			topicFailures: cfg.TopicFailures,
			enabled:       false,
			validator:     v,
			metrics:       m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTurns", cfg.TopicTurns).
		Str("topicFailures", cfg.TopicFailures).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return newWithWriters(cfg, newWriter(cfg.TopicTurns), newWriter(cfg.TopicFailures), m)
}

func newWithWriters(cfg *Config, turns, failures messageWriter, m *metrics.Metrics) *Publisher {
	return &Publisher{
		writerTurns:    turns,
		writerFailures: failures,
		principal:      cfg.Principal,
		topicTurns:     cfg.TopicTurns,
		topicFailures:  cfg.TopicFailures,
		enabled:        true,
		validator:      schema.New(),
		metrics:        m,
	}
}

// PublishTurn validates ev and writes it to the turns topic, or to the
// failures topic when the turn failed. Events are keyed by session so one
// conversation stays ordered within a partition.
func (p *Publisher) PublishTurn(ctx context.Context, ev models.TurnEvent) error {
	if err := p.validator.Validate(&ev); err != nil {
		log.Error().Err(err).Str("utteranceId", ev.UtteranceID).Msg("Refusing to publish invalid turn event")
		return err
	}

	if ev.Outcome == models.OutcomeFailed {
		return p.publish(ctx, p.writerFailures, p.topicFailures, ev.EventType, ev.SessionID, ev)
	}
	return p.publish(ctx, p.writerTurns, p.topicTurns, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return fmt.Errorf("write %s: %w", topic, err)
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTurns != nil {
		if e := p.writerTurns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turns writer")
			err = e
		}
	}
	if p.writerFailures != nil {
		if e := p.writerFailures.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing failures writer")
			err = e
		}
	}
	return err
}
