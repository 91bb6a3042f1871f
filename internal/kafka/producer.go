package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/model"
)

// DigestMessage is the value of every record written to the digest topic.
type DigestMessage struct {
	RunID         string    `json:"run_id"`
	Title         string    `json:"title"`
	WindowMinutes int       `json:"window_minutes"`
	Position      int       `json:"position"`
	Timestamp     time.Time `json:"timestamp"`
	Text          string    `json:"text"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DigestProducer publishes each report line of a digest to a Kafka topic,
// keyed by run id so that one run lands on one partition in order.
type DigestProducer struct {
	writer messageWriter
	topic  string
}

func NewDigestProducer(lc fx.Lifecycle, cfg *config.Config) (*DigestProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.DigestTopic == "" {
		log.Error().Msg("Kafka brokers or digest topic is not configured.")
		return nil, errors.New("kafka configuration missing")
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.DigestTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.Kafka.BatchTimeout,
	})
	p := newDigestProducer(writer, cfg.Kafka.DigestTopic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing Kafka producer")
			return p.Close()
		},
	})
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.DigestTopic).Msg("Kafka producer initialized")
	return p, nil
}

func newDigestProducer(writer messageWriter, topic string) *DigestProducer {
	return &DigestProducer{writer: writer, topic: topic}
}

func (p *DigestProducer) Name() string { return "kafka" }

func (p *DigestProducer) Deliver(ctx context.Context, digest model.Digest) error {
	if digest.Empty() {
		return nil
	}
	key := []byte(digest.RunID)
	messages := make([]kafka.Message, 0, len(digest.Lines))

	for i, line := range digest.Lines {
		value, err := json.Marshal(DigestMessage{
			RunID:         digest.RunID,
			Title:         digest.Title,
			WindowMinutes: digest.WindowMinutes,
			Position:      i,
			Timestamp:     line.Timestamp,
			Text:          line.Text,
		})
		if err != nil {
			log.Error().Err(err).Int("position", i).Msg("Failed to marshal digest line for Kafka")
			continue
		}
		messages = append(messages, kafka.Message{
			Key:   key,
			Value: value,
		})
	}
	if len(messages) == 0 {
		log.Warn().Msg("No valid messages to produce.")
		return nil
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		log.Error().Err(err).Int("message_count", len(messages)).Msg("Failed to write messages to Kafka")
		return err
	}

	log.Debug().Int("message_count", len(messages)).Str("topic", p.topic).Msg("Successfully produced messages to Kafka")
	return nil
}

func (p *DigestProducer) Close() error {
	return p.writer.Close()
}
