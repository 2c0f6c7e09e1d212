// Package kafka publishes confirmed swaps to a Kafka topic for downstream
// accounting and analytics consumers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// ErrNoTopic is returned when the publisher has no topic configured.
var ErrNoTopic = errors.New("kafka: topic is required")

// Writer is the subset of kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the Kafka writer.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Publisher writes one record per swap, keyed by bot id so a bot's swaps
// stay ordered within a partition.
type Publisher struct {
	writer   Writer
	topic    string
	clientID string
	now      func() time.Time
}

// NewPublisher creates a Publisher on a hash-balanced kafka.Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafkago.RequireAll,
		Balancer:               &kafkago.Hash{},
	}
	return NewPublisherWithWriter(w, cfg.Topic, cfg.ClientID), nil
}

// NewPublisherWithWriter wraps an existing writer. The writer's own topic,
// if any, must match topic.
func NewPublisherWithWriter(w Writer, topic, clientID string) *Publisher {
	return &Publisher{writer: w, topic: topic, clientID: clientID, now: time.Now}
}

// PublishSwap writes rec as JSON.
func (p *Publisher) PublishSwap(ctx context.Context, rec domain.SwapRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kafka: marshal swap %s: %w", rec.ID, err)
	}
	msg := kafkago.Message{
		Key:   []byte(rec.BotID),
		Value: value,
		Time:  p.now(),
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(domain.EventSwapLogged)},
			{Key: "source", Value: []byte(p.clientID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write swap %s to %s: %w", rec.ID, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka: close writer for %s: %w", p.topic, err)
	}
	return nil
}
