package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"gengateway/internal/infra"
)

// Event types emitted by the gateway.
const (
	TypePostCreated      = "post.created"
	TypeCharacterCreated = "character.created"
)

// Event is a domain notification keyed by the entity it describes.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// KafkaPublisher writes events to a single topic, keyed for per-entity ordering.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Key),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher records events in the log when no broker is configured.
type LogPublisher struct {
	Logger infra.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Logger.Debug().Str("event", ev.Type).Str("key", ev.Key).Msg("events: published")
	return nil
}

func (LogPublisher) Close() error { return nil }
