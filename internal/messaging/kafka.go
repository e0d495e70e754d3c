// Package messaging publishes record-change events to Kafka so that other
// services can follow a user's journal without polling the API.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"trading-journal/config"
	"trading-journal/internal/events"
	"trading-journal/internal/logging"
)

// MessageWriter is the subset of *kafka.Writer the feed uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ChangeMessage is the JSON value of every message on the topic.
type ChangeMessage struct {
	Type       events.EventType `json:"type"`
	UserID     string           `json:"userId"`
	Kind       string           `json:"kind"`
	RecordID   string           `json:"recordId"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// ChangeFeed forwards record events from the bus to a Kafka topic, keyed by
// user id so one user's changes stay in one partition.
type ChangeFeed struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *logging.Logger
}

// NewChangeFeed creates a feed writing to cfg.Topic on cfg.Brokers.
func NewChangeFeed(cfg config.KafkaConfig) (*ChangeFeed, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: no topic configured")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           200 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newChangeFeed(w), nil
}

func newChangeFeed(w MessageWriter) *ChangeFeed {
	return &ChangeFeed{
		writer:  w,
		timeout: 5 * time.Second,
		logger:  logging.WithComponent("kafka"),
	}
}

// Attach subscribes the feed to record events on bus. Publish failures are
// logged and reported on the bus as ERROR events.
func (f *ChangeFeed) Attach(bus *events.EventBus) {
	bus.Subscribe(func(ev events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		if err := f.Publish(ctx, ev); err != nil {
			f.logger.WithError(err).Warn("failed to publish record change", "type", string(ev.Type), "user_id", ev.UserID)
			bus.PublishError("kafka", "record change not published", err)
		}
	}, events.RecordEventTypes...)
}

// Publish writes one event to the topic.
func (f *ChangeFeed) Publish(ctx context.Context, ev events.Event) error {
	msg, err := EncodeMessage(ev)
	if err != nil {
		return err
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// EncodeMessage turns a record event into a Kafka message.
func EncodeMessage(ev events.Event) (kafka.Message, error) {
	if ev.UserID == "" {
		return kafka.Message{}, fmt.Errorf("kafka: event %s has no user id", ev.Type)
	}
	kind, _ := ev.Data["kind"].(string)
	recordID, _ := ev.Data["record_id"].(string)

	value, err := json.Marshal(ChangeMessage{
		Type:       ev.Type,
		UserID:     ev.UserID,
		Kind:       kind,
		RecordID:   recordID,
		OccurredAt: ev.Timestamp.UTC(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(ev.UserID),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}

// Close flushes pending messages and closes the writer.
func (f *ChangeFeed) Close() error {
	return f.writer.Close()
}
