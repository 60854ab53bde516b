// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"github.com/segmentio/kafka-go"

	"github.com/holomush/holoauth/internal/auth"
)

// KafkaWriter is the part of *kafka.Writer the KafkaMailer uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the payload published for each message.
type Event struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	HTML     string    `json:"html"`
	Template string    `json:"template"`
	QueuedAt time.Time `json:"queued_at"`
}

// KafkaMailer publishes messages as events for a downstream mail service.
type KafkaMailer struct {
	writer KafkaWriter
	now    func() time.Time
}

// NewKafkaWriter returns a synchronous writer that waits for all in-sync replicas.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, oops.Code("KAFKA_CONFIG_INVALID").Errorf("brokers and topic are required")
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		WriteTimeout:           auth.MailTimeout,
		AllowAutoTopicCreation: true,
	}, nil
}

// NewKafkaMailer creates a KafkaMailer over writer.
func NewKafkaMailer(writer KafkaWriter) (*KafkaMailer, error) {
	if writer == nil {
		return nil, oops.Code("KAFKA_CONFIG_INVALID").Errorf("writer is required")
	}
	return &KafkaMailer{writer: writer, now: time.Now}, nil
}

// Send publishes msg keyed by recipient so one recipient's mail stays ordered.
func (m *KafkaMailer) Send(ctx context.Context, msg auth.Message) error {
	now := m.now().UTC()
	value, err := json.Marshal(Event{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Template: msg.Template,
		QueuedAt: now,
	})
	if err != nil {
		return oops.Code("KAFKA_ENCODE_FAILED").With("template", msg.Template).Wrap(err)
	}

	err = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: value,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "template", Value: []byte(msg.Template)},
		},
	})
	if err != nil {
		return oops.Code("KAFKA_PUBLISH_FAILED").With("template", msg.Template).Wrap(err)
	}
	return nil
}

// Close flushes and closes the writer.
func (m *KafkaMailer) Close() error {
	if err := m.writer.Close(); err != nil {
		return oops.Code("KAFKA_CLOSE_FAILED").Wrap(err)
	}
	return nil
}
