// Package kafka publishes run notifications and per-record change events
// to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/scottlangford2/research-scraper/internal/publisher"
)

// Config selects the brokers and delivery guarantees.
type Config struct {
	Brokers      []string
	MaxAttempts  int
	BatchTimeout time.Duration
	RequiredAcks int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes JSON messages, keyed by publisher.Keyed payloads so that
// updates to one record land on one partition.
type Publisher struct {
	writer messageWriter
}

// New creates a Publisher over a hash-balanced writer. The topic is set per
// message.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers must be set")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	acks := kafkago.RequireAll
	if cfg.RequiredAcks == 1 {
		acks = kafkago.RequireOne
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: acks,
	}
	return &Publisher{writer: w}, nil
}

// Publish implements rfp.Publisher. Kafka assigns no message id, so the
// returned id is "<topic>:<key>".
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	msg, err := message(ctx, topic, payload)
	if err != nil {
		return "", err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write kafka message: %w", err)
	}
	return fmt.Sprintf("%s:%s", topic, msg.Key), nil
}

// PublishAll writes payloads to topic in one batch and returns how many
// were accepted.
func (p *Publisher) PublishAll(ctx context.Context, topic string, payloads []any) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}
	msgs := make([]kafkago.Message, 0, len(payloads))
	for _, payload := range payloads {
		msg, err := message(ctx, topic, payload)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		var werr kafkago.WriteErrors
		if errors.As(err, &werr) {
			return len(msgs) - werr.Count(), fmt.Errorf("write kafka batch: %w", err)
		}
		return 0, fmt.Errorf("write kafka batch: %w", err)
	}
	return len(msgs), nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func message(ctx context.Context, topic string, payload any) (kafkago.Message, error) {
	if topic == "" {
		return kafkago.Message{}, errors.New("kafka topic is not set")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	msg := kafkago.Message{
		Topic:   topic,
		Value:   data,
		Headers: []kafkago.Header{{Key: "content-type", Value: []byte("application/json")}},
	}
	if k, ok := payload.(publisher.Keyed); ok {
		msg.Key = []byte(k.MessageKey())
	}
	carrier := &headerCarrier{msg: &msg}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return msg, nil
}

// headerCarrier implements propagation.TextMapCarrier over message headers.
type headerCarrier struct {
	msg *kafkago.Message
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafkago.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
