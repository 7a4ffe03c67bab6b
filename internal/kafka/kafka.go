// Package kafka publishes fire events to a Kafka topic, keyed by source so a
// source's events stay ordered within one partition.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Geocene/firefinder/internal/mqtt"
)

const writeTimeout = 10 * time.Second

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer publishes events with the same JSON payload as the MQTT sink.
type Writer struct {
	w     messageWriter
	topic string
}

// NewWriter returns a Writer for topic on brokers. Connections are made
// lazily on the first write.
func NewWriter(brokers []string, topic string) (*Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka: no topic")
	}
	return &Writer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		topic: topic,
	}, nil
}

// Topic returns the destination topic.
func (w *Writer) Topic() string {
	return w.topic
}

// Publish writes events in one batch. An empty batch is a no-op.
func (w *Writer) Publish(ctx context.Context, events []mqtt.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := Messages(events)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := w.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d messages to %s: %w", len(msgs), w.topic, err)
	}
	return nil
}

// Close flushes pending writes and closes broker connections.
func (w *Writer) Close() error {
	return w.w.Close()
}

// Messages converts events to Kafka messages keyed by source.
func Messages(events []mqtt.Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		payload, err := mqtt.FormatPayload(ev)
		if err != nil {
			return nil, fmt.Errorf("format payload: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Source),
			Value: payload,
			Time:  ev.Interval.Start,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(ev.RunID)},
			},
		})
	}
	return msgs, nil
}
