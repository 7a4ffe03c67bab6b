package kafka

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Geocene/firefinder/internal/logic"
	"github.com/Geocene/firefinder/internal/mqtt"
)

type fakeWriter struct {
	batches [][]kafka.Message
	err     error
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var start = time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)

func events() []mqtt.Event {
	return mqtt.Events("stove-7", "run-1", []logic.EventInterval{
		{Start: start, Stop: start.Add(80 * time.Minute), DurationMinutes: 80},
		{Start: start.Add(3 * time.Hour), Stop: start.Add(4 * time.Hour), DurationMinutes: 60},
	})
}

func TestMessages(t *testing.T) {
	msgs, err := Messages(events())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].Key) != "stove-7" {
		t.Errorf("expected source key, got %q", msgs[0].Key)
	}
	if !msgs[1].Time.Equal(start.Add(3 * time.Hour)) {
		t.Errorf("expected message time at event start, got %v", msgs[1].Time)
	}
	if !strings.Contains(string(msgs[0].Value), `"duration_minutes":80`) {
		t.Errorf("unexpected value %s", msgs[0].Value)
	}
	if len(msgs[0].Headers) != 1 || string(msgs[0].Headers[0].Value) != "run-1" {
		t.Errorf("expected run_id header, got %+v", msgs[0].Headers)
	}
}

func TestWriterPublish(t *testing.T) {
	fw := &fakeWriter{}
	w := &Writer{w: fw, topic: "fires"}

	if err := w.Publish(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fw.batches) != 0 {
		t.Fatal("expected empty publish to skip the broker")
	}

	if err := w.Publish(context.Background(), events()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fw.batches) != 1 || len(fw.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2, got %+v", fw.batches)
	}

	fw.err = errors.New("leader not available")
	err := w.Publish(context.Background(), events())
	if err == nil || !strings.Contains(err.Error(), "fires") {
		t.Errorf("expected error naming the topic, got %v", err)
	}

	w.Close()
	if !fw.closed {
		t.Error("expected Close to close the underlying writer")
	}
}

func TestNewWriter(t *testing.T) {
	if _, err := NewWriter(nil, "fires"); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewWriter([]string{"localhost:9092"}, ""); err == nil {
		t.Error("expected error without topic")
	}
	w, err := NewWriter([]string{"localhost:9092"}, "fires")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Topic() != "fires" {
		t.Errorf("expected topic fires, got %s", w.Topic())
	}
	kw := w.w.(*kafka.Writer)
	if _, ok := kw.Balancer.(*kafka.Hash); !ok {
		t.Errorf("expected hash balancer, got %T", kw.Balancer)
	}
}
