package relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "channel-events"); err == nil {
		t.Error("expected error for empty brokers")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, ""); err == nil {
		t.Error("expected error for empty topic")
	}
}

func TestNewKafkaPublisher_WriterSettings(t *testing.T) {
	p, err := NewKafkaPublisher([]string{"kafka-1:9092", "kafka-2:9092"}, "channel-events")
	if err != nil {
		t.Fatalf("NewKafkaPublisher returned error: %v", err)
	}
	w, ok := p.w.(*kafka.Writer)
	if !ok {
		t.Fatalf("writer type = %T", p.w)
	}
	if w.Topic != "channel-events" {
		t.Errorf("Topic = %q", w.Topic)
	}
	if addr := w.Addr.String(); !strings.Contains(addr, "kafka-1:9092") || !strings.Contains(addr, "kafka-2:9092") {
		t.Errorf("Addr = %q", addr)
	}
	if w.RequiredAcks != kafka.RequireAll {
		t.Errorf("RequiredAcks = %v, want RequireAll", w.RequiredAcks)
	}
	if w.Async {
		t.Error("writer must be synchronous to report delivery errors")
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := &KafkaPublisher{w: fw}

	if err := p.Publish(context.Background(), "C1", []byte(`{"event_id":"E1"}`)); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(fw.msgs))
	}
	if string(fw.msgs[0].Key) != "C1" || string(fw.msgs[0].Value) != `{"event_id":"E1"}` {
		t.Errorf("message = %s / %s", fw.msgs[0].Key, fw.msgs[0].Value)
	}

	if err := p.Close(); err != nil || !fw.closed {
		t.Errorf("Close = %v, closed %v", err, fw.closed)
	}
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	cause := errors.New("leader not available")
	p := &KafkaPublisher{w: &fakeWriter{err: cause}}

	err := p.Publish(context.Background(), "C1", nil)
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}
