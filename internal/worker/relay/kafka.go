package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter はkafka.Writerのうち使用するメソッドを抽象化する。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher はイベントをKafkaトピックへ送信する。
// キーにチャンネルIDを使い、同一チャンネルのイベントを同一パーティションへ送る。
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher はKafkaPublisherを生成する。
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{w: w}, nil
}

// Publish はメッセージを同期的に送信する。送信確認が取れない場合はエラーを返す。
func (p *KafkaPublisher) Publish(ctx context.Context, key string, value []byte) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close はライターを閉じる。
func (p *KafkaPublisher) Close() error { return p.w.Close() }

var _ Publisher = (*KafkaPublisher)(nil)
