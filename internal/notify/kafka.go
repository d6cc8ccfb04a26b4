package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	billing "prepaid-billing/internal/billing/domain"
)

// Writer is the subset of kafka.Writer used by KafkaNotifier.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes alerts as JSON keyed by account id.
type KafkaNotifier struct {
	writer Writer
}

// NewKafkaNotifier writes to topic on the given brokers.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka notifier: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka notifier: empty topic")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: w}, nil
}

// NewKafkaNotifierWithWriter injects a writer.
func NewKafkaNotifierWithWriter(w Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

// Notify publishes alert.
func (n *KafkaNotifier) Notify(ctx context.Context, alert billing.Alert) error {
	if n == nil || n.writer == nil {
		return errors.New("kafka notifier: nil writer")
	}
	value, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.AccountID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "alert_type", Value: []byte(alert.Type)},
		},
	})
}

// Close closes the writer.
func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
