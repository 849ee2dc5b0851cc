package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Kafka writes readings to a topic. The writer dials lazily on first publish.
type Kafka struct {
	w *kafka.Writer
}

// NewKafka builds a writer for cfg.Topic on cfg.Brokers.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, errors.New("kafka sink needs a topic")
	}
	return &Kafka{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

// Name identifies the sink in logs and metrics.
func (k *Kafka) Name() string { return "kafka" }

// Publish writes one message to the topic.
func (k *Kafka) Publish(ctx context.Context, msg Message) error {
	err := k.w.WriteMessages(ctx, kafka.Message{Value: msg.Payload, Time: msg.Time})
	if err != nil {
		return fmt.Errorf("kafka write to %s: %w", k.w.Topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
