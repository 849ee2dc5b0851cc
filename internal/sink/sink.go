// Package sink forwards accepted readings to downstream brokers.
//
// Every sink is best-effort: a failed publish is reported to the caller and
// nothing is retried.
package sink

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Message is one encoded reading.
type Message struct {
	Payload []byte
	Time    time.Time
}

// Sink publishes messages to one downstream system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Config selects and configures the sinks. A sink is enabled when its address is set.
type Config struct {
	Redis RedisConfig
	NATS  NATSConfig
	Kafka KafkaConfig
	MQTT  MQTTConfig
}

// Build connects every enabled sink. Sinks that fail to connect are logged and
// skipped so the relay can still start.
func Build(ctx context.Context, cfg Config, log *zap.SugaredLogger) []Sink {
	var sinks []Sink

	if cfg.Redis.Addr != "" {
		s, err := NewRedis(ctx, cfg.Redis)
		if err != nil {
			log.Errorf("Redis sink disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.NATS.URL != "" {
		s, err := NewNATS(cfg.NATS)
		if err != nil {
			log.Errorf("NATS sink disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		s, err := NewKafka(cfg.Kafka)
		if err != nil {
			log.Errorf("Kafka sink disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.MQTT.Broker != "" {
		s, err := NewMQTT(cfg.MQTT)
		if err != nil {
			log.Errorf("MQTT sink disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	for _, s := range sinks {
		log.Infof("Forwarding readings to %s", s.Name())
	}
	return sinks
}

// CloseAll closes every sink and joins their errors.
func CloseAll(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
