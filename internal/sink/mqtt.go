package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

const mqttWaitTimeout = 5 * time.Second

// MQTT publishes readings to a broker topic.
type MQTT struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewMQTT connects to cfg.Broker, waiting up to five seconds.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Topic == "" {
		return nil, errors.New("mqtt sink needs a topic")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos %d out of range", cfg.QoS)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "palmiq-relay-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttWaitTimeout)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(mqttWaitTimeout) {
		return nil, fmt.Errorf("connect mqtt at %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt at %s: %w", cfg.Broker, err)
	}
	return &MQTT{client: client, topic: cfg.Topic, qos: cfg.QoS}, nil
}

// Name identifies the sink in logs and metrics.
func (m *MQTT) Name() string { return "mqtt" }

// Publish sends one message and waits for the broker or ctx.
func (m *MQTT) Publish(ctx context.Context, msg Message) error {
	token := m.client.Publish(m.topic, m.qos, false, msg.Payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Close disconnects, allowing 250ms for in-flight work.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
