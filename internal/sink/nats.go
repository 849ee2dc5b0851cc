package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	URL     string
	Subject string
}

// NATS publishes readings on a core NATS subject.
type NATS struct {
	nc      *nats.Conn
	subject string
}

// NewNATS connects to the NATS server. The client reconnects on its own afterwards.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.Subject == "" {
		return nil, errors.New("nats sink needs a subject")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("palmiq-relay"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats at %s: %w", cfg.URL, err)
	}
	return &NATS{nc: nc, subject: cfg.Subject}, nil
}

// Name identifies the sink in logs and metrics.
func (n *NATS) Name() string { return "nats" }

// Publish sends one message on the subject. Core NATS does not wait for delivery.
func (n *NATS) Publish(_ context.Context, msg Message) error {
	if err := n.nc.Publish(n.subject, msg.Payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close flushes pending messages before closing the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
