package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aamani-c/PalmIQ/internal/sink"
	"github.com/aamani-c/PalmIQ/internal/store"
)

// broadcaster forwards accepted readings to the downstream sinks from a single
// worker, so ingestion never waits on a broker.
type broadcaster struct {
	sinks   []sink.Sink
	queue   chan sink.Message
	timeout time.Duration
	log     *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newBroadcaster(sinks []sink.Sink, cfg BroadcastConfig, log *zap.SugaredLogger) *broadcaster {
	b := &broadcaster{
		sinks:   sinks,
		queue:   make(chan sink.Message, cfg.QueueSize),
		timeout: cfg.PublishTimeout,
		log:     log,
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// submit queues r for forwarding. It never blocks: when the queue is full the
// reading is dropped.
func (b *broadcaster) submit(r store.Reading) {
	if len(b.sinks) == 0 {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		b.log.Errorf("Error encoding reading for broadcast: %v", err)
		return
	}
	msg := sink.Message{Payload: payload, Time: time.Now()}
	if r.Timestamp != nil {
		msg.Time = *r.Timestamp
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- msg:
	default:
		broadcastDropped.Inc()
		b.log.Debugf("Broadcast queue full, dropping reading")
	}
}

// run sends each queued message to every sink until the queue is closed.
func (b *broadcaster) run() {
	defer close(b.done)
	for msg := range b.queue {
		for _, s := range b.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			err := s.Publish(ctx, msg)
			cancel()
			if err != nil {
				sinkErrors.WithLabelValues(s.Name()).Inc()
				b.log.Warnf("Error forwarding reading to %s: %v", s.Name(), err)
			}
		}
	}
}

// close drains the queue and closes the sinks. If ctx ends first the sinks are
// left open and the context error is returned. Readings submitted afterwards are
// ignored, and later calls return nil.
func (b *broadcaster) close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	select {
	case <-b.done:
	case <-ctx.Done():
		// The worker may still be publishing, so the sinks stay open.
		return fmt.Errorf("broadcast queue not drained before shutdown: %w", ctx.Err())
	}
	return sink.CloseAll(b.sinks)
}
