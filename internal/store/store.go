// Package store holds the single most recent sensor reading shared between the
// ingestion channel and the query endpoint.
//
// The current value is an immutable *Reading swapped atomically, so readers never
// observe a mix of two readings and neither side waits on the other.
package store

import (
	"sync/atomic"
	"time"
)

// Store owns the latest Reading.
type Store struct {
	current atomic.Pointer[Reading]
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp ingestion time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New returns a Store holding the empty reading.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	empty := Empty()
	s.current.Store(&empty)
	return s
}

// Set replaces the current reading with f stamped at the server's ingestion time.
// Absent fields in f are absent in the new reading; nothing carries over.
func (s *Store) Set(f Fields) Reading {
	ts := s.now().UTC()
	next := &Reading{
		Heart:     cloneFloat(f.Heart),
		SpO2:      cloneFloat(f.SpO2),
		TempC:     cloneFloat(f.TempC),
		Timestamp: &ts,
	}
	s.current.Store(next)
	return next.Clone()
}

// Get returns a copy of the current reading.
func (s *Store) Get() Reading {
	return s.current.Load().Clone()
}
