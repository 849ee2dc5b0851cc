package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// connState is the lifecycle of one device connection.
type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateError
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateError:
		return "error"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// deviceConn is one live ingestion connection.
type deviceConn struct {
	id          string
	remoteAddr  string
	connectedAt time.Time
	ws          *websocket.Conn
}

// registry keeps track of connected devices for diagnostics and shutdown.
type registry struct {
	mu    sync.Mutex
	conns map[string]*deviceConn
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*deviceConn)}
}

// add registers ws and returns its entry and the number of live connections.
func (r *registry) add(ws *websocket.Conn, remoteAddr string) (*deviceConn, int) {
	c := &deviceConn{
		id:          uuid.NewString(),
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		ws:          ws,
	}
	r.mu.Lock()
	r.conns[c.id] = c
	n := len(r.conns)
	r.mu.Unlock()

	activeConnections.Inc()
	connectionsTotal.Inc()
	return c, n
}

// remove drops c and returns the number of live connections left.
func (r *registry) remove(c *deviceConn) int {
	r.mu.Lock()
	_, ok := r.conns[c.id]
	delete(r.conns, c.id)
	n := len(r.conns)
	r.mu.Unlock()

	if ok {
		activeConnections.Dec()
	}
	return n
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// closeAll sends a close frame to every connection. The read loops then exit and
// remove themselves. A connection that cannot take the frame is closed outright;
// the number of such connections is returned.
func (r *registry) closeAll(reason string, log *zap.SugaredLogger) int {
	r.mu.Lock()
	conns := make([]*deviceConn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	deadline := time.Now().Add(time.Second)
	failed := 0
	for _, c := range conns {
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			failed++
			log.Warnf("Error sending close frame to %s (id=%s): %v", c.remoteAddr, c.id, err)
			c.ws.Close()
		}
	}
	return failed
}
