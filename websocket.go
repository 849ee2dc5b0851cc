package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aamani-c/PalmIQ/internal/store"
)

// handleWebSocket runs one device connection until it closes.
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		s.handleRoot(w, r)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	state := stateConnecting
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.log.Errorf("Error upgrading to WebSocket from %s: %v", r.RemoteAddr, err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(s.cfg.WS.MaxMessageBytes)

	c, active := s.registry.add(ws, r.RemoteAddr)
	s.transition(c, &state, stateOpen)
	s.log.Infof("WebSocket client connected from %s (id=%s, active=%d)", c.remoteAddr, c.id, active)

	if err := ws.WriteJSON(welcomeMessage{Message: welcomeText}); err != nil {
		s.log.Debugf("Error sending welcome to %s: %v", c.remoteAddr, err)
	}

	err = s.readLoop(c)
	if isNormalClose(err) {
		s.transition(c, &state, stateClosed)
	} else {
		s.transition(c, &state, stateError)
		s.log.Errorf("WebSocket error from %s: %v", c.remoteAddr, err)
		s.transition(c, &state, stateClosed)
	}

	active = s.registry.remove(c)
	s.log.Infof("WebSocket client disconnected from %s (id=%s, active=%d)", c.remoteAddr, c.id, active)
}

// readLoop handles messages in receipt order until the transport fails.
func (s *server) readLoop(c *deviceConn) error {
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handleMessage(c, payload); err != nil {
			return err
		}
	}
}

// handleMessage stores one device payload and acknowledges it. Malformed payloads
// are logged and dropped without a reply; only transport errors are returned.
func (s *server) handleMessage(c *deviceConn, payload []byte) error {
	fields, err := store.ParseFields(payload)
	if err != nil {
		malformedTotal.Inc()
		s.log.Errorf("Error parsing message from %s: %v", c.remoteAddr, err)
		return nil
	}
	s.log.Debugf("Received sensor data from %s: %s", c.remoteAddr, payload)

	reading := s.store.Set(fields)
	s.log.Debugf("Updated sensor data: %s", reading)
	observeReading(reading)
	s.broadcaster.submit(reading)

	if err := c.ws.WriteJSON(ackMessage{Status: "ok", Received: true}); err != nil {
		return fmt.Errorf("send ack: %w", err)
	}
	return nil
}

func (s *server) transition(c *deviceConn, state *connState, next connState) {
	s.log.Debugf("Connection %s: %s -> %s", c.id, *state, next)
	*state = next
}

// isNormalClose reports whether err is an orderly close by either side.
func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}
