package main

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// dialDevice connects like a sensor device and consumes the welcome message.
func dialDevice(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	var welcome map[string]any
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome["message"] != "Connected to health monitoring server" || len(welcome) != 1 {
		t.Fatalf("unexpected welcome %v", welcome)
	}
	return ws
}

func sendJSON(t *testing.T, ws *websocket.Conn, payload string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readAck(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	var ack map[string]any
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack["status"] != "ok" || ack["received"] != true || len(ack) != 2 {
		t.Fatalf("unexpected ack %v", ack)
	}
}

// expectSilence fails if any message arrives within d. The connection cannot be
// read from afterwards.
func expectSilence(t *testing.T, ws *websocket.Conn, d time.Duration) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(d))
	if _, msg, err := ws.ReadMessage(); err == nil {
		t.Fatalf("expected no message, got %s", msg)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIngestUpdatesStoreAndAcks(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)

	sendJSON(t, ws, `{"heart":72,"spo2":97,"temp_c":36.8}`)
	readAck(t, ws)

	got := s.store.Get()
	if got.IsEmpty() {
		t.Fatal("expected store to be updated")
	}
	if *got.Heart != 72 || *got.SpO2 != 97 || *got.TempC != 36.8 {
		t.Fatalf("unexpected reading %s", got)
	}
	if time.Since(*got.Timestamp) > time.Minute {
		t.Fatalf("timestamp not assigned at ingestion: %v", got.Timestamp)
	}
}

func TestIngestIgnoresDeviceTimestamp(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)

	sendJSON(t, ws, `{"heart":60,"timestamp":"1999-01-01T00:00:00.000Z"}`)
	readAck(t, ws)

	if got := s.store.Get(); got.Timestamp.Year() == 1999 {
		t.Fatalf("device timestamp leaked into store: %v", got.Timestamp)
	}
}

func TestIngestReplacesWholesale(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)

	sendJSON(t, ws, `{"heart":70,"spo2":98,"temp_c":36.5}`)
	readAck(t, ws)
	sendJSON(t, ws, `{"heart":72}`)
	readAck(t, ws)

	got := s.store.Get()
	if *got.Heart != 72 || got.SpO2 != nil || got.TempC != nil {
		t.Fatalf("expected only heart to remain, got %s", got)
	}
}

func TestMalformedMessageIsSilentAndKeepsConnection(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)

	sendJSON(t, ws, `{"heart":70}`)
	readAck(t, ws)
	before := s.store.Get()

	dropped := testutil.ToFloat64(malformedTotal)
	bad := []string{`not json`, `{"heart":"fast"}`, `[1,2,3]`, `null`}
	for _, p := range bad {
		sendJSON(t, ws, p)
	}
	waitFor(t, func() bool { return testutil.ToFloat64(malformedTotal) == dropped+float64(len(bad)) })
	if got := s.store.Get(); got.String() != before.String() {
		t.Fatalf("store changed after malformed input: %s", got)
	}

	// The connection survives: the next valid reading is accepted.
	sendJSON(t, ws, `{"heart":71}`)
	readAck(t, ws)
	if got := s.store.Get(); *got.Heart != 71 {
		t.Fatalf("expected heart 71, got %s", got)
	}

	// Exactly one ack per valid message, none for the malformed ones.
	expectSilence(t, ws, 200*time.Millisecond)
}

func TestAcksFollowReceiptOrder(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)

	const n = 25
	for i := 0; i < n; i++ {
		sendJSON(t, ws, `{"heart":`+strconv.Itoa(60+i)+`}`)
	}
	for i := 0; i < n; i++ {
		readAck(t, ws)
	}
	if got := s.store.Get(); *got.Heart != float64(60+n-1) {
		t.Fatalf("expected last reading to win, got %s", got)
	}
	expectSilence(t, ws, 200*time.Millisecond)
}

func TestBinaryFramesAccepted(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)

	if err := ws.WriteMessage(websocket.BinaryMessage, []byte(`{"temp_c":37.2}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	readAck(t, ws)
	if got := s.store.Get(); got.TempC == nil || *got.TempC != 37.2 {
		t.Fatalf("unexpected reading %s", got)
	}
}

func TestConnectionsAreIndependent(t *testing.T) {
	s, ts := newTestServer(t)
	a := dialDevice(t, ts)
	b := dialDevice(t, ts)
	waitFor(t, func() bool { return s.registry.len() == 2 })

	sendJSON(t, a, `{"heart":80}`)
	readAck(t, a)

	// Drop A without a close handshake while B keeps sending.
	sendJSON(t, b, `{"heart":90}`)
	a.UnderlyingConn().Close()
	readAck(t, b)
	sendJSON(t, b, `{"heart":91,"spo2":99}`)
	readAck(t, b)

	waitFor(t, func() bool { return s.registry.len() == 1 })
	got := s.store.Get()
	if *got.Heart != 91 || *got.SpO2 != 99 {
		t.Fatalf("expected B's last reading, got %s", got)
	}
}

func TestRegistryTracksLifecycle(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)
	waitFor(t, func() bool { return s.registry.len() == 1 })

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitFor(t, func() bool { return s.registry.len() == 0 })
}

func TestOversizedMessageClosesConnection(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)

	big := `{"heart":70,"pad":"` + strings.Repeat("x", int(s.cfg.WS.MaxMessageBytes)) + `"}`
	// The server may reset the socket before the whole frame is written.
	ws.WriteMessage(websocket.TextMessage, []byte(big))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, msg, err := ws.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to be closed, got %s", msg)
	}
	waitFor(t, func() bool { return s.registry.len() == 0 })
	if !s.store.Get().IsEmpty() {
		t.Fatal("oversized message must not reach the store")
	}
}

func TestIsNormalClose(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{&websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{&websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{&websocket.CloseError{Code: websocket.CloseNoStatusReceived}, true},
		{&websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{websocket.ErrReadLimit, false},
	}
	for _, tc := range cases {
		if got := isNormalClose(tc.err); got != tc.want {
			t.Errorf("isNormalClose(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestConnStateString(t *testing.T) {
	want := map[connState]string{
		stateConnecting: "connecting",
		stateOpen:       "open",
		stateError:      "error",
		stateClosed:     "closed",
		connState(42):   "unknown",
	}
	for st, name := range want {
		if st.String() != name {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), name)
		}
	}
}

func TestIngestMatchesMemberNamesExactly(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialDevice(t, ts)

	sendJSON(t, ws, `{"heart":70,"Temp_C":"n/a"}`)
	readAck(t, ws)
	sendJSON(t, ws, `{"HEART":72,"Spo2":97}`)
	readAck(t, ws)

	got := s.store.Get()
	if got.IsEmpty() || got.Heart != nil || got.SpO2 != nil || got.TempC != nil {
		t.Fatalf("expected a reading with no vitals, got %s", got)
	}
}
