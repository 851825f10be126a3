package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/pylon/internal/event"
)

// mockGateway runs a scripted gateway server. The handler receives each
// upgraded connection in turn.
func mockGateway(t *testing.T, handler func(conn *websocket.Conn, connNum int)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	var connNum int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, int(atomic.AddInt32(&connNum, 1)))
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func sendPayload(t *testing.T, conn *websocket.Conn, p Payload) {
	t.Helper()
	if err := conn.WriteJSON(p); err != nil {
		t.Logf("server write: %v", err)
	}
}

func sendHello(t *testing.T, conn *websocket.Conn, intervalMS int) {
	d, _ := json.Marshal(helloData{HeartbeatInterval: intervalMS})
	sendPayload(t, conn, Payload{Op: OpHello, D: d})
}

func readPayload(t *testing.T, conn *websocket.Conn) (Payload, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var p Payload
	if err := conn.ReadJSON(&p); err != nil {
		return Payload{}, false
	}
	return p, true
}

func sendReady(t *testing.T, conn *websocket.Conn, sessionID string, seq int64) {
	d, _ := json.Marshal(map[string]any{
		"v":          10,
		"session_id": sessionID,
		"user":       map[string]any{"id": "1", "username": "bot"},
	})
	sendPayload(t, conn, Payload{Op: OpDispatch, D: d, S: seq, T: "READY"})
}

func waitForState(t *testing.T, s *Session, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached %s (currently %s)", want, s.State())
}

func testConfig(url string) Config {
	return Config{
		Token:              "test-token",
		GatewayURL:         url,
		ShardID:            0,
		ShardCount:         1,
		ReconnectBaseDelay: 20 * time.Millisecond,
		ReconnectMaxDelay:  100 * time.Millisecond,
		ReidentifyDelay:    10 * time.Millisecond,
	}
}

func TestSession_IdentifyToReady(t *testing.T) {
	identified := make(chan identifyData, 1)

	server := mockGateway(t, func(conn *websocket.Conn, _ int) {
		sendHello(t, conn, 60000)

		p, ok := readPayload(t, conn)
		if !ok || p.Op != OpIdentify {
			t.Errorf("expected identify, got op %d", p.Op)
			return
		}
		var id identifyData
		json.Unmarshal(p.D, &id)
		identified <- id

		sendReady(t, conn, "sess-1", 1)

		// Hold the connection open.
		for {
			if _, ok := readPayload(t, conn); !ok {
				return
			}
		}
	})
	defer server.Close()

	var events []event.Event
	cfg := testConfig(wsURL(server))
	cfg.OnEvent = func(ev event.Event) { events = append(events, ev) }

	s := NewSession(cfg, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	waitForState(t, s, StateReady, 2*time.Second)

	id := <-identified
	if id.Token != "test-token" {
		t.Errorf("identify token = %q", id.Token)
	}
	if id.Shard != [2]int{0, 1} {
		t.Errorf("identify shard = %v", id.Shard)
	}

	if s.SessionID() != "sess-1" {
		t.Errorf("session id = %q", s.SessionID())
	}
	if s.Sequence() != 1 {
		t.Errorf("sequence = %d", s.Sequence())
	}
}

func TestSession_HeartbeatAcked(t *testing.T) {
	var beats int32

	server := mockGateway(t, func(conn *websocket.Conn, _ int) {
		sendHello(t, conn, 50)

		for {
			p, ok := readPayload(t, conn)
			if !ok {
				return
			}
			switch p.Op {
			case OpIdentify:
				sendReady(t, conn, "sess-hb", 1)
			case OpHeartbeat:
				atomic.AddInt32(&beats, 1)
				sendPayload(t, conn, Payload{Op: OpHeartbeatACK})
			}
		}
	})
	defer server.Close()

	s := NewSession(testConfig(wsURL(server)), nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	waitForState(t, s, StateReady, 2*time.Second)
	time.Sleep(300 * time.Millisecond)

	if n := atomic.LoadInt32(&beats); n < 2 {
		t.Errorf("expected multiple heartbeats, got %d", n)
	}
	if s.State() != StateReady {
		t.Errorf("acked session should stay ready, state=%s", s.State())
	}
}

func TestSession_ZombieForcesReconnect(t *testing.T) {
	reconnected := make(chan struct{}, 4)

	server := mockGateway(t, func(conn *websocket.Conn, connNum int) {
		if connNum > 1 {
			reconnected <- struct{}{}
		}
		sendHello(t, conn, 50)

		for {
			p, ok := readPayload(t, conn)
			if !ok {
				return
			}
			switch p.Op {
			case OpIdentify:
				sendReady(t, conn, "sess-z", 1)
			case OpResume:
				sendPayload(t, conn, Payload{Op: OpDispatch, T: "RESUMED"})
			case OpHeartbeat:
				// Never ack: zombie the connection.
			}
		}
	})
	defer server.Close()

	s := NewSession(testConfig(wsURL(server)), nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("zombied session never reconnected")
	}
}

func TestSession_ResumeAfterDrop(t *testing.T) {
	resumed := make(chan resumeData, 1)

	server := mockGateway(t, func(conn *websocket.Conn, connNum int) {
		sendHello(t, conn, 60000)

		p, ok := readPayload(t, conn)
		if !ok {
			return
		}

		switch connNum {
		case 1:
			if p.Op != OpIdentify {
				t.Errorf("conn 1: expected identify, got %d", p.Op)
				return
			}
			sendReady(t, conn, "sess-r", 5)
			// Drop the connection abruptly; 1006 resumes by default.
			conn.Close()

		default:
			if p.Op != OpResume {
				t.Errorf("conn %d: expected resume, got %d", connNum, p.Op)
				return
			}
			var r resumeData
			json.Unmarshal(p.D, &r)
			select {
			case resumed <- r:
			default:
			}
			sendPayload(t, conn, Payload{Op: OpDispatch, T: "RESUMED"})
			for {
				if _, ok := readPayload(t, conn); !ok {
					return
				}
			}
		}
	})
	defer server.Close()

	s := NewSession(testConfig(wsURL(server)), nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	select {
	case r := <-resumed:
		if r.SessionID != "sess-r" {
			t.Errorf("resume session id = %q", r.SessionID)
		}
		if r.Seq != 5 {
			t.Errorf("resume seq = %d", r.Seq)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session never resumed")
	}

	waitForState(t, s, StateReady, 2*time.Second)
}

func TestSession_FatalClose(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn, _ int) {
		sendHello(t, conn, 60000)
		readPayload(t, conn) // identify
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseAuthFailed, "Authentication failed."),
			time.Now().Add(time.Second),
		)
	})
	defer server.Close()

	s := NewSession(testConfig(wsURL(server)), nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session never terminated on fatal close")
	}

	err := s.Err()
	fatal, ok := err.(*FatalError)
	if !ok {
		t.Fatalf("want FatalError, got %v", err)
	}
	if fatal.Code != CloseAuthFailed {
		t.Errorf("fatal code = %d", fatal.Code)
	}
}

func TestSession_InvalidSessionReidentifies(t *testing.T) {
	var invalidated int32
	identifies := make(chan struct{}, 4)

	server := mockGateway(t, func(conn *websocket.Conn, connNum int) {
		sendHello(t, conn, 60000)

		for {
			p, ok := readPayload(t, conn)
			if !ok {
				return
			}
			if p.Op != OpIdentify {
				continue
			}
			identifies <- struct{}{}

			if connNum == 1 {
				sendReady(t, conn, "sess-i", 3)
				// Session established, now invalidate it non-resumably.
				d, _ := json.Marshal(false)
				sendPayload(t, conn, Payload{Op: OpInvalidSession, D: d})
				return
			}
			sendReady(t, conn, "sess-i2", 1)
		}
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.OnInvalidate = func(shardID int) { atomic.AddInt32(&invalidated, 1) }

	s := NewSession(cfg, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	// First identify, then a second fresh identify after invalidation.
	for i := 0; i < 2; i++ {
		select {
		case <-identifies:
		case <-time.After(5 * time.Second):
			t.Fatalf("identify %d never arrived", i+1)
		}
	}

	waitForState(t, s, StateReady, 2*time.Second)
	if atomic.LoadInt32(&invalidated) == 0 {
		t.Error("expected shard cache invalidation")
	}
	if s.SessionID() != "sess-i2" {
		t.Errorf("session id = %q", s.SessionID())
	}
}

func TestSession_SequenceMonotonic(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn, _ int) {
		sendHello(t, conn, 60000)
		readPayload(t, conn) // identify
		sendReady(t, conn, "sess-s", 1)

		msg := json.RawMessage(`{"id":"10","channel_id":"20","content":"x"}`)
		sendPayload(t, conn, Payload{Op: OpDispatch, D: msg, S: 2, T: "MESSAGE_CREATE"})
		sendPayload(t, conn, Payload{Op: OpDispatch, D: msg, S: 3, T: "MESSAGE_CREATE"})
		// Duplicate and regression: ignored, not fatal.
		sendPayload(t, conn, Payload{Op: OpDispatch, D: msg, S: 2, T: "MESSAGE_CREATE"})

		for {
			if _, ok := readPayload(t, conn); !ok {
				return
			}
		}
	})
	defer server.Close()

	received := make(chan event.Event, 8)
	cfg := testConfig(wsURL(server))
	cfg.OnEvent = func(ev event.Event) { received <- ev }

	s := NewSession(cfg, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	var got int
	for got < 4 { // READY + 3 MESSAGE_CREATE
		select {
		case <-received:
			got++
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d events arrived", got)
		}
	}

	if s.Sequence() != 3 {
		t.Errorf("sequence = %d, want highest seen 3", s.Sequence())
	}
	if s.State() != StateReady {
		t.Errorf("duplicate sequence should not fail the session, state=%s", s.State())
	}
}

func TestClosePolicy_ActionFor(t *testing.T) {
	policy := DefaultClosePolicy()

	tests := []struct {
		code int
		want CloseAction
	}{
		{CloseAuthFailed, ActionFatal},
		{CloseDisallowedIntents, ActionFatal},
		{CloseShardingRequired, ActionFatal},
		{CloseSessionTimedOut, ActionReidentify},
		{CloseInvalidSeq, ActionReidentify},
		{CloseUnknownError, ActionResume},
		{websocket.CloseAbnormalClosure, ActionResume}, // unlisted
	}

	for _, tt := range tests {
		if got := policy.ActionFor(tt.code); got != tt.want {
			t.Errorf("ActionFor(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}

	// Per-revision override.
	policy[CloseRateLimited] = ActionReidentify
	if policy.ActionFor(CloseRateLimited) != ActionReidentify {
		t.Error("policy override ignored")
	}
}
