package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	errTransportClosed = errors.New("transport closed")
	// errProtocol marks a malformed frame; the session reconnects
	// instead of crashing.
	errProtocol = errors.New("protocol error")
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	payloadBuffer    = 256
)

// transport wraps one WebSocket connection: a read-loop goroutine feeding
// a payload channel, serialized writes with deadlines, and clean close.
type transport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	payloads chan Payload
	errs     chan error
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// dialTransport connects and starts the read loop.
func dialTransport(ctx context.Context, url string, logger *slog.Logger) (*transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	t := &transport{
		conn:     conn,
		logger:   logger,
		payloads: make(chan Payload, payloadBuffer),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}

	go t.readLoop()

	logger.Debug("gateway transport connected", "url", url)
	return t, nil
}

// send writes one payload with a deadline. Writes are serialized; the
// heartbeat goroutine and the session share this path.
func (t *transport) send(p Payload) error {
	select {
	case <-t.done:
		return errTransportClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteJSON(p)
}

// close sends a close frame and tears the connection down. Safe to call
// multiple times and from any goroutine.
func (t *transport) close(code int) {
	t.closeOnce.Do(func() {
		close(t.done)

		t.writeMu.Lock()
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()

		t.conn.Close()
	})
}

// readLoop reads frames until the connection drops, pushing payloads and
// the terminal error.
func (t *transport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				select {
				case t.errs <- err:
				default:
				}
			}
			close(t.payloads)
			return
		}

		var p Payload
		if err := json.Unmarshal(data, &p); err != nil {
			// Malformed frame: surface as a protocol error so the
			// session reconnects rather than crashing.
			t.logger.Warn("malformed gateway frame", "error", err)
			select {
			case t.errs <- fmt.Errorf("%w: %v", errProtocol, err):
			default:
			}
			close(t.payloads)
			return
		}

		select {
		case t.payloads <- p:
		case <-t.done:
			close(t.payloads)
			return
		}
	}
}
