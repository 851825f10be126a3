package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/pylon/internal/event"
	"github.com/rickgao/pylon/internal/metrics"
	"github.com/rickgao/pylon/internal/model"
)

// State is the session lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateIdentifying
	StateReady
	StateResuming
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateIdentifying:
		return "identifying"
	case StateReady:
		return "ready"
	case StateResuming:
		return "resuming"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// FatalError is an unrecoverable gateway close. It stops the whole shard
// coordinator.
type FatalError struct {
	Code   int
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal gateway close %d: %s", e.Code, e.Reason)
}

const (
	helloTimeout = 15 * time.Second

	// DefaultReconnectBaseDelay and DefaultReconnectMaxDelay bound the
	// reconnect backoff.
	DefaultReconnectBaseDelay = time.Second
	DefaultReconnectMaxDelay  = 2 * time.Minute
)

// Config configures one session.
type Config struct {
	Token      string
	GatewayURL string
	ShardID    int
	ShardCount int
	Intents    model.Intents
	Presence   *Presence

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// ClosePolicy maps close codes to recovery actions; nil uses
	// DefaultClosePolicy.
	ClosePolicy ClosePolicy

	// IdentifyGate serializes the identify step across shards. The
	// session blocks on it before every fresh identify.
	IdentifyGate func(ctx context.Context) error

	// OnEvent receives decoded dispatch events in frame-arrival order.
	OnEvent func(event.Event)

	// OnInvalidate fires when a resumable session is abandoned and a
	// fresh identify follows; the owner evicts this shard's cached
	// entities.
	OnInvalidate func(shardID int)

	// ReidentifyDelay overrides the randomized 1-5s wait before a fresh
	// identify after a non-resumable invalid session. Zero keeps the
	// protocol default.
	ReidentifyDelay time.Duration
}

// Session is one persistent gateway connection. It owns its heartbeat and
// resume/identify state; the shard coordinator owns its lifecycle.
type Session struct {
	cfg    Config
	logger *slog.Logger

	state atomic.Int32
	seq   atomic.Int64

	mu        sync.Mutex
	sessionID string
	resumeURL string
	conn      *transport

	lastBeat atomic.Int64 // unix nano of last heartbeat sent
	lastAck  atomic.Int64 // unix nano of last heartbeat ack
	zombied  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	doneCh   chan struct{}
	errMu    sync.Mutex
	terminal error
}

// NewSession creates a session. It does not connect until Open.
func NewSession(cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if cfg.ClosePolicy == nil {
		cfg.ClosePolicy = DefaultClosePolicy()
	}

	return &Session{
		cfg: cfg,
		logger: logger.With(
			"shard_id", cfg.ShardID,
			"session_instance", uuid.NewString()[:8],
		),
		doneCh: make(chan struct{}),
	}
}

// Open starts the session's connect loop. It returns immediately; watch
// Done and Err for terminal failure. A session is opened at most once:
// after a fatal close the coordinator replaces it rather than reopening.
func (s *Session) Open(ctx context.Context) error {
	if s.State() != StateClosed {
		return errors.New("session already open")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
	return nil
}

// Close shuts the session down cleanly: transport close frame, heartbeat
// stopped, state Closed.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.conn != nil {
		s.conn.close(websocket.CloseNormalClosure)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Done is closed when the session reaches terminal Closed state.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Err returns the fatal error that terminated the session, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.terminal
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Sequence returns the highest event sequence number seen.
func (s *Session) Sequence() int64 { return s.seq.Load() }

// SessionID returns the server-assigned session ID, "" before Ready.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.logger.Debug("session state change", "from", old.String(), "to", st.String())
	}
	switch {
	case st == StateReady && old != StateReady:
		metrics.ConnectedShards.Inc()
	case old == StateReady && st != StateReady:
		metrics.ConnectedShards.Dec()
	}
}

// run is the session supervisor: connect, serve, classify the disconnect,
// back off, repeat. Exits only on fatal error or context cancellation.
func (s *Session) run() {
	defer s.wg.Done()
	defer close(s.doneCh)
	defer s.setState(StateClosed)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectBaseDelay
	bo.MaxInterval = s.cfg.ReconnectMaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		reachedReady, err := s.connectOnce()
		if s.ctx.Err() != nil {
			return
		}

		var fatal *FatalError
		if errors.As(err, &fatal) {
			s.logger.Error("fatal gateway close", "code", fatal.Code, "reason", fatal.Reason)
			s.errMu.Lock()
			s.terminal = fatal
			s.errMu.Unlock()
			return
		}

		if reachedReady {
			bo.Reset()
		}

		// Jittered, capped backoff avoids synchronized reconnect
		// storms across shards.
		wait := bo.NextBackOff()
		metrics.Reconnects.Inc()
		s.setState(StateReconnecting)
		s.logger.Info("reconnecting", "wait", wait, "error", err)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connectOnce runs one full connection: dial, hello, identify or resume,
// then serve frames until disconnect. reachedReady reports whether the
// connection got to Ready at least once, which resets the backoff.
func (s *Session) connectOnce() (reachedReady bool, err error) {
	s.setState(StateConnecting)
	s.zombied.Store(false)

	resuming := s.canResume()

	url := s.cfg.GatewayURL
	if resuming {
		s.mu.Lock()
		if s.resumeURL != "" {
			url = s.resumeURL
		}
		s.mu.Unlock()
	}

	conn, err := dialTransport(s.ctx, url, s.logger)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.close(websocket.CloseServiceRestart)

	interval, err := s.awaitHello(conn)
	if err != nil {
		return false, err
	}

	if resuming {
		s.setState(StateResuming)
		if err := s.sendResume(conn); err != nil {
			return false, err
		}
	} else {
		// Identify is a rate-limited resource; the coordinator gates
		// concurrency across shards.
		if s.cfg.IdentifyGate != nil {
			if err := s.cfg.IdentifyGate(s.ctx); err != nil {
				return false, err
			}
		}
		s.setState(StateIdentifying)
		if err := s.sendIdentify(conn); err != nil {
			return false, err
		}
	}

	now := time.Now().UnixNano()
	s.lastAck.Store(now)
	s.lastBeat.Store(0)

	hbDone := make(chan struct{})
	defer close(hbDone)
	s.wg.Add(1)
	go s.heartbeat(conn, time.Duration(interval)*time.Millisecond, hbDone)

	return s.serve(conn)
}

// awaitHello reads the server hello carrying the heartbeat interval.
func (s *Session) awaitHello(conn *transport) (int, error) {
	timer := time.NewTimer(helloTimeout)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return 0, s.ctx.Err()
	case <-timer.C:
		return 0, errors.New("timed out waiting for hello")
	case err := <-conn.errs:
		return 0, s.classifyDisconnect(err)
	case p, ok := <-conn.payloads:
		if !ok {
			return 0, errors.New("connection closed before hello")
		}
		if p.Op != OpHello {
			return 0, fmt.Errorf("%w: expected hello, got opcode %d", errProtocol, p.Op)
		}
		var hello helloData
		if err := json.Unmarshal(p.D, &hello); err != nil {
			return 0, fmt.Errorf("%w: decode hello: %v", errProtocol, err)
		}
		if hello.HeartbeatInterval <= 0 {
			return 0, fmt.Errorf("%w: hello without heartbeat interval", errProtocol)
		}
		return hello.HeartbeatInterval, nil
	}
}

// serve pumps frames until the connection drops or a fatal condition
// surfaces.
func (s *Session) serve(conn *transport) (reachedReady bool, err error) {
	for {
		select {
		case <-s.ctx.Done():
			conn.close(websocket.CloseNormalClosure)
			return reachedReady, nil

		case err := <-conn.errs:
			return reachedReady, s.classifyDisconnect(err)

		case p, ok := <-conn.payloads:
			if !ok {
				select {
				case err := <-conn.errs:
					return reachedReady, s.classifyDisconnect(err)
				default:
					return reachedReady, errors.New("connection closed")
				}
			}

			done, err := s.handlePayload(conn, p)
			if s.State() == StateReady {
				reachedReady = true
			}
			if err != nil || done {
				return reachedReady, err
			}
		}
	}
}

// handlePayload processes one inbound frame. done requests a reconnect
// without treating it as an error (server-requested reconnect, invalid
// session).
func (s *Session) handlePayload(conn *transport, p Payload) (done bool, err error) {
	switch p.Op {
	case OpDispatch:
		s.handleDispatch(p)
		return false, nil

	case OpHeartbeat:
		// Server demands an immediate beat.
		if err := s.sendHeartbeat(conn); err != nil {
			return false, err
		}
		return false, nil

	case OpHeartbeatACK:
		s.lastAck.Store(time.Now().UnixNano())
		return false, nil

	case OpReconnect:
		s.logger.Info("server requested reconnect")
		return true, nil

	case OpInvalidSession:
		if invalidSessionResumable(p.D) {
			s.logger.Warn("invalid session, resumable")
			return true, nil
		}
		s.logger.Warn("invalid session, not resumable")
		s.clearSession()
		// Randomized wait before re-identifying, per protocol.
		delay := s.cfg.ReidentifyDelay
		if delay <= 0 {
			delay = time.Duration(1+rand.Intn(4)) * time.Second
		}
		select {
		case <-s.ctx.Done():
		case <-time.After(delay):
		}
		return true, nil

	case OpHello:
		// Duplicate hello after handshake; harmless.
		s.logger.Debug("unexpected hello after handshake")
		return false, nil

	default:
		return false, fmt.Errorf("%w: unexpected opcode %d", errProtocol, p.Op)
	}
}

// handleDispatch tracks sequence numbers, watches for the Ready/Resumed
// acknowledgments, and emits the decoded event.
func (s *Session) handleDispatch(p Payload) {
	if p.S != 0 {
		last := s.seq.Load()
		if p.S <= last {
			// Out-of-order or duplicate delivery; keep the highest
			// seen value and move on.
			s.logger.Debug("non-monotonic sequence", "got", p.S, "have", last)
		} else {
			s.seq.Store(p.S)
		}
	}

	switch p.T {
	case "READY":
		var ready event.ReadyData
		if err := json.Unmarshal(p.D, &ready); err != nil {
			s.logger.Error("decode ready", "error", err)
			return
		}
		s.mu.Lock()
		s.sessionID = ready.SessionID
		s.resumeURL = ready.ResumeGatewayURL
		s.mu.Unlock()
		s.setState(StateReady)
		s.logger.Info("session ready",
			"session_id", ready.SessionID,
			"guilds", len(ready.Guilds),
		)

	case "RESUMED":
		s.setState(StateReady)
		s.logger.Info("session resumed", "seq", s.seq.Load())
	}

	metrics.EventsReceived.WithLabelValues(p.T).Inc()

	ev, err := event.Decode(p.T, s.cfg.ShardID, p.S, p.D)
	if err != nil {
		// One undecodable event is not worth the connection.
		s.logger.Warn("event decode failed", "type", p.T, "error", err)
		return
	}
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev)
	}
}

// heartbeat fires every interval after a randomized initial jitter. A
// beat sent without seeing an ack first marks the connection zombied and
// forces exactly one reconnect.
func (s *Session) heartbeat(conn *transport, interval time.Duration, done <-chan struct{}) {
	defer s.wg.Done()

	jitter := time.Duration(rand.Float64() * float64(interval))
	select {
	case <-done:
		return
	case <-s.ctx.Done():
		return
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s.lastBeat.Load() > s.lastAck.Load() {
			// Previous beat never acked: zombied. The CAS guarantees a
			// single transition even if the read loop races us.
			if s.zombied.CompareAndSwap(false, true) {
				metrics.HeartbeatMisses.Inc()
				s.logger.Warn("heartbeat ack missed, closing zombied connection")
				conn.close(websocket.CloseServiceRestart)
			}
			return
		}

		if err := s.sendHeartbeat(conn); err != nil {
			return
		}

		select {
		case <-done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) sendHeartbeat(conn *transport) error {
	seq := s.seq.Load()
	var d json.RawMessage
	if seq == 0 {
		d = json.RawMessage("null")
	} else {
		d = json.RawMessage(fmt.Sprintf("%d", seq))
	}
	if err := conn.send(Payload{Op: OpHeartbeat, D: d}); err != nil {
		return err
	}
	s.lastBeat.Store(time.Now().UnixNano())
	return nil
}

func (s *Session) sendIdentify(conn *transport) error {
	p, err := marshalPayload(OpIdentify, identifyData{
		Token: s.cfg.Token,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "pylon",
			Device:  "pylon",
		},
		Intents:  s.cfg.Intents,
		Shard:    [2]int{s.cfg.ShardID, s.cfg.ShardCount},
		Presence: s.cfg.Presence,
	})
	if err != nil {
		return err
	}
	return conn.send(p)
}

func (s *Session) sendResume(conn *transport) error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	p, err := marshalPayload(OpResume, resumeData{
		Token:     s.cfg.Token,
		SessionID: sessionID,
		Seq:       s.seq.Load(),
	})
	if err != nil {
		return err
	}
	return conn.send(p)
}

// classifyDisconnect maps a transport error to a recovery decision using
// the close policy.
func (s *Session) classifyDisconnect(err error) error {
	if errors.Is(err, errProtocol) {
		// Malformed frame: log and reconnect rather than crash.
		s.logger.Warn("protocol error, reconnecting", "error", err)
		return nil
	}

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		// Dropped transport; resume if possible.
		s.logger.Warn("connection lost", "error", err)
		return nil
	}

	switch s.cfg.ClosePolicy.ActionFor(closeErr.Code) {
	case ActionFatal:
		return &FatalError{Code: closeErr.Code, Reason: closeErr.Text}

	case ActionReidentify:
		s.logger.Warn("close requires fresh identify",
			"code", closeErr.Code,
			"reason", closeErr.Text,
		)
		s.clearSession()
		return nil

	default:
		s.logger.Info("recoverable close",
			"code", closeErr.Code,
			"reason", closeErr.Text,
		)
		return nil
	}
}

// clearSession drops resume state and evicts this shard's cached
// entities.
func (s *Session) clearSession() {
	s.mu.Lock()
	s.sessionID = ""
	s.resumeURL = ""
	s.mu.Unlock()
	s.seq.Store(0)

	if s.cfg.OnInvalidate != nil {
		s.cfg.OnInvalidate(s.cfg.ShardID)
	}
}

func (s *Session) canResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID != "" && s.seq.Load() > 0
}
