package opencode

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultHeaderTimeout bounds how long a connection attempt may wait for
// response headers before it is treated as failed.
const DefaultHeaderTimeout = 30 * time.Second

// ConnState is the connection state of a Subscriber.
type ConnState int

const (
	// StateDisconnected means no connection exists and none is pending.
	StateDisconnected ConnState = iota
	// StateConnecting means a connection attempt is in flight.
	StateConnecting
	// StateConnected means the event stream is live.
	StateConnected
	// StateAwaitingReconnect means a reconnect timer is armed.
	StateAwaitingReconnect
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAwaitingReconnect:
		return "awaiting-reconnect"
	default:
		return "unknown"
	}
}

// Handler receives decoded events in arrival order. It is called from the
// subscriber's reader goroutine, one event at a time.
type Handler func(*StreamEvent)

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(initial, max time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.backoff = NewBackoff(initial, max)
	}
}

// WithHeaderTimeout sets how long to wait for response headers before
// treating a connection attempt as failed.
func WithHeaderTimeout(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		if d > 0 {
			s.headerTimeout = d
		}
	}
}

// WithStateFunc registers a listener for connection state changes. The
// listener is invoked with the subscriber's lock held and must not call back
// into the subscriber.
func WithStateFunc(fn func(ConnState)) SubscriberOption {
	return func(s *Subscriber) {
		s.onState = fn
	}
}

// Subscriber owns one long-lived connection to the server event feed for the
// currently governing session. It reconnects with capped exponential backoff
// on failure, drops events that belong to another session, and tears
// everything down on Pause (app backgrounded) and Close (consumer gone).
type Subscriber struct {
	client  *Client
	handler Handler
	logger  *Logger

	headerTimeout time.Duration
	backoff       *Backoff
	onState       func(ConnState)

	mu         sync.Mutex
	sessionID  string
	state      ConnState
	paused     bool
	closed     bool
	generation int
	cancel     context.CancelFunc
	timer      *time.Timer
}

// NewSubscriber creates a subscriber delivering events to handler. No
// connection exists until a session is set with SetSession.
func (c *Client) NewSubscriber(handler Handler, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		client:        c,
		handler:       handler,
		logger:        c.logger,
		headerTimeout: DefaultHeaderTimeout,
		backoff:       NewBackoff(DefaultInitialDelay, DefaultMaxDelay),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session returns the governing session id.
func (s *Subscriber) Session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// State returns the current connection state.
func (s *Subscriber) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSession switches the governing session. The previous connection and any
// pending reconnect are torn down first; an empty id means "no stream".
func (s *Subscriber) SetSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || id == s.sessionID {
		return
	}
	s.sessionID = id
	s.teardownLocked()
	s.backoff.Reset()
	s.connectLocked()
}

// Pause tears down the connection while the application is backgrounded.
func (s *Subscriber) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.paused {
		return
	}
	s.paused = true
	s.teardownLocked()
}

// Resume re-arms a fresh connection attempt after Pause, with backoff reset.
func (s *Subscriber) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.paused {
		return
	}
	s.paused = false
	s.backoff.Reset()
	s.connectLocked()
}

// Close tears the subscriber down for good. It is idempotent, and no handler
// invocation can happen after it returns.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.teardownLocked()
}

// connectLocked starts a connection attempt if one may and should run.
// Calling it while already connecting or connected is a no-op.
func (s *Subscriber) connectLocked() {
	if s.closed || s.paused || s.sessionID == "" {
		return
	}
	if s.state == StateConnecting || s.state == StateConnected {
		return
	}

	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.setStateLocked(StateConnecting)

	go s.run(ctx, cancel, gen)
}

// teardownLocked aborts the in-flight connection, cancels any pending
// reconnect timer, and invalidates outstanding reader goroutines.
func (s *Subscriber) teardownLocked() {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.setStateLocked(StateDisconnected)
}

func (s *Subscriber) setStateLocked(st ConnState) {
	if s.state == st {
		return
	}
	s.state = st
	if s.onState != nil {
		s.onState(st)
	}
}

// run is one connection attempt plus its read loop.
func (s *Subscriber) run(ctx context.Context, cancel context.CancelFunc, gen int) {
	headerTimer := time.AfterFunc(s.headerTimeout, cancel)
	resp, err := s.client.openStream(ctx, http.MethodGet, "/api/event", nil)
	headerTimer.Stop()
	if err != nil {
		s.scheduleReconnect(gen, err)
		return
	}
	defer resp.Body.Close()

	if !s.markConnected(gen) {
		return
	}

	parser := NewFrameParser()
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, raw := range parser.Feed(buf[:n]) {
				if !s.deliver(gen, DecodeEvent(raw)) {
					return
				}
			}
			if parser.Done() {
				break
			}
		}
		if err != nil {
			break
		}
	}

	// Stream ended (EOF, server close, or [DONE]); reconnect.
	s.scheduleReconnect(gen, nil)
}

// markConnected transitions to connected and resets backoff, unless the
// attempt has been superseded.
func (s *Subscriber) markConnected(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.closed {
		return false
	}
	s.setStateLocked(StateConnected)
	s.backoff.Reset()
	s.logger.Info("event stream connected", "session", s.sessionID)
	return true
}

// deliver hands one event to the handler. Events for a session other than
// the governing one are dropped; the governing id is read here, at delivery
// time, so a slow-closing previous stream cannot pollute a newly opened
// session. Returns false once the attempt is stale and the reader must stop.
func (s *Subscriber) deliver(gen int, ev *StreamEvent) bool {
	s.mu.Lock()
	if gen != s.generation || s.closed || s.paused {
		s.mu.Unlock()
		return false
	}
	sid := s.sessionID
	s.mu.Unlock()

	if evSID := ev.SessionID(); evSID != "" && evSID != sid {
		s.logger.Debug("dropping stale-session event", "type", ev.Type, "session", evSID)
		return true
	}

	s.safeHandle(ev)
	return true
}

// safeHandle invokes the handler so that a panic cannot take down the
// reader goroutine or the process.
func (s *Subscriber) safeHandle(ev *StreamEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	s.handler(ev)
}

// scheduleReconnect arms the backoff timer after a failed attempt or a
// stream that ended.
func (s *Subscriber) scheduleReconnect(gen int, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.closed || s.paused || s.sessionID == "" {
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	delay := s.backoff.Next()
	if cause != nil {
		s.logger.Warn("event stream failed", "error", cause, "retry_in", delay)
	} else {
		s.logger.Info("event stream ended", "retry_in", delay)
	}

	s.setStateLocked(StateAwaitingReconnect)
	s.timer = time.AfterFunc(delay, s.onReconnectTimer)
}

// onReconnectTimer fires when the backoff delay elapses.
func (s *Subscriber) onReconnectTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingReconnect {
		// Torn down or superseded while the timer was in flight.
		return
	}
	s.timer = nil
	s.connectLocked()
}
