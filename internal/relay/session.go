package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	dialTimeout           = 10 * time.Second
	defaultReconnectDelay = 3 * time.Second
)

var (
	// ErrNotConnected is returned by Get when the link is down. Emit and
	// Set signal the same condition with a false return instead.
	ErrNotConnected = errors.New("relay: not connected")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("relay: session closed")
)

type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
)

// Handler receives one subscription update: the raw value and the concrete
// address it arrived on. The address matters for wildcard patterns. A nil
// value means the shared value at that address was cleared.
type Handler func(value json.RawMessage, addr string)

type subscription struct {
	sid     int64
	pattern string
	fn      Handler
}

// Session owns the single live relay connection: dialing, the fixed-delay
// reconnect loop, subscription bookkeeping, and the primitive operations.
// One Session is shared process-wide and reused across room switches;
// per-room state lives above it.
//
// Updates are dispatched from a single read goroutine, so a given handler
// is never re-entered concurrently with another handler of the same
// session.
type Session struct {
	url  string
	dial Dialer
	log  *zap.Logger

	reconnectDelay time.Duration

	// wmu serializes writes to the connection.
	wmu sync.Mutex

	mu         sync.Mutex
	st         state
	conn       Conn
	closed     bool
	nextSID    int64
	nextRID    int64
	subs       map[int64]*subscription
	pending    map[int64]chan json.RawMessage
	reconnect  *time.Timer
	readCancel context.CancelFunc
}

func NewSession(url string, dial Dialer, log *zap.Logger) *Session {
	if dial == nil {
		dial = DialWebsocket
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		url:            url,
		dial:           dial,
		log:            log,
		reconnectDelay: defaultReconnectDelay,
		subs:           make(map[int64]*subscription),
		pending:        make(map[int64]chan json.RawMessage),
	}
}

// Connect dials the relay and starts the read loop. Connecting while the
// link is already up (or being brought up) is a no-op. A dial failure is
// returned to the caller, but the session keeps retrying on its own with a
// fixed delay.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.st != stateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.st = stateConnecting
	s.mu.Unlock()

	return s.establish(ctx)
}

// establish dials and installs a fresh connection. The caller must have
// moved the session to stateConnecting.
func (s *Session) establish(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := s.dial(dialCtx, s.url)
	cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		s.st = stateDisconnected
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		return fmt.Errorf("relay connect: %w", err)
	}

	s.conn = conn
	s.st = stateConnected
	readCtx, readCancel := context.WithCancel(context.Background())
	s.readCancel = readCancel

	// Replay live subscriptions onto the fresh connection.
	frames := make([]Frame, 0, len(s.subs))
	for _, sub := range s.subs {
		frames = append(frames, Frame{Op: opSub, SID: sub.sid, Addr: sub.pattern})
	}
	s.mu.Unlock()

	s.log.Info("relay connected", zap.String("url", s.url), zap.Int("subscriptions", len(frames)))
	for _, f := range frames {
		if !s.write(f) {
			break
		}
	}

	go s.readLoop(readCtx, conn)
	return nil
}

func (s *Session) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			s.connLost(conn)
			return
		}
		s.dispatch(data)
	}
}

// dispatch routes one inbound frame. Malformed frames are dropped, never
// fatal.
func (s *Session) dispatch(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Debug("dropping malformed relay frame", zap.Error(err))
		return
	}

	switch f.Op {
	case opEvent, opState:
		if f.Addr == "" {
			return
		}
		for _, sub := range s.matching(f.Addr) {
			sub.fn(f.Value, f.Addr)
		}
	case opResult:
		s.mu.Lock()
		ch, ok := s.pending[f.RID]
		delete(s.pending, f.RID)
		s.mu.Unlock()
		if ok {
			ch <- f.Value
		}
	default:
		s.log.Debug("dropping relay frame with unknown op", zap.String("op", f.Op))
	}
}

func (s *Session) matching(addr string) []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*subscription
	for _, sub := range s.subs {
		if MatchAddress(sub.pattern, addr) {
			out = append(out, sub)
		}
	}
	return out
}

// Subscribe registers fn for every event or state update whose address
// matches pattern, and returns the unsubscribe func. The registration
// survives reconnects: while the link is down it is only recorded, then
// replayed once the link is back.
func (s *Session) Subscribe(pattern string, fn Handler) func() {
	s.mu.Lock()
	s.nextSID++
	sub := &subscription{sid: s.nextSID, pattern: pattern, fn: fn}
	s.subs[sub.sid] = sub
	connected := s.st == stateConnected
	s.mu.Unlock()

	if connected {
		s.write(Frame{Op: opSub, SID: sub.sid, Addr: pattern})
	}

	return func() {
		s.mu.Lock()
		_, live := s.subs[sub.sid]
		delete(s.subs, sub.sid)
		connected := s.st == stateConnected
		s.mu.Unlock()
		if live && connected {
			s.write(Frame{Op: opUnsub, SID: sub.sid})
		}
	}
}

// Emit broadcasts value at addr without persistence. It reports false
// instead of erroring when the link is down, so callers degrade gracefully.
func (s *Session) Emit(addr string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return s.write(Frame{Op: opEmit, Addr: addr, Value: raw})
}

// Set writes the persisted shared value at addr; a nil value clears it.
func (s *Session) Set(addr string, value any) bool {
	f := Frame{Op: opSet, Addr: addr}
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return false
		}
		f.Value = raw
	}
	return s.write(f)
}

// Get reads the current shared value at addr. A nil value with nil error
// means the address holds nothing.
func (s *Session) Get(ctx context.Context, addr string) (json.RawMessage, error) {
	s.mu.Lock()
	if s.st != stateConnected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	s.nextRID++
	rid := s.nextRID
	ch := make(chan json.RawMessage, 1)
	s.pending[rid] = ch
	s.mu.Unlock()

	if !s.write(Frame{Op: opGet, RID: rid, Addr: addr}) {
		s.dropPending(rid)
		return nil, ErrNotConnected
	}

	select {
	case value, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return value, nil
	case <-ctx.Done():
		s.dropPending(rid)
		return nil, ctx.Err()
	}
}

func (s *Session) dropPending(rid int64) {
	s.mu.Lock()
	delete(s.pending, rid)
	s.mu.Unlock()
}

func (s *Session) write(f Frame) bool {
	s.mu.Lock()
	conn := s.conn
	connected := s.st == stateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	data, err := json.Marshal(f)
	if err != nil {
		return false
	}

	s.wmu.Lock()
	err = conn.Write(context.Background(), data)
	s.wmu.Unlock()
	if err != nil {
		s.connLost(conn)
		return false
	}
	return true
}

// connLost tears conn down and arms the fixed-delay reconnect, unless the
// session was closed or a newer connection already replaced conn.
func (s *Session) connLost(conn Conn) {
	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.dropConnLocked()
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	s.log.Info("relay connection lost, reconnecting", zap.Duration("delay", s.reconnectDelay))
}

func (s *Session) dropConnLocked() {
	if s.readCancel != nil {
		s.readCancel()
		s.readCancel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.st = stateDisconnected
	for rid, ch := range s.pending {
		close(ch)
		delete(s.pending, rid)
	}
}

func (s *Session) scheduleReconnectLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	s.reconnect = time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		if s.closed || s.st != stateDisconnected {
			s.mu.Unlock()
			return
		}
		s.st = stateConnecting
		s.mu.Unlock()
		if err := s.establish(context.Background()); err != nil {
			s.log.Debug("relay reconnect failed", zap.Error(err))
		}
	})
}

// Connected reports whether the live link is up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateConnected
}

// Close shuts the session down for good: the connection is closed, the
// reconnect loop stops, and pending reads fail. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.dropConnLocked()
	s.mu.Unlock()
}
