// Package presence aggregates who is in a room and who is typing from the
// per-client stateful addresses published through the relay.
package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// HeartbeatInterval is how often this client refreshes its own
	// presence entry so peers keep counting it as online.
	HeartbeatInterval = 30 * time.Second

	// TypingWindow is how long a peer's typing entry counts as live.
	// Entries older than this are considered stale and hidden.
	TypingWindow = 5 * time.Second

	// typingClearAfter is the quiet period after the last keystroke
	// before this client withdraws its own typing entry.
	typingClearAfter = 4 * time.Second

	// heartbeatRetry is how soon a failed presence publish retries, so
	// the self entry reappears shortly after a reconnect instead of
	// waiting out a full interval.
	heartbeatRetry = 3 * time.Second
)

// Setter is the slice of the relay session the tracker publishes through.
type Setter interface {
	Set(addr string, value any) bool
}

// Entry is a client's presence record at its per-client address.
type Entry struct {
	Name  string `json:"name"`
	Since int64  `json:"since"`
}

// TypingEntry is a client's typing record at its per-client address.
type TypingEntry struct {
	Name string `json:"name"`
	At   int64  `json:"at"`
}

// Tracker mirrors the room's presence and typing addresses into local maps
// and publishes this client's own entries. One tracker per joined room.
type Tracker struct {
	session    Setter
	name       string
	selfAddr   string
	typingAddr string
	log        *zap.Logger

	clearAfter time.Duration
	retryAfter time.Duration
	now        func() time.Time

	mu          sync.Mutex
	present     map[string]Entry
	typing      map[string]TypingEntry
	announced   bool
	typingTimer *time.Timer
	stopped     bool
}

// NewTracker builds a tracker for one room. selfAddr and typingAddr are the
// full per-client addresses this client publishes to.
func NewTracker(session Setter, name, selfAddr, typingAddr string, log *zap.Logger) *Tracker {
	if name == "" {
		name = "anonymous"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		session:    session,
		name:       name,
		selfAddr:   selfAddr,
		typingAddr: typingAddr,
		log:        log,
		clearAfter: typingClearAfter,
		retryAfter: heartbeatRetry,
		now:        time.Now,
		present:    make(map[string]Entry),
		typing:     make(map[string]TypingEntry),
	}
}

// HandlePresence applies one update from the presence wildcard subscription.
// A null or absent value means the client at addr left.
func (t *Tracker) HandlePresence(value json.RawMessage, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isNull(value) {
		delete(t.present, addr)
		return
	}
	var e Entry
	if err := json.Unmarshal(value, &e); err != nil {
		t.log.Debug("dropping malformed presence entry", zap.String("addr", addr), zap.Error(err))
		return
	}
	t.present[addr] = e
}

// HandleTyping applies one update from the typing wildcard subscription.
func (t *Tracker) HandleTyping(value json.RawMessage, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isNull(value) {
		delete(t.typing, addr)
		return
	}
	var e TypingEntry
	if err := json.Unmarshal(value, &e); err != nil {
		t.log.Debug("dropping malformed typing entry", zap.String("addr", addr), zap.Error(err))
		return
	}
	t.typing[addr] = e
}

// Count reports how many clients are present. Once this client has announced
// itself it is always counted, even before its own entry echoes back.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.present)
	if t.announced && n == 0 {
		n = 1
	}
	return n
}

// TypingUsers returns the display names of peers with a live typing entry,
// sorted for stable rendering. This client's own entry is excluded.
func (t *Tracker) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-TypingWindow).UnixMilli()
	var names []string
	for addr, e := range t.typing {
		if addr == t.typingAddr {
			continue
		}
		if e.At < cutoff {
			continue
		}
		name := e.Name
		if name == "" {
			name = "anonymous"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunHeartbeat publishes this client's presence entry immediately and then
// every HeartbeatInterval until ctx is cancelled. A failed publish retries
// after the much shorter retry delay.
func (t *Tracker) RunHeartbeat(ctx context.Context) {
	timer := time.NewTimer(t.nextBeat())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(t.nextBeat())
		}
	}
}

func (t *Tracker) nextBeat() time.Duration {
	if t.beat() {
		return HeartbeatInterval
	}
	return t.retryAfter
}

func (t *Tracker) beat() bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return true
	}
	entry := Entry{Name: t.name, Since: t.now().UnixMilli()}
	t.mu.Unlock()

	if !t.session.Set(t.selfAddr, entry) {
		return false
	}
	t.mu.Lock()
	t.announced = true
	t.mu.Unlock()
	return true
}

// StartTyping publishes this client's typing entry and arms the clear timer.
// Repeated calls push the clear deadline out instead of stacking timers.
func (t *Tracker) StartTyping() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	entry := TypingEntry{Name: t.name, At: t.now().UnixMilli()}
	if t.typingTimer != nil {
		t.typingTimer.Stop()
	}
	t.typingTimer = time.AfterFunc(t.clearAfter, t.ClearTyping)
	t.mu.Unlock()

	t.session.Set(t.typingAddr, entry)
}

// ClearTyping withdraws this client's typing entry.
func (t *Tracker) ClearTyping() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.typingTimer != nil {
		t.typingTimer.Stop()
		t.typingTimer = nil
	}
	t.mu.Unlock()

	t.session.Set(t.typingAddr, nil)
}

// Stop withdraws this client's presence and typing entries. Publishing is
// best effort; when the session is already down the relay has no entry to
// clear anyway. Stop is idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.typingTimer != nil {
		t.typingTimer.Stop()
		t.typingTimer = nil
	}
	t.mu.Unlock()

	t.session.Set(t.typingAddr, nil)
	t.session.Set(t.selfAddr, nil)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
