// Package chat wires the relay session, the presence tracker, the history
// synchronizer, and the local cache into one room-scoped controller. A
// controller is connected to at most one room at a time; connecting to a
// second room tears the first down.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sawmapp/claspsync/internal/cache"
	"github.com/sawmapp/claspsync/internal/history"
	"github.com/sawmapp/claspsync/internal/identity"
	"github.com/sawmapp/claspsync/internal/message"
	"github.com/sawmapp/claspsync/internal/presence"
	"github.com/sawmapp/claspsync/internal/relay"
)

// ErrInvalidInput is returned when Connect is called without a room or a
// message handler.
var ErrInvalidInput = errors.New("chat: room and message handler are required")

// RelaySession is the slice of the relay session the controller drives.
// *relay.Session satisfies it; tests plug in an in-memory broker.
type RelaySession interface {
	Connect(ctx context.Context) error
	Connected() bool
	Subscribe(pattern string, fn relay.Handler) func()
	Emit(addr string, value any) bool
	Set(addr string, value any) bool
}

// MessageHandler receives every message for the joined room exactly once.
// historical is true for messages recovered from the shared history window
// or the local cache rather than seen live.
type MessageHandler func(msg message.Message, historical bool)

// Options carries the per-room callbacks and identity details.
type Options struct {
	// DisplayName is published in presence and typing entries and
	// stamped on sent messages. Blank means "anonymous".
	DisplayName string

	// OnPresence is called with the room's occupant count whenever it
	// may have changed.
	OnPresence func(count int)

	// OnTyping is called with the sorted names of peers currently
	// typing whenever the set may have changed.
	OnTyping func(names []string)
}

// Controller joins rooms and routes their traffic. All callbacks fire on
// the relay session's dispatch goroutine and must not block.
type Controller struct {
	session RelaySession
	store   cache.Store
	id      identity.Identity
	log     *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	active *roomSession
}

// roomSession is the per-room state torn down on disconnect or room switch.
type roomSession struct {
	room    string
	handler MessageHandler
	opts    Options
	tracker *presence.Tracker
	sync    *history.Synchronizer
	unsubs  []func()
	cancel  context.CancelFunc
	seen    map[string]struct{}
}

func NewController(session RelaySession, store cache.Store, id identity.Identity, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		session: session,
		store:   store,
		id:      id,
		log:     log,
		now:     time.Now,
	}
}

// Connect joins a room. Connecting to the room already joined while the
// session is up is a no-op; otherwise any previous room is torn down first.
// A failed dial is not fatal: the subscriptions are registered anyway and
// the session's reconnect loop replays them once the relay is reachable.
func (c *Controller) Connect(ctx context.Context, room string, onMessage MessageHandler, opts Options) error {
	if room == "" || onMessage == nil {
		return ErrInvalidInput
	}

	c.mu.Lock()
	if c.active != nil && c.active.room == room && c.session.Connected() {
		c.mu.Unlock()
		return nil
	}
	prev := c.active
	c.active = nil
	c.mu.Unlock()
	if prev != nil {
		c.teardown(prev)
	}

	if err := c.session.Connect(ctx); err != nil {
		c.log.Warn("relay dial failed, will keep retrying", zap.String("room", room), zap.Error(err))
	}

	rs := &roomSession{
		room:    room,
		handler: onMessage,
		opts:    opts,
		seen:    make(map[string]struct{}),
	}
	rs.tracker = presence.NewTracker(c.session, opts.DisplayName,
		presenceAddr(room, c.id.ID), typingAddr(room, c.id.ID), c.log)
	rs.sync = history.NewSynchronizer(c.session, c.store, room, historyAddr(room),
		func(msg message.Message, historical bool) {
			c.deliver(rs, msg, historical)
		}, c.log)

	hbCtx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel

	// Install before seeding or subscribing: both paths land in deliver.
	c.mu.Lock()
	c.active = rs
	c.mu.Unlock()

	// Cached history first, so it surfaces even when the relay is down
	// or the room's history address is still empty.
	rs.sync.Seed(ctx)

	rs.unsubs = []func(){
		c.session.Subscribe(messagesAddr(room), func(value json.RawMessage, _ string) {
			msg, err := message.Decode(value)
			if err != nil {
				c.log.Debug("dropping malformed message", zap.String("room", room), zap.Error(err))
				return
			}
			c.deliver(rs, msg, false)
		}),
		c.session.Subscribe(presencePattern(room), func(value json.RawMessage, addr string) {
			rs.tracker.HandlePresence(value, addr)
			c.notifyPresence(rs)
		}),
		c.session.Subscribe(typingPattern(room), func(value json.RawMessage, addr string) {
			rs.tracker.HandleTyping(value, addr)
			c.notifyTyping(rs)
		}),
		c.session.Subscribe(historyAddr(room), rs.sync.HandleWindow),
	}

	go rs.tracker.RunHeartbeat(hbCtx)

	c.log.Info("joined room", zap.String("room", room))
	return nil
}

// deliver hands a message to the room handler exactly once. Messages for a
// room that has since been torn down are dropped.
func (c *Controller) deliver(rs *roomSession, msg message.Message, historical bool) {
	c.mu.Lock()
	if c.active != rs {
		c.mu.Unlock()
		return
	}
	if _, ok := rs.seen[msg.ID]; ok {
		c.mu.Unlock()
		return
	}
	rs.seen[msg.ID] = struct{}{}
	c.mu.Unlock()

	rs.handler(msg, historical)
}

func (c *Controller) notifyPresence(rs *roomSession) {
	if rs.opts.OnPresence == nil {
		return
	}
	c.mu.Lock()
	current := c.active == rs
	c.mu.Unlock()
	if current {
		rs.opts.OnPresence(rs.tracker.Count())
	}
}

// notifyTyping fires OnTyping only while rs is still the joined room, so a
// callback in flight during a room switch cannot surface the old room's
// typing set.
func (c *Controller) notifyTyping(rs *roomSession) {
	if rs.opts.OnTyping == nil {
		return
	}
	c.mu.Lock()
	current := c.active == rs
	c.mu.Unlock()
	if current {
		rs.opts.OnTyping(rs.tracker.TypingUsers())
	}
}

// Send publishes a message to the joined room. A non-blank name overrides
// the connect-time display name for this message only. The message is
// delivered to the local handler immediately so the sender sees it without
// a network round trip. Reports false when no room is joined or the relay
// is down.
func (c *Controller) Send(content, name string) bool {
	c.mu.Lock()
	rs := c.active
	c.mu.Unlock()
	if rs == nil || !c.session.Connected() {
		return false
	}

	if name == "" {
		name = rs.opts.DisplayName
	}
	msg := message.New(c.id.ID, name, content, c.now())
	c.deliver(rs, msg, false)
	c.session.Emit(messagesAddr(rs.room), msg)
	rs.sync.Append(context.Background(), msg)
	rs.tracker.ClearTyping()
	return true
}

// StartTyping publishes this client's typing indicator for the joined room.
func (c *Controller) StartTyping() {
	c.mu.Lock()
	rs := c.active
	c.mu.Unlock()
	if rs != nil {
		rs.tracker.StartTyping()
	}
}

// Disconnect leaves the joined room, withdrawing presence and typing
// entries and dropping the subscriptions. Idempotent.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	rs := c.active
	c.active = nil
	c.mu.Unlock()
	if rs != nil {
		c.teardown(rs)
		c.log.Info("left room", zap.String("room", rs.room))
	}
}

func (c *Controller) teardown(rs *roomSession) {
	rs.cancel()
	rs.tracker.Stop()
	for _, unsub := range rs.unsubs {
		unsub()
	}
}

// ClientID returns this client's stable identifier.
func (c *Controller) ClientID() string {
	return c.id.ID
}

// IsConnected reports whether a room is joined and the relay is up.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && c.session.Connected()
}

// Room returns the joined room's address, or "" when none is joined.
func (c *Controller) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.room
}

// PresenceCount reports the joined room's occupant count.
func (c *Controller) PresenceCount() int {
	c.mu.Lock()
	rs := c.active
	c.mu.Unlock()
	if rs == nil {
		return 0
	}
	return rs.tracker.Count()
}

// TypingUsers reports which peers in the joined room are typing.
func (c *Controller) TypingUsers() []string {
	c.mu.Lock()
	rs := c.active
	c.mu.Unlock()
	if rs == nil {
		return nil
	}
	return rs.tracker.TypingUsers()
}
