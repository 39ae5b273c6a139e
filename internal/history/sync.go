// Package history keeps the room's shared recent-message window in step
// with the relay and the local cache, so late joiners see context even
// though message events themselves are ephemeral.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/sawmapp/claspsync/internal/cache"
	"github.com/sawmapp/claspsync/internal/message"
)

// WindowSize is how many of the newest messages the shared history
// window holds. Senders trim the window before republishing it.
const WindowSize = 20

// Relay is the slice of the relay session the synchronizer publishes through.
type Relay interface {
	Set(addr string, value any) bool
}

// HandlerFunc receives a message recovered from history. historical is
// always true here; the signature matches the live delivery path so the
// caller can funnel both into one place.
type HandlerFunc func(msg message.Message, historical bool)

// Synchronizer owns one room's history window. On join it replays the
// room's cached messages, then replays remote window updates into the
// handler, and republishes the window when this client sends.
type Synchronizer struct {
	relay   Relay
	store   cache.Store
	room    string
	addr    string
	handler HandlerFunc
	log     *zap.Logger

	mu     sync.Mutex
	window []message.Message
	seeded bool
	seen   map[string]struct{}
}

func NewSynchronizer(relay Relay, store cache.Store, room, addr string, handler HandlerFunc, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{
		relay:   relay,
		store:   store,
		room:    room,
		addr:    addr,
		handler: handler,
		log:     log,
		seen:    make(map[string]struct{}),
	}
}

// Seed replays the room's cached messages as historical. It runs on join,
// before any relay traffic, so cached history surfaces even when the relay
// is unreachable or the room's history address holds nothing yet. Window
// updates arriving afterwards are deduplicated against what Seed delivered.
func (s *Synchronizer) Seed(ctx context.Context) {
	s.mu.Lock()
	if s.seeded {
		s.mu.Unlock()
		return
	}
	s.seeded = true
	cached, err := s.store.QueryByRoom(ctx, s.room, cache.DefaultQueryLimit)
	if err != nil {
		s.log.Warn("cache read failed, history starts from the relay alone",
			zap.String("room", s.room), zap.Error(err))
	}
	var replay []message.Message
	for _, m := range cached {
		if _, ok := s.seen[m.ID]; !ok {
			replay = append(replay, m)
			s.seen[m.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	for _, m := range replay {
		s.handler(m, true)
	}
}

// HandleWindow applies one update of the shared history value, replaying
// only messages not yet delivered.
func (s *Synchronizer) HandleWindow(value json.RawMessage, _ string) {
	if isNull(value) {
		return
	}
	var incoming []message.Message
	if err := json.Unmarshal(value, &incoming); err != nil {
		s.log.Debug("dropping malformed history window", zap.String("room", s.room), zap.Error(err))
		return
	}

	s.mu.Lock()
	var replay []message.Message
	for _, m := range message.Merge(incoming) {
		if _, ok := s.seen[m.ID]; !ok {
			replay = append(replay, m)
			s.seen[m.ID] = struct{}{}
		}
	}
	s.window = message.Merge(incoming)
	if n := len(s.window); n > WindowSize {
		s.window = s.window[n-WindowSize:]
	}
	s.mu.Unlock()

	for _, m := range replay {
		s.handler(m, true)
	}
}

// Append records a message this client observed, trims the window to the
// newest WindowSize entries, republishes it, and writes the message to the
// local cache. A failed relay publish is fine; the next sender's window
// will carry the message if it reached them.
func (s *Synchronizer) Append(ctx context.Context, msg message.Message) {
	s.mu.Lock()
	s.seen[msg.ID] = struct{}{}
	s.window = message.Merge(s.window, []message.Message{msg})
	if n := len(s.window); n > WindowSize {
		s.window = s.window[n-WindowSize:]
	}
	window := append([]message.Message(nil), s.window...)
	s.mu.Unlock()

	s.relay.Set(s.addr, window)
	if err := s.store.Put(ctx, s.room, msg); err != nil {
		s.log.Warn("cache write failed", zap.String("room", s.room), zap.String("id", msg.ID), zap.Error(err))
	}
}

// Window returns a copy of the current window, oldest first.
func (s *Synchronizer) Window() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message(nil), s.window...)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
