package relay

import "encoding/json"

// Frame is the single wire envelope exchanged with the relay. Which fields
// carry meaning depends on Op.
type Frame struct {
	Op    string          `json:"op"`
	SID   int64           `json:"sid,omitempty"`  // subscription id, sub/unsub
	RID   int64           `json:"rid,omitempty"`  // request id, get/result
	Addr  string          `json:"addr,omitempty"` // address or pattern
	Value json.RawMessage `json:"value,omitempty"`
}

// Client-to-relay ops.
const (
	opSub   = "sub"
	opUnsub = "unsub"
	opEmit  = "emit" // ephemeral broadcast, no persistence
	opSet   = "set"  // persisted shared value; absent value clears it
	opGet   = "get"  // point-in-time read, answered by a result frame
)

// Relay-to-client ops.
const (
	opEvent  = "event" // ephemeral: delivered to live subscribers only, never replayed
	opState  = "state" // stateful: snapshot on subscribe, then the change stream
	opResult = "result"
)
