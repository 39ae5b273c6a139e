package message

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid marks an inbound payload that parsed but fails shape checks.
// Callers drop such payloads instead of treating them as fatal.
var ErrInvalid = errors.New("invalid message")

// Message is one chat message. Identity is the ID, not the content:
// duplicate deliveries must be collapsed by ID.
type Message struct {
	ID        string `json:"id"`
	ClientID  string `json:"clientId"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// New builds a message from the local client with a fresh unique id.
func New(clientID, sender, content string, now time.Time) Message {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		sender = "anonymous"
	}
	return Message{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Sender:    sender,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}
}

// Decode parses and shape-checks an inbound payload.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	if msg.ID == "" || msg.Timestamp <= 0 {
		return Message{}, ErrInvalid
	}
	return msg, nil
}

// SentAt returns the message timestamp as wall-clock time.
func (m Message) SentAt() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Merge combines message lists into one, unique by ID and sorted ascending
// by timestamp. Ties sort by ID so the result is deterministic.
func Merge(lists ...[]Message) []Message {
	seen := make(map[string]struct{})
	var out []Message
	for _, list := range lists {
		for _, msg := range list {
			if _, ok := seen[msg.ID]; ok {
				continue
			}
			seen[msg.ID] = struct{}{}
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
