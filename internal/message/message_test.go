package message

import (
	"errors"
	"testing"
	"time"
)

func TestNew_DefaultsSenderToAnonymous(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := New("client-1", "  ", "salam", now)
	if msg.Sender != "anonymous" {
		t.Fatalf("Sender = %q, want %q", msg.Sender, "anonymous")
	}
	if msg.ID == "" {
		t.Fatal("expected a fresh id")
	}
	if msg.Timestamp != now.UnixMilli() {
		t.Fatalf("Timestamp = %d, want %d", msg.Timestamp, now.UnixMilli())
	}
}

func TestNew_UniqueIDs(t *testing.T) {
	now := time.Now()
	a := New("c", "x", "one", now)
	b := New("c", "x", "one", now)
	if a.ID == b.ID {
		t.Fatal("expected distinct ids for distinct messages")
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error for non-JSON input")
	}
}

func TestDecode_ShapeInvalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"missing id", `{"sender":"a","content":"x","timestamp":1}`},
		{"zero timestamp", `{"id":"m1","sender":"a","content":"x"}`},
		{"negative timestamp", `{"id":"m1","timestamp":-5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.data)); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestDecode_Valid(t *testing.T) {
	msg, err := Decode([]byte(`{"id":"m1","clientId":"c1","sender":"aya","content":"salam","timestamp":1700000000000}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.Sender != "aya" || msg.Content != "salam" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMerge_DedupsAndSorts(t *testing.T) {
	a := []Message{
		{ID: "m3", Timestamp: 300},
		{ID: "m1", Timestamp: 100},
	}
	b := []Message{
		{ID: "m1", Timestamp: 100},
		{ID: "m2", Timestamp: 200},
	}

	out := Merge(a, b)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if out[i].ID != want {
			t.Fatalf("out[%d].ID = %q, want %q", i, out[i].ID, want)
		}
	}
}

func TestMerge_TimestampTiesAreDeterministic(t *testing.T) {
	out := Merge([]Message{{ID: "b", Timestamp: 100}, {ID: "a", Timestamp: 100}})
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("tie order = %q,%q, want a,b", out[0].ID, out[1].ID)
	}
}
