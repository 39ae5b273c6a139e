package relay

import "testing"

func TestMatchAddress(t *testing.T) {
	cases := []struct {
		pattern string
		addr    string
		want    bool
	}{
		{"/chat/room/r/messages", "/chat/room/r/messages", true},
		{"/chat/room/r/messages", "/chat/room/other/messages", false},
		{"/chat/room/r/presence/*", "/chat/room/r/presence/c1", true},
		{"/chat/room/r/presence/*", "/chat/room/r/presence/c2", true},
		{"/chat/room/r/presence/*", "/chat/room/r/typing/c1", false},
		{"/chat/room/r/presence/*", "/chat/room/r/presence", false},
		{"/chat/room/r/presence/*", "/chat/room/r/presence/c1/extra", false},
		{"/chat/room/*/presence/*", "/chat/room/r/presence/c1", true},
		{"*", "anything", true},
		{"*", "two/segments", false},
	}
	for _, tc := range cases {
		if got := MatchAddress(tc.pattern, tc.addr); got != tc.want {
			t.Errorf("MatchAddress(%q, %q) = %v, want %v", tc.pattern, tc.addr, got, tc.want)
		}
	}
}
