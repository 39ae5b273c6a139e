package chat

import "testing"

func TestRoomAddress(t *testing.T) {
	tests := []struct {
		name     string
		locality string
		region   string
		want     string
	}{
		{"simple", "Mesa", "AZ", "sawm/mesa/az"},
		{"trims and lowercases", "  Mesa ", " az ", "sawm/mesa/az"},
		{"whitespace becomes hyphens", "San Tan Valley", "AZ", "sawm/san-tan-valley/az"},
		{"collapses runs of whitespace", "San  Tan\tValley", "AZ", "sawm/san-tan-valley/az"},
		{"blank locality means no room", "", "AZ", ""},
		{"whitespace locality means no room", "   ", "AZ", ""},
		{"blank region still forms an address", "Mesa", "", "sawm/mesa/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoomAddress(tt.locality, tt.region); got != tt.want {
				t.Fatalf("RoomAddress(%q, %q) = %q, want %q", tt.locality, tt.region, got, tt.want)
			}
		})
	}
}
