package chat

import "strings"

// RoomAddress derives the canonical room slug from a locality and region,
// for example "Mesa", "AZ" becomes "sawm/mesa/az". A blank locality means
// there is no room to join.
func RoomAddress(locality, region string) string {
	if strings.TrimSpace(locality) == "" {
		return ""
	}
	return "sawm/" + slug(locality) + "/" + slug(region)
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), "-")
}

func messagesAddr(room string) string { return "/chat/room/" + room + "/messages" }
func historyAddr(room string) string  { return "/chat/room/" + room + "/history" }

func presenceAddr(room, clientID string) string {
	return "/chat/room/" + room + "/presence/" + clientID
}

func typingAddr(room, clientID string) string {
	return "/chat/room/" + room + "/typing/" + clientID
}

func presencePattern(room string) string { return "/chat/room/" + room + "/presence/*" }
func typingPattern(room string) string   { return "/chat/room/" + room + "/typing/*" }
