package relay

import "strings"

// MatchAddress reports whether addr matches pattern. A "*" pattern segment
// matches exactly one address segment; everything else matches literally.
func MatchAddress(pattern, addr string) bool {
	if pattern == addr {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	p := strings.Split(pattern, "/")
	a := strings.Split(addr, "/")
	if len(p) != len(a) {
		return false
	}
	for i := range p {
		if p[i] != "*" && p[i] != a[i] {
			return false
		}
	}
	return true
}
