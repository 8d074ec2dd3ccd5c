package domain

import "strings"

// NormalizeRoomID canonicalizes a room id before it reaches the registry.
// Room codes are case-insensitive on the way in and opaque below this point.
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
