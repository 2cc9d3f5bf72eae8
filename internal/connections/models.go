package connections

import "strings"

const (
	profileBaseURL = "https://www.instagram.com/"
)

// Direction names one of the two connection sequences kept for an account.
type Direction string

const (
	// DirectionFollowing holds the accounts the user follows.
	DirectionFollowing = Direction("following")
	// DirectionFollowers holds the accounts that follow the user.
	DirectionFollowers = Direction("followers")
)

// Directions lists every known direction in a stable order.
func Directions() []Direction {
	return []Direction{DirectionFollowing, DirectionFollowers}
}

// ParseDirection maps a textual direction onto a known Direction.
func ParseDirection(value string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case DirectionFollowing:
		return DirectionFollowing, true
	case DirectionFollowers:
		return DirectionFollowers, true
	default:
		return "", false
	}
}

// Record is the canonical, format-independent representation of one connection.
type Record struct {
	Username   string `json:"username"`
	ProfileURL string `json:"url"`
	ObservedAt int64  `json:"timestamp"`
}

// ProfileURLFor derives the profile reference used when a source omits one.
func ProfileURLFor(username string) string {
	return profileBaseURL + username
}
