package scan

import (
	"regexp"
	"strings"

	"github.com/f-sync/followdiff/internal/connections"
)

const (
	usernamePattern        = `^[A-Za-z0-9._]+$`
	pathSeparator          = "/"
	directionHintFollowers = "followers"
	directionHintFollowing = "following"
	reservedPathPosts      = "p"
	reservedPathExplore    = "explore"
	reservedPathStories    = "stories"
	reservedPathReels      = "reels"
	reservedPathDirect     = "direct"
	reservedPathAccounts   = "accounts"
	reservedPathEmails     = "emails"
	reservedPathLegal      = "legal"
	reservedPathAbout      = "about"
	reservedPathHelp       = "help"
)

var (
	usernameRegex = regexp.MustCompile(usernamePattern)

	reservedPaths = map[string]struct{}{
		reservedPathPosts:    {},
		reservedPathExplore:  {},
		reservedPathStories:  {},
		reservedPathReels:    {},
		reservedPathDirect:   {},
		reservedPathAccounts: {},
		reservedPathEmails:   {},
		reservedPathLegal:    {},
		reservedPathAbout:    {},
		reservedPathHelp:     {},
	}
)

// Report is the response produced by a page-scanning agent.
type Report struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Users   []string `json:"users"`
	URL     string   `json:"url"`
	Type    string   `json:"type"`
}

// Usernames returns the sanitised, de-duplicated usernames carried by the report in scan order.
func (report Report) Usernames() []string {
	seen := make(map[string]struct{}, len(report.Users))
	usernames := make([]string, 0, len(report.Users))
	for _, candidate := range report.Users {
		username, ok := SanitizeUsername(candidate)
		if !ok {
			continue
		}
		if _, duplicate := seen[username]; duplicate {
			continue
		}
		seen[username] = struct{}{}
		usernames = append(usernames, username)
	}
	return usernames
}

// ResolveDirection decides which sequence the report belongs to. An explicit hint wins;
// otherwise the page URL is inspected, and an ambiguous report is treated as following.
func ResolveDirection(report Report) connections.Direction {
	if direction, ok := connections.ParseDirection(report.Type); ok {
		return direction
	}
	loweredURL := strings.ToLower(report.URL)
	switch {
	case strings.Contains(loweredURL, directionHintFollowers):
		return connections.DirectionFollowers
	case strings.Contains(loweredURL, directionHintFollowing):
		return connections.DirectionFollowing
	default:
		return connections.DirectionFollowing
	}
}

// SanitizeUsername turns a scraped profile link or bare handle into a username.
// Only single-segment links qualify; reserved site sections and values with
// characters outside the username alphabet are rejected.
func SanitizeUsername(candidate string) (string, bool) {
	var segments []string
	for _, segment := range strings.Split(strings.TrimSpace(candidate), pathSeparator) {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) != 1 {
		return "", false
	}
	username := segments[0]
	if isReservedPath(username) || !usernameRegex.MatchString(username) {
		return "", false
	}
	return username, true
}

func isReservedPath(segment string) bool {
	_, reserved := reservedPaths[strings.ToLower(segment)]
	return reserved
}
