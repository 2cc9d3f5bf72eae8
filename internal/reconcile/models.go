package reconcile

import "github.com/f-sync/followdiff/internal/connections"

const (
	ratioLabelInfluencer = "Influencer territory"
	ratioLabelNormal     = "Normal user"
	percentageScale      = 100
)

// ListKind names one of the sequences a Result can expose.
type ListKind string

const (
	// ListFollowing is the full following sequence.
	ListFollowing = ListKind("following")
	// ListFollowers is the full followers sequence.
	ListFollowers = ListKind("followers")
	// ListNotFollowingBack holds followed accounts that do not follow back.
	ListNotFollowingBack = ListKind("not-following-back")
	// ListFans holds followers the user does not follow back.
	ListFans = ListKind("fans")
	// ListMutual holds accounts present in both sequences.
	ListMutual = ListKind("mutual")
)

// ListKinds enumerates every ListKind in presentation order.
func ListKinds() []ListKind {
	return []ListKind{ListFollowing, ListFollowers, ListNotFollowingBack, ListFans, ListMutual}
}

// ParseListKind maps a textual list name onto a ListKind.
func ParseListKind(value string) (ListKind, bool) {
	for _, kind := range ListKinds() {
		if string(kind) == value {
			return kind, true
		}
	}
	return "", false
}

// Stats summarises the sizes of the input and derived sequences.
type Stats struct {
	FollowersCount        int     `json:"followersCount"`
	FollowingCount        int     `json:"followingCount"`
	NotFollowingBackCount int     `json:"notFollowingBackCount"`
	FansCount             int     `json:"fansCount"`
	MutualCount           int     `json:"mutualCount"`
	FollowRatio           float64 `json:"followRatio"`
}

// NotFollowingBackShare is the percentage of followed accounts that do not follow back.
func (stats Stats) NotFollowingBackShare() float64 {
	return percentage(stats.NotFollowingBackCount, stats.FollowingCount)
}

// FansShare is the percentage of followers the user does not follow back.
func (stats Stats) FansShare() float64 {
	return percentage(stats.FansCount, stats.FollowersCount)
}

// RatioLabel classifies the follow ratio for display.
func (stats Stats) RatioLabel() string {
	if stats.FollowRatio > 1 {
		return ratioLabelInfluencer
	}
	return ratioLabelNormal
}

// Result holds the derived sequences and statistics for one following/followers pair.
type Result struct {
	Following        []connections.Record `json:"-"`
	Followers        []connections.Record `json:"-"`
	NotFollowingBack []connections.Record `json:"notFollowingBack"`
	Fans             []connections.Record `json:"fans"`
	Mutual           []connections.Record `json:"mutual"`
	Stats            Stats                `json:"stats"`
}

func percentage(part int, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * percentageScale
}
