package connections

import (
	"fmt"
	"time"
)

const (
	demoFollowingCount     = 150
	demoFollowerOnlyCount  = 200
	demoFollowerOnlyOffset = 50
	demoMutualCount        = 50
	demoFollowingPrefix    = "following"
	demoFollowerPrefix     = "follower"
	demoUsernameFormat     = "%s_user_%d"
	demoObservationSpacing = 5 * 24 * time.Hour
)

// DemoData produces a sample pair of sequences with a known overlap: the first
// demoMutualCount following accounts also appear among the followers.
func DemoData(now time.Time) (following []Record, followers []Record) {
	following = make([]Record, 0, demoFollowingCount)
	for index := 0; index < demoFollowingCount; index++ {
		following = append(following, demoRecord(demoFollowingPrefix, index, now))
	}

	followers = make([]Record, 0, demoFollowerOnlyCount+demoMutualCount)
	for index := 0; index < demoFollowerOnlyCount; index++ {
		followers = append(followers, demoRecord(demoFollowerPrefix, index+demoFollowerOnlyOffset, now))
	}
	for index := 0; index < demoMutualCount; index++ {
		followers = append(followers, demoRecord(demoFollowingPrefix, index, now))
	}
	return following, followers
}

func demoRecord(prefix string, index int, now time.Time) Record {
	username := fmt.Sprintf(demoUsernameFormat, prefix, index)
	return Record{
		Username:   username,
		ProfileURL: ProfileURLFor(username),
		ObservedAt: now.Add(-time.Duration(index) * demoObservationSpacing).Unix(),
	}
}
