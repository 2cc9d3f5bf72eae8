package reconcile

import "github.com/f-sync/followdiff/internal/connections"

// Reconcile classifies the following and followers sequences into not-following-back,
// fans and mutual connections. Membership is exact username equality and every derived
// sequence keeps the order of the sequence it was filtered from.
func Reconcile(following []connections.Record, followers []connections.Record) Result {
	followerUsernames := usernameSet(followers)
	followingUsernames := usernameSet(following)

	notFollowingBack := make([]connections.Record, 0, len(following))
	mutual := make([]connections.Record, 0, len(following))
	for _, record := range following {
		if _, followsBack := followerUsernames[record.Username]; followsBack {
			mutual = append(mutual, record)
		} else {
			notFollowingBack = append(notFollowingBack, record)
		}
	}

	fans := make([]connections.Record, 0, len(followers))
	for _, record := range followers {
		if _, followed := followingUsernames[record.Username]; !followed {
			fans = append(fans, record)
		}
	}

	return Result{
		Following:        following,
		Followers:        followers,
		NotFollowingBack: notFollowingBack,
		Fans:             fans,
		Mutual:           mutual,
		Stats:            buildStats(len(following), len(followers), len(notFollowingBack), len(fans), len(mutual)),
	}
}

// Select returns the sequence named by kind, or nil for an unknown kind.
func (result Result) Select(kind ListKind) []connections.Record {
	switch kind {
	case ListFollowing:
		return nonNilRecords(result.Following)
	case ListFollowers:
		return nonNilRecords(result.Followers)
	case ListNotFollowingBack:
		return result.NotFollowingBack
	case ListFans:
		return result.Fans
	case ListMutual:
		return result.Mutual
	default:
		return nil
	}
}

func buildStats(followingCount int, followersCount int, notFollowingBackCount int, fansCount int, mutualCount int) Stats {
	stats := Stats{
		FollowersCount:        followersCount,
		FollowingCount:        followingCount,
		NotFollowingBackCount: notFollowingBackCount,
		FansCount:             fansCount,
		MutualCount:           mutualCount,
	}
	if followingCount > 0 {
		stats.FollowRatio = float64(followersCount) / float64(followingCount)
	}
	return stats
}

func usernameSet(records []connections.Record) map[string]struct{} {
	usernames := make(map[string]struct{}, len(records))
	for _, record := range records {
		usernames[record.Username] = struct{}{}
	}
	return usernames
}

func nonNilRecords(records []connections.Record) []connections.Record {
	if records == nil {
		return []connections.Record{}
	}
	return records
}
