package reconcile_test

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/f-sync/followdiff/internal/connections"
	"github.com/f-sync/followdiff/internal/reconcile"
)

var reconcileTestNow = time.Unix(1700000000, 0)

func records(usernames ...string) []connections.Record {
	return connections.FromUsernames(usernames, reconcileTestNow)
}

func usernames(records []connections.Record) []string {
	names := make([]string, 0, len(records))
	for _, record := range records {
		names = append(names, record.Username)
	}
	return names
}

func TestReconcile(t *testing.T) {
	testCases := []struct {
		name                     string
		following                []connections.Record
		followers                []connections.Record
		expectedNotFollowingBack []string
		expectedFans             []string
		expectedMutual           []string
		expectedStats            reconcile.Stats
	}{
		{
			name:                     "overlapping sequences",
			following:                records("a", "b", "c"),
			followers:                records("b", "c", "d"),
			expectedNotFollowingBack: []string{"a"},
			expectedFans:             []string{"d"},
			expectedMutual:           []string{"b", "c"},
			expectedStats: reconcile.Stats{
				FollowingCount:        3,
				FollowersCount:        3,
				NotFollowingBackCount: 1,
				FansCount:             1,
				MutualCount:           2,
				FollowRatio:           1.0,
			},
		},
		{
			name:                     "identical sequences are fully mutual",
			following:                records("x", "y"),
			followers:                records("y", "x"),
			expectedNotFollowingBack: []string{},
			expectedFans:             []string{},
			expectedMutual:           []string{"x", "y"},
			expectedStats:            reconcile.Stats{FollowingCount: 2, FollowersCount: 2, MutualCount: 2, FollowRatio: 1},
		},
		{
			name:                     "no followers",
			following:                records("a", "b"),
			followers:                nil,
			expectedNotFollowingBack: []string{"a", "b"},
			expectedFans:             []string{},
			expectedMutual:           []string{},
			expectedStats:            reconcile.Stats{FollowingCount: 2, NotFollowingBackCount: 2},
		},
		{
			name:                     "no following keeps ratio at zero",
			following:                []connections.Record{},
			followers:                records("d", "e"),
			expectedNotFollowingBack: []string{},
			expectedFans:             []string{"d", "e"},
			expectedMutual:           []string{},
			expectedStats:            reconcile.Stats{FollowersCount: 2, FansCount: 2},
		},
		{
			name:                     "membership is case sensitive",
			following:                records("Alice"),
			followers:                records("alice"),
			expectedNotFollowingBack: []string{"Alice"},
			expectedFans:             []string{"alice"},
			expectedMutual:           []string{},
			expectedStats:            reconcile.Stats{FollowingCount: 1, FollowersCount: 1, NotFollowingBackCount: 1, FansCount: 1, FollowRatio: 1},
		},
		{
			name:                     "input order is preserved",
			following:                records("zed", "amy", "kim", "bo"),
			followers:                records("kim", "zed", "xi", "al"),
			expectedNotFollowingBack: []string{"amy", "bo"},
			expectedFans:             []string{"xi", "al"},
			expectedMutual:           []string{"zed", "kim"},
			expectedStats:            reconcile.Stats{FollowingCount: 4, FollowersCount: 4, NotFollowingBackCount: 2, FansCount: 2, MutualCount: 2, FollowRatio: 1},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			result := reconcile.Reconcile(testCase.following, testCase.followers)

			if diff := cmp.Diff(testCase.expectedNotFollowingBack, usernames(result.NotFollowingBack)); diff != "" {
				t.Fatalf("NotFollowingBack mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(testCase.expectedFans, usernames(result.Fans)); diff != "" {
				t.Fatalf("Fans mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(testCase.expectedMutual, usernames(result.Mutual)); diff != "" {
				t.Fatalf("Mutual mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(testCase.expectedStats, result.Stats); diff != "" {
				t.Fatalf("Stats mismatch (-want +got):\n%s", diff)
			}
			if result.NotFollowingBack == nil || result.Fans == nil || result.Mutual == nil {
				t.Fatalf("derived sequences must never be nil")
			}
		})
	}
}

func TestReconcileFromNormalizedInput(t *testing.T) {
	following := connections.Normalize(`["a","b","c"]`, reconcileTestNow)
	followers := connections.Normalize(`["b","c","d"]`, reconcileTestNow)

	result := reconcile.Reconcile(following, followers)
	if diff := cmp.Diff(records("a"), result.NotFollowingBack); diff != "" {
		t.Fatalf("NotFollowingBack mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(records("d"), result.Fans); diff != "" {
		t.Fatalf("Fans mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(records("b", "c"), result.Mutual); diff != "" {
		t.Fatalf("Mutual mismatch (-want +got):\n%s", diff)
	}
}

func TestResultSelect(t *testing.T) {
	result := reconcile.Reconcile(records("a", "b"), records("b", "c"))

	testCases := []struct {
		kind     reconcile.ListKind
		expected []string
	}{
		{kind: reconcile.ListFollowing, expected: []string{"a", "b"}},
		{kind: reconcile.ListFollowers, expected: []string{"b", "c"}},
		{kind: reconcile.ListNotFollowingBack, expected: []string{"a"}},
		{kind: reconcile.ListFans, expected: []string{"c"}},
		{kind: reconcile.ListMutual, expected: []string{"b"}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(string(testCase.kind), func(t *testing.T) {
			if diff := cmp.Diff(testCase.expected, usernames(result.Select(testCase.kind))); diff != "" {
				t.Fatalf("Select(%s) mismatch (-want +got):\n%s", testCase.kind, diff)
			}
		})
	}

	if selected := result.Select(reconcile.ListKind("unknown")); selected != nil {
		t.Fatalf("expected nil for unknown list kind, got %v", selected)
	}
	if _, ok := reconcile.ParseListKind("fans"); !ok {
		t.Fatalf("expected fans to parse as a list kind")
	}
}

func TestStatsDerivedValues(t *testing.T) {
	testCases := []struct {
		name                   string
		stats                  reconcile.Stats
		expectedNotFollowShare float64
		expectedFansShare      float64
		expectedLabel          string
	}{
		{
			name:                   "empty stats avoid division by zero",
			stats:                  reconcile.Stats{},
			expectedNotFollowShare: 0,
			expectedFansShare:      0,
			expectedLabel:          "Normal user",
		},
		{
			name:                   "influencer ratio",
			stats:                  reconcile.Stats{FollowingCount: 4, FollowersCount: 10, NotFollowingBackCount: 1, FansCount: 7, FollowRatio: 2.5},
			expectedNotFollowShare: 25,
			expectedFansShare:      70,
			expectedLabel:          "Influencer territory",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			if share := testCase.stats.NotFollowingBackShare(); math.Abs(share-testCase.expectedNotFollowShare) > 1e-9 {
				t.Fatalf("NotFollowingBackShare() = %v, want %v", share, testCase.expectedNotFollowShare)
			}
			if share := testCase.stats.FansShare(); math.Abs(share-testCase.expectedFansShare) > 1e-9 {
				t.Fatalf("FansShare() = %v, want %v", share, testCase.expectedFansShare)
			}
			if label := testCase.stats.RatioLabel(); label != testCase.expectedLabel {
				t.Fatalf("RatioLabel() = %q, want %q", label, testCase.expectedLabel)
			}
			if math.IsNaN(testCase.stats.FollowRatio) || math.IsInf(testCase.stats.FollowRatio, 0) {
				t.Fatalf("follow ratio must be finite")
			}
		})
	}
}
