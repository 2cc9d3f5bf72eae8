package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/f-sync/followdiff/internal/connections"
	"github.com/f-sync/followdiff/internal/insights"
	"github.com/f-sync/followdiff/internal/reconcile"
	"github.com/f-sync/followdiff/internal/store"
)

const (
	followingFixturePath = "following.json"
	followersFixturePath = "followers.json"
	followingFixture     = `[
		{"string_list_data":[{"href":"https://www.instagram.com/a","value":"a","timestamp":10}]},
		{"string_list_data":[{"href":"https://www.instagram.com/b","value":"b","timestamp":20}]},
		{"string_list_data":[{"href":"https://www.instagram.com/Carol","value":"Carol","timestamp":30}]}
	]`
	followersFixture   = `["b","carol","d"]`
	watchEventTimeout  = 3 * time.Second
	watchRetryInterval = 50 * time.Millisecond
)

var analyzeTestNow = time.Unix(1700000000, 0)

type stubSummarizer struct {
	text string
}

func (summarizer stubSummarizer) Summarize(context.Context, reconcile.Stats) (string, error) {
	return summarizer.text, nil
}

func newTestApplication(files map[string]string, stdout *bytes.Buffer) AnalyzeApplication {
	return NewAnalyzeApplicationWithDependencies(AnalyzeDependencies{
		ReadFile: func(path string) ([]byte, error) {
			contents, exists := files[path]
			if !exists {
				return nil, os.ErrNotExist
			}
			return []byte(contents), nil
		},
		NewSummarizer: func(context.Context, insights.Config) (insights.Summarizer, error) {
			return stubSummarizer{text: "stub insight"}, nil
		},
		Now:    func() time.Time { return analyzeTestNow },
		Stdout: stdout,
	})
}

func fixtureFiles() map[string]string {
	return map[string]string{followingFixturePath: followingFixture, followersFixturePath: followersFixture}
}

func TestRunPrintsTextReport(t *testing.T) {
	var stdout bytes.Buffer
	application := newTestApplication(fixtureFiles(), &stdout)

	err := application.Run(context.Background(), AnalyzeConfiguration{FollowingPath: followingFixturePath, FollowersPath: followersFixturePath})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	output := stdout.String()
	expectedFragments := []string{
		"Following           3",
		"Followers           3",
		"Not following back  2 (66.7%)",
		"Follow ratio        1.00 (Normal user)",
		"Not following back (2)",
		"@a      https://www.instagram.com/a",
		"@Carol  https://www.instagram.com/Carol",
	}
	for _, fragment := range expectedFragments {
		if !strings.Contains(output, fragment) {
			t.Fatalf("expected output to contain %q, got:\n%s", fragment, output)
		}
	}
	if strings.Contains(output, "Insights") {
		t.Fatalf("insights must only be printed on request")
	}
}

func TestRunHonoursFoldCaseListAndSearch(t *testing.T) {
	testCases := []struct {
		name              string
		configuration     AnalyzeConfiguration
		expectedUsernames []string
		expectedStats     reconcile.Stats
	}{
		{
			name:              "case sensitive mutual",
			configuration:     AnalyzeConfiguration{List: "mutual"},
			expectedUsernames: []string{"b"},
			expectedStats:     reconcile.Stats{FollowersCount: 3, FollowingCount: 3, NotFollowingBackCount: 2, FansCount: 2, MutualCount: 1, FollowRatio: 1},
		},
		{
			name:              "folded case mutual",
			configuration:     AnalyzeConfiguration{List: "mutual", FoldCase: true},
			expectedUsernames: []string{"b", "carol"},
			expectedStats:     reconcile.Stats{FollowersCount: 3, FollowingCount: 3, NotFollowingBackCount: 1, FansCount: 1, MutualCount: 2, FollowRatio: 1},
		},
		{
			name:              "searched fans",
			configuration:     AnalyzeConfiguration{List: "fans", Search: "D"},
			expectedUsernames: []string{"d"},
			expectedStats:     reconcile.Stats{FollowersCount: 3, FollowingCount: 3, NotFollowingBackCount: 2, FansCount: 2, MutualCount: 1, FollowRatio: 1},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			var stdout bytes.Buffer
			application := newTestApplication(fixtureFiles(), &stdout)
			configuration := testCase.configuration
			configuration.FollowingPath = followingFixturePath
			configuration.FollowersPath = followersFixturePath
			configuration.Format = "json"

			if err := application.Run(context.Background(), configuration); err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			var report analysisReport
			if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
				t.Fatalf("decode report: %v", err)
			}
			if report.Stats != testCase.expectedStats {
				t.Fatalf("stats = %+v, want %+v", report.Stats, testCase.expectedStats)
			}
			if len(report.Records) != len(testCase.expectedUsernames) {
				t.Fatalf("records = %+v, want %v", report.Records, testCase.expectedUsernames)
			}
			for index, record := range report.Records {
				if record.Username != testCase.expectedUsernames[index] {
					t.Fatalf("records[%d] = %s, want %s", index, record.Username, testCase.expectedUsernames[index])
				}
			}
		})
	}
}

func TestRunAppendsInsights(t *testing.T) {
	var stdout bytes.Buffer
	application := newTestApplication(fixtureFiles(), &stdout)

	err := application.Run(context.Background(), AnalyzeConfiguration{FollowingPath: followingFixturePath, FollowersPath: followersFixturePath, Insights: true})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "Insights\nstub insight") {
		t.Fatalf("expected insights section, got:\n%s", stdout.String())
	}
}

func TestRunValidationErrors(t *testing.T) {
	testCases := []struct {
		name          string
		configuration AnalyzeConfiguration
		expectedError error
	}{
		{name: "missing followers", configuration: AnalyzeConfiguration{FollowingPath: followingFixturePath}, expectedError: ErrMissingInput},
		{name: "unknown format", configuration: AnalyzeConfiguration{FollowingPath: followingFixturePath, FollowersPath: followersFixturePath, Format: "xml"}, expectedError: ErrUnknownFormat},
		{name: "unknown list", configuration: AnalyzeConfiguration{FollowingPath: followingFixturePath, FollowersPath: followersFixturePath, List: "blocked"}, expectedError: ErrUnknownList},
		{name: "unreadable input", configuration: AnalyzeConfiguration{FollowingPath: "missing.json", FollowersPath: followersFixturePath}, expectedError: os.ErrNotExist},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			var stdout bytes.Buffer
			err := newTestApplication(fixtureFiles(), &stdout).Run(context.Background(), testCase.configuration)
			if !errors.Is(err, testCase.expectedError) {
				t.Fatalf("expected %v, got %v", testCase.expectedError, err)
			}
			if stdout.Len() != 0 {
				t.Fatalf("no report expected on failure, got %q", stdout.String())
			}
		})
	}
}

func TestRunPersistsNonEmptySequences(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "analyze.db")
	files := fixtureFiles()

	var stdout bytes.Buffer
	err := newTestApplication(files, &stdout).Run(context.Background(), AnalyzeConfiguration{
		FollowingPath: followingFixturePath,
		FollowersPath: followersFixturePath,
		StorePath:     databasePath,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	files[followersFixturePath] = `{"unexpected":true}`
	err = newTestApplication(files, &stdout).Run(context.Background(), AnalyzeConfiguration{
		FollowingPath: followingFixturePath,
		FollowersPath: followersFixturePath,
		StorePath:     databasePath,
	})
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}

	sqliteStore, err := store.Open(context.Background(), databasePath)
	if err != nil {
		t.Fatalf("store.Open returned error: %v", err)
	}
	defer sqliteStore.Close()

	followers, err := sqliteStore.Load(context.Background(), connections.DirectionFollowers)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(followers) != 3 || followers[2].Username != "d" || followers[2].ObservedAt != analyzeTestNow.Unix() {
		t.Fatalf("an empty input must leave the stored followers untouched, got %+v", followers)
	}
}

func TestParseReportFormat(t *testing.T) {
	testCases := []struct {
		value          string
		expectedFormat reportFormat
		expectKnown    bool
	}{
		{value: "", expectedFormat: reportFormatText, expectKnown: true},
		{value: "TEXT", expectedFormat: reportFormatText, expectKnown: true},
		{value: " json ", expectedFormat: reportFormatJSON, expectKnown: true},
		{value: "yaml"},
	}
	for _, testCase := range testCases {
		format, known := parseReportFormat(testCase.value)
		if format != testCase.expectedFormat || known != testCase.expectKnown {
			t.Fatalf("parseReportFormat(%q) = %q, %v", testCase.value, format, known)
		}
	}
}

func TestInputWatcherReportsChanges(t *testing.T) {
	directory := t.TempDir()
	watchedPath := filepath.Join(directory, "following.json")
	otherPath := filepath.Join(directory, "notes.txt")
	if err := os.WriteFile(watchedPath, []byte(`[]`), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	watcher, err := newInputWatcher(watchedPath)
	if err != nil {
		t.Fatalf("newInputWatcher returned error: %v", err)
	}
	defer watcher.Close()

	if err := os.WriteFile(otherPath, []byte("ignored"), 0o600); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}

	deadline := time.After(watchEventTimeout)
	retry := time.NewTicker(watchRetryInterval)
	defer retry.Stop()
	if err := os.WriteFile(watchedPath, []byte(`["a"]`), 0o600); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}
	for {
		select {
		case changedPath := <-watcher.Changes:
			if changedPath != watchedPath {
				t.Fatalf("unexpected change for %s", changedPath)
			}
			return
		case <-retry.C:
		case <-deadline:
			t.Fatalf("no change reported for %s", watchedPath)
		}
	}
}
