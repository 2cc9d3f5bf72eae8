package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/f-sync/followdiff/internal/reconcile"
)

const (
	// PlaceholderFailure is returned when the summarizer fails.
	PlaceholderFailure = "Unable to generate AI insights. Please ensure your API key is valid."
	// PlaceholderEmpty is returned when the summarizer produces no text.
	PlaceholderEmpty = "Could not generate insights at this time."

	logMessageSummarizeFailed = "insight generation failed"
	logMessageSummarizeEmpty  = "insight generation returned no text"
	logFieldFollowing         = "following"
	logFieldFollowers         = "followers"
	errMessageNoSummarizer    = "no summarizer configured"
	errMessageEmptySummary    = "summarizer returned no text"

	highNotFollowingBackShare = 50
	lowNotFollowingBackShare  = 10
	healthyMutualShare        = 50

	ruleHealthFormat = "**Account health.** You follow %d accounts and %d follow you, a follow ratio of %.2f (%s). " +
		"%d of those relationships are mutual, %.1f%% of everyone you follow."
	ruleNotFollowingBackFormat = "**Not following back.** %d accounts (%.1f%% of your following) do not follow you back. %s"
	ruleAdviceFormat           = "**Next step.** %s"

	commentNotFollowingBackHigh   = "That is a lot of unrequited attention: expect celebrities, brands and the occasional abandoned account in this list."
	commentNotFollowingBackMedium = "A fair share of one-way follows, typical for someone who follows creators they admire."
	commentNotFollowingBackLow    = "Almost everyone you follow returns the favour."

	adviceCleanUp     = "Review the not-following-back list and unfollow accounts you no longer engage with."
	adviceFans        = "You have %d fans you do not follow; following back the ones you interact with is an easy engagement win."
	adviceMaintenance = "Your lists are in good shape; revisit them after your next export."
)

var (
	// ErrNoSummarizer indicates that the Service was built without a Summarizer.
	ErrNoSummarizer = errors.New(errMessageNoSummarizer)
	// ErrEmptySummary indicates that the Summarizer produced only whitespace.
	ErrEmptySummary = errors.New(errMessageEmptySummary)
)

// Summarizer turns reconciliation statistics into a narrative description.
type Summarizer interface {
	Summarize(ctx context.Context, stats reconcile.Stats) (string, error)
}

// RuleSummarizer builds a deterministic three paragraph summary without calling any model.
type RuleSummarizer struct{}

var _ Summarizer = RuleSummarizer{}

// Summarize describes stats using fixed thresholds.
func (RuleSummarizer) Summarize(_ context.Context, stats reconcile.Stats) (string, error) {
	mutualShare := 0.0
	if stats.FollowingCount > 0 {
		mutualShare = float64(stats.MutualCount) / float64(stats.FollowingCount) * 100
	}
	notFollowingBackShare := stats.NotFollowingBackShare()

	health := fmt.Sprintf(ruleHealthFormat,
		stats.FollowingCount, stats.FollowersCount, stats.FollowRatio, stats.RatioLabel(),
		stats.MutualCount, mutualShare)

	var comment string
	switch {
	case notFollowingBackShare >= highNotFollowingBackShare:
		comment = commentNotFollowingBackHigh
	case notFollowingBackShare >= lowNotFollowingBackShare:
		comment = commentNotFollowingBackMedium
	default:
		comment = commentNotFollowingBackLow
	}
	notFollowingBack := fmt.Sprintf(ruleNotFollowingBackFormat, stats.NotFollowingBackCount, notFollowingBackShare, comment)

	var advice string
	switch {
	case notFollowingBackShare >= lowNotFollowingBackShare:
		advice = adviceCleanUp
	case stats.FansCount > 0 && mutualShare < healthyMutualShare:
		advice = fmt.Sprintf(adviceFans, stats.FansCount)
	default:
		advice = adviceMaintenance
	}

	return strings.Join([]string{health, notFollowingBack, fmt.Sprintf(ruleAdviceFormat, advice)}, "\n\n"), nil
}

// Service wraps a Summarizer and degrades failures to placeholder text.
type Service struct {
	summarizer Summarizer
	logger     *zap.Logger
}

// NewService constructs a Service. A nil logger disables logging.
func NewService(summarizer Summarizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{summarizer: summarizer, logger: logger}
}

// Generate returns the summary for stats together with the failure, if any.
// On failure the returned text is the matching placeholder.
func (service *Service) Generate(ctx context.Context, stats reconcile.Stats) (string, error) {
	if service == nil || service.summarizer == nil {
		return PlaceholderEmpty, ErrNoSummarizer
	}
	text, err := service.summarizer.Summarize(ctx, stats)
	if err != nil {
		service.logger.Warn(logMessageSummarizeFailed,
			zap.Int(logFieldFollowing, stats.FollowingCount),
			zap.Int(logFieldFollowers, stats.FollowersCount),
			zap.Error(err))
		return PlaceholderFailure, err
	}
	if strings.TrimSpace(text) == "" {
		service.logger.Warn(logMessageSummarizeEmpty)
		return PlaceholderEmpty, ErrEmptySummary
	}
	return text, nil
}

// Describe returns the summary for stats, or a placeholder when none can be produced.
func (service *Service) Describe(ctx context.Context, stats reconcile.Stats) string {
	text, _ := service.Generate(ctx, stats)
	return text
}

// Config selects a Summarizer implementation.
type Config struct {
	GeminiAPIKey string
	GeminiModel  string
}

// NewSummarizer returns a Gemini-backed summarizer when an API key is configured
// and the rule based one otherwise.
func NewSummarizer(ctx context.Context, configuration Config) (Summarizer, error) {
	if strings.TrimSpace(configuration.GeminiAPIKey) == "" {
		return RuleSummarizer{}, nil
	}
	summarizer, err := NewGeminiSummarizer(ctx, GeminiConfig{APIKey: configuration.GeminiAPIKey, Model: configuration.GeminiModel})
	if err != nil {
		return nil, err
	}
	return summarizer, nil
}
