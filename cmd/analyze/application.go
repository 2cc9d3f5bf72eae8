package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/f-sync/followdiff/internal/connections"
	"github.com/f-sync/followdiff/internal/insights"
	"github.com/f-sync/followdiff/internal/reconcile"
	"github.com/f-sync/followdiff/internal/store"
)

const (
	errMessageMissingInput   = "both --following and --followers are required"
	errMessageUnknownFormat  = "format must be text or json"
	errMessageUnknownList    = "unknown list kind"
	loadErrorFormat          = "read %s: %w"
	storeOpenErrorFormat     = "open store %s: %w"
	storeWriteErrorFormat    = "store %s: %w"
	summarizerErrorFormat    = "create summarizer: %w"
	logMessageEmptyInput     = "input carried no connections"
	logMessageStoreSkipped   = "empty direction left untouched in store"
	logMessageStoreCloseFail = "store close failure"
	logFieldPath             = "path"
	logFieldShape            = "shape"
	logFieldDirection        = "direction"
)

var (
	// ErrMissingInput indicates that one of the two input files was not provided.
	ErrMissingInput = errors.New(errMessageMissingInput)
	// ErrUnknownFormat indicates an unsupported report format.
	ErrUnknownFormat = errors.New(errMessageUnknownFormat)
	// ErrUnknownList indicates an unsupported --list value.
	ErrUnknownList = errors.New(errMessageUnknownList)
)

// AnalyzeConfiguration carries the options of one analysis run.
type AnalyzeConfiguration struct {
	FollowingPath string
	FollowersPath string
	Format        string
	List          string
	Search        string
	FoldCase      bool
	StorePath     string
	Insights      bool
	GeminiAPIKey  string
	GeminiModel   string
}

// connectionStore is a store that must be released after use.
type connectionStore interface {
	store.Store
	Close() error
}

// AnalyzeDependencies lists the collaborators of AnalyzeApplication. Nil fields use defaults.
type AnalyzeDependencies struct {
	ReadFile      func(string) ([]byte, error)
	OpenStore     func(context.Context, string) (connectionStore, error)
	NewSummarizer func(context.Context, insights.Config) (insights.Summarizer, error)
	Now           func() time.Time
	Logger        *zap.Logger
	Stdout        io.Writer
}

// AnalyzeApplication loads two exports, reconciles them and prints a report.
type AnalyzeApplication struct {
	dependencies AnalyzeDependencies
}

// NewAnalyzeApplication constructs an application with the default dependencies.
func NewAnalyzeApplication() AnalyzeApplication {
	return NewAnalyzeApplicationWithDependencies(newDefaultAnalyzeDependencies())
}

// NewAnalyzeApplicationWithDependencies constructs an application, filling unset dependencies with defaults.
func NewAnalyzeApplicationWithDependencies(dependencies AnalyzeDependencies) AnalyzeApplication {
	defaultDependencies := newDefaultAnalyzeDependencies()

	if dependencies.ReadFile == nil {
		dependencies.ReadFile = defaultDependencies.ReadFile
	}
	if dependencies.OpenStore == nil {
		dependencies.OpenStore = defaultDependencies.OpenStore
	}
	if dependencies.NewSummarizer == nil {
		dependencies.NewSummarizer = defaultDependencies.NewSummarizer
	}
	if dependencies.Now == nil {
		dependencies.Now = defaultDependencies.Now
	}
	if dependencies.Logger == nil {
		dependencies.Logger = defaultDependencies.Logger
	}
	if dependencies.Stdout == nil {
		dependencies.Stdout = defaultDependencies.Stdout
	}

	return AnalyzeApplication{dependencies: dependencies}
}

// Run performs a single analysis pass.
func (application AnalyzeApplication) Run(executionContext context.Context, configuration AnalyzeConfiguration) error {
	if configuration.FollowingPath == "" || configuration.FollowersPath == "" {
		return ErrMissingInput
	}
	format, knownFormat := parseReportFormat(configuration.Format)
	if !knownFormat {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, configuration.Format)
	}
	var listKind reconcile.ListKind
	if configuration.List != "" {
		kind, knownKind := reconcile.ParseListKind(configuration.List)
		if !knownKind {
			return fmt.Errorf("%w: %q", ErrUnknownList, configuration.List)
		}
		listKind = kind
	}

	following, followers, err := application.loadInputs(configuration)
	if err != nil {
		return err
	}

	if configuration.StorePath != "" {
		if err := application.persist(executionContext, configuration.StorePath, following, followers); err != nil {
			return err
		}
	}

	result := reconcile.Reconcile(following, followers)
	report := analysisReport{
		Stats:  result.Stats,
		List:   listKind,
		Search: configuration.Search,
	}
	if listKind == "" {
		report.List = reconcile.ListNotFollowingBack
	}
	report.Records = connections.Filter(result.Select(report.List), configuration.Search)

	if configuration.Insights {
		summarizer, err := application.dependencies.NewSummarizer(executionContext, insights.Config{
			GeminiAPIKey: configuration.GeminiAPIKey,
			GeminiModel:  configuration.GeminiModel,
		})
		if err != nil {
			return fmt.Errorf(summarizerErrorFormat, err)
		}
		report.Insights = insights.NewService(summarizer, application.dependencies.Logger).Describe(executionContext, result.Stats)
	}

	return writeReport(application.dependencies.Stdout, format, report)
}

// loadInputs reads and normalizes both exports concurrently.
func (application AnalyzeApplication) loadInputs(configuration AnalyzeConfiguration) ([]connections.Record, []connections.Record, error) {
	normalizer := connections.Normalizer{Now: application.dependencies.Now, FoldCase: configuration.FoldCase}

	var following, followers []connections.Record
	var group errgroup.Group
	group.Go(func() error {
		records, err := application.loadInput(normalizer, configuration.FollowingPath)
		following = records
		return err
	})
	group.Go(func() error {
		records, err := application.loadInput(normalizer, configuration.FollowersPath)
		followers = records
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return following, followers, nil
}

func (application AnalyzeApplication) loadInput(normalizer connections.Normalizer, path string) ([]connections.Record, error) {
	contents, err := application.dependencies.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(loadErrorFormat, path, err)
	}
	rawText := string(contents)
	records := normalizer.Normalize(rawText)
	if len(records) == 0 {
		application.dependencies.Logger.Warn(logMessageEmptyInput,
			zap.String(logFieldPath, path),
			zap.Stringer(logFieldShape, connections.Classify(rawText)))
	}
	return records, nil
}

// persist replaces the stored sequences, leaving a direction untouched when its input was empty.
func (application AnalyzeApplication) persist(executionContext context.Context, storePath string, following []connections.Record, followers []connections.Record) error {
	openedStore, err := application.dependencies.OpenStore(executionContext, storePath)
	if err != nil {
		return fmt.Errorf(storeOpenErrorFormat, storePath, err)
	}
	defer func() {
		if closeErr := openedStore.Close(); closeErr != nil {
			application.dependencies.Logger.Warn(logMessageStoreCloseFail, zap.Error(closeErr))
		}
	}()

	loaded := map[connections.Direction][]connections.Record{
		connections.DirectionFollowing: following,
		connections.DirectionFollowers: followers,
	}
	sequences := make(map[connections.Direction][]connections.Record, len(loaded))
	for _, direction := range connections.Directions() {
		if len(loaded[direction]) == 0 {
			application.dependencies.Logger.Info(logMessageStoreSkipped, zap.String(logFieldDirection, string(direction)))
			continue
		}
		sequences[direction] = loaded[direction]
	}
	if len(sequences) == 0 {
		return nil
	}
	if err := openedStore.ReplaceAll(executionContext, sequences); err != nil {
		return fmt.Errorf(storeWriteErrorFormat, storePath, err)
	}
	return nil
}

func newDefaultAnalyzeDependencies() AnalyzeDependencies {
	return AnalyzeDependencies{
		ReadFile: os.ReadFile,
		OpenStore: func(executionContext context.Context, path string) (connectionStore, error) {
			sqliteStore, err := store.Open(executionContext, path)
			if err != nil {
				return nil, err
			}
			return sqliteStore, nil
		},
		NewSummarizer: insights.NewSummarizer,
		Now:           time.Now,
		Logger:        zap.NewNop(),
		Stdout:        os.Stdout,
	}
}
