package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/f-sync/followdiff/internal/connections"
	"github.com/f-sync/followdiff/internal/insights"
	"github.com/f-sync/followdiff/internal/reconcile"
	"github.com/f-sync/followdiff/internal/scan"
	"github.com/f-sync/followdiff/internal/store"
)

const (
	healthRoutePath         = "/healthz"
	importRoutePath         = "/api/import/:direction"
	scanRoutePath           = "/api/scan"
	bundleRoutePath         = "/api/bundle"
	analysisRoutePath       = "/api/analysis"
	listRoutePath           = "/api/lists/:kind"
	unfollowRoutePath       = "/api/following/:username"
	dataRoutePath           = "/api/data"
	demoRoutePath           = "/api/demo"
	insightsRoutePath       = "/api/insights"
	insightTaskRoutePath    = "/api/insights/:id"
	directionParameterName  = "direction"
	kindParameterName       = "kind"
	usernameParameterName   = "username"
	taskIDParameterName     = "id"
	searchQueryName         = "q"
	healthStatusKey         = "status"
	healthStatusOK          = "ok"
	errorResponseKey        = "error"
	ginModeRelease          = "release"
	errMessageMissingStore  = "router requires a store"
	errorMessageDirection   = "direction must be following or followers"
	errorMessageListKind    = "unknown list kind"
	errorMessageNoRecords   = "no connections found in the uploaded data"
	errorMessageReadBody    = "request body could not be read"
	errorMessageScanReport  = "scan report is not valid JSON"
	errorMessageStorage     = "connection storage failed"
	errorMessageNotFollowed = "username is not in the following list"
	errorMessageTaskMissing = "insight task not found"
	logMessageStoreFailure  = "connection store failure"
	logMessageImported      = "connections imported"
	logMessageScanSkipped   = "scan carried no usernames"
	logMessageTaskFinished  = "insight task finished"
	logFieldDirection       = "direction"
	logFieldCount           = "count"
	logFieldShape           = "shape"
	logFieldTaskID          = "task_id"
	logFieldStatus          = "status"
	defaultInsightTimeout   = 2 * time.Minute
)

// ErrMissingStore is returned by NewRouter when no Store is configured.
var ErrMissingStore = errors.New(errMessageMissingStore)

// RouterConfig configures the HTTP routing for the connection analysis API.
type RouterConfig struct {
	Store    store.Store
	Insights *insights.Service
	Logger   *zap.Logger
	Now      func() time.Time
	FoldCase bool
	// InsightTimeout bounds a single background insight generation. Zero selects two minutes.
	InsightTimeout time.Duration
}

// NewRouter constructs a Gin engine configured with the import, analysis and insight handlers.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	if configuration.Store == nil {
		return nil, ErrMissingStore
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	insightService := configuration.Insights
	if insightService == nil {
		insightService = insights.NewService(insights.RuleSummarizer{}, logger)
	}
	insightTimeout := configuration.InsightTimeout
	if insightTimeout <= 0 {
		insightTimeout = defaultInsightTimeout
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := connectionHandler{
		store:          configuration.Store,
		normalizer:     connections.Normalizer{Now: now, FoldCase: configuration.FoldCase},
		insights:       insightService,
		tracker:        newInsightTaskTracker(maxFinishedInsightTasks),
		insightTimeout: insightTimeout,
		logger:         logger,
		now:            now,
	}

	engine.GET(healthRoutePath, handler.healthStatus)
	engine.POST(importRoutePath, handler.importConnections)
	engine.POST(scanRoutePath, handler.importScan)
	engine.POST(bundleRoutePath, handler.importBundle)
	engine.GET(analysisRoutePath, handler.serveAnalysis)
	engine.GET(listRoutePath, handler.serveList)
	engine.DELETE(unfollowRoutePath, handler.unfollow)
	engine.DELETE(dataRoutePath, handler.resetData)
	engine.POST(demoRoutePath, handler.loadDemo)
	engine.POST(insightsRoutePath, handler.startInsights)
	engine.GET(insightTaskRoutePath, handler.insightStatus)

	return engine, nil
}

type connectionHandler struct {
	store          store.Store
	normalizer     connections.Normalizer
	insights       *insights.Service
	tracker        *insightTaskTracker
	insightTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

type importResponse struct {
	Direction connections.Direction `json:"direction"`
	Count     int                   `json:"count"`
	Updated   bool                  `json:"updated"`
}

type bundleResponse struct {
	Following int   `json:"following"`
	Followers int   `json:"followers"`
	ScanDate  int64 `json:"scanDate,omitempty"`
}

type listResponse struct {
	Kind    reconcile.ListKind   `json:"kind"`
	Count   int                  `json:"count"`
	Records []connections.Record `json:"records"`
}

func (handler connectionHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}

func (handler connectionHandler) importConnections(ginContext *gin.Context) {
	direction, known := connections.ParseDirection(ginContext.Param(directionParameterName))
	if !known {
		respondError(ginContext, http.StatusNotFound, errorMessageDirection)
		return
	}
	rawBody, err := ginContext.GetRawData()
	if err != nil {
		respondError(ginContext, http.StatusBadRequest, errorMessageReadBody)
		return
	}
	rawText := string(rawBody)
	records := handler.normalizer.Normalize(rawText)
	if len(records) == 0 {
		respondError(ginContext, http.StatusUnprocessableEntity, errorMessageNoRecords)
		return
	}
	if !handler.replace(ginContext, direction, records) {
		return
	}
	handler.logger.Info(logMessageImported,
		zap.String(logFieldDirection, string(direction)),
		zap.Int(logFieldCount, len(records)),
		zap.Stringer(logFieldShape, connections.Classify(rawText)))
	ginContext.JSON(http.StatusOK, importResponse{Direction: direction, Count: len(records), Updated: true})
}

func (handler connectionHandler) importScan(ginContext *gin.Context) {
	var report scan.Report
	if err := ginContext.ShouldBindJSON(&report); err != nil {
		respondError(ginContext, http.StatusBadRequest, errorMessageScanReport)
		return
	}
	direction := scan.ResolveDirection(report)
	records := handler.normalizer.FromUsernames(report.Usernames())
	if len(records) == 0 {
		handler.logger.Info(logMessageScanSkipped, zap.String(logFieldDirection, string(direction)))
		ginContext.JSON(http.StatusOK, importResponse{Direction: direction})
		return
	}
	if !handler.replace(ginContext, direction, records) {
		return
	}
	ginContext.JSON(http.StatusOK, importResponse{Direction: direction, Count: len(records), Updated: true})
}

func (handler connectionHandler) importBundle(ginContext *gin.Context) {
	rawBody, err := ginContext.GetRawData()
	if err != nil {
		respondError(ginContext, http.StatusBadRequest, errorMessageReadBody)
		return
	}
	bundle, err := scan.ParseBundle(rawBody)
	if err != nil {
		respondError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	following := handler.normalizer.FromUsernames(bundle.Following)
	followers := handler.normalizer.FromUsernames(bundle.Followers)
	sequences := make(map[connections.Direction][]connections.Record, 2)
	if len(following) > 0 {
		sequences[connections.DirectionFollowing] = following
	}
	if len(followers) > 0 {
		sequences[connections.DirectionFollowers] = followers
	}
	if len(sequences) > 0 && !handler.replaceAll(ginContext, sequences) {
		return
	}
	ginContext.JSON(http.StatusOK, bundleResponse{Following: len(following), Followers: len(followers), ScanDate: bundle.ScanDate})
}

func (handler connectionHandler) serveAnalysis(ginContext *gin.Context) {
	result, ok := handler.analyze(ginContext)
	if !ok {
		return
	}
	ginContext.JSON(http.StatusOK, result)
}

func (handler connectionHandler) serveList(ginContext *gin.Context) {
	kind, known := reconcile.ParseListKind(ginContext.Param(kindParameterName))
	if !known {
		respondError(ginContext, http.StatusNotFound, errorMessageListKind)
		return
	}
	result, ok := handler.analyze(ginContext)
	if !ok {
		return
	}
	records := connections.Filter(result.Select(kind), ginContext.Query(searchQueryName))
	ginContext.JSON(http.StatusOK, listResponse{Kind: kind, Count: len(records), Records: records})
}

func (handler connectionHandler) unfollow(ginContext *gin.Context) {
	username := handler.normalizer.CanonicalUsername(ginContext.Param(usernameParameterName))
	removed, err := handler.store.Remove(ginContext.Request.Context(), connections.DirectionFollowing, username)
	if err != nil {
		handler.storeFailure(ginContext, err)
		return
	}
	if !removed {
		respondError(ginContext, http.StatusNotFound, errorMessageNotFollowed)
		return
	}
	ginContext.Status(http.StatusNoContent)
}

func (handler connectionHandler) resetData(ginContext *gin.Context) {
	if err := handler.store.Clear(ginContext.Request.Context()); err != nil {
		handler.storeFailure(ginContext, err)
		return
	}
	ginContext.Status(http.StatusNoContent)
}

func (handler connectionHandler) loadDemo(ginContext *gin.Context) {
	following, followers := connections.DemoData(handler.now())
	sequences := map[connections.Direction][]connections.Record{
		connections.DirectionFollowing: following,
		connections.DirectionFollowers: followers,
	}
	if !handler.replaceAll(ginContext, sequences) {
		return
	}
	ginContext.JSON(http.StatusOK, reconcile.Reconcile(following, followers).Stats)
}

func (handler connectionHandler) startInsights(ginContext *gin.Context) {
	result, ok := handler.analyze(ginContext)
	if !ok {
		return
	}
	snapshot := handler.tracker.CreateTask()
	// The task outlives the request, so it keeps the request values but gets its own deadline.
	taskContext, cancel := context.WithTimeout(context.WithoutCancel(ginContext.Request.Context()), handler.insightTimeout)
	go func() {
		defer cancel()
		handler.runInsightTask(taskContext, snapshot.Identifier, result.Stats)
	}()
	ginContext.JSON(http.StatusAccepted, snapshot)
}

func (handler connectionHandler) runInsightTask(ctx context.Context, taskIdentifier string, stats reconcile.Stats) {
	text, err := handler.insights.Generate(ctx, stats)
	handler.tracker.CompleteTask(taskIdentifier, text, err)
	finished, _ := handler.tracker.TaskSnapshot(taskIdentifier)
	handler.logger.Info(logMessageTaskFinished,
		zap.String(logFieldTaskID, taskIdentifier),
		zap.String(logFieldStatus, string(finished.Status)))
}

func (handler connectionHandler) insightStatus(ginContext *gin.Context) {
	snapshot, exists := handler.tracker.TaskSnapshot(ginContext.Param(taskIDParameterName))
	if !exists {
		respondError(ginContext, http.StatusNotFound, errorMessageTaskMissing)
		return
	}
	ginContext.JSON(http.StatusOK, snapshot)
}

// analyze loads both stored sequences and reconciles them, writing an error response on failure.
func (handler connectionHandler) analyze(ginContext *gin.Context) (reconcile.Result, bool) {
	ctx := ginContext.Request.Context()
	following, err := handler.store.Load(ctx, connections.DirectionFollowing)
	if err != nil {
		handler.storeFailure(ginContext, err)
		return reconcile.Result{}, false
	}
	followers, err := handler.store.Load(ctx, connections.DirectionFollowers)
	if err != nil {
		handler.storeFailure(ginContext, err)
		return reconcile.Result{}, false
	}
	return reconcile.Reconcile(following, followers), true
}

func (handler connectionHandler) replace(ginContext *gin.Context, direction connections.Direction, records []connections.Record) bool {
	if err := handler.store.Replace(ginContext.Request.Context(), direction, records); err != nil {
		handler.storeFailure(ginContext, err)
		return false
	}
	return true
}

func (handler connectionHandler) replaceAll(ginContext *gin.Context, sequences map[connections.Direction][]connections.Record) bool {
	if err := handler.store.ReplaceAll(ginContext.Request.Context(), sequences); err != nil {
		handler.storeFailure(ginContext, err)
		return false
	}
	return true
}

func (handler connectionHandler) storeFailure(ginContext *gin.Context, err error) {
	handler.logger.Error(logMessageStoreFailure, zap.Error(err))
	respondError(ginContext, http.StatusInternalServerError, errorMessageStorage)
}

func respondError(ginContext *gin.Context, status int, message string) {
	ginContext.JSON(status, map[string]string{errorResponseKey: message})
}
