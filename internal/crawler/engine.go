package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolhub-crawler/internal/audit"
	"github.com/JakeFAU/toolhub-crawler/internal/logging"
	"github.com/JakeFAU/toolhub-crawler/internal/metrics"
	"github.com/JakeFAU/toolhub-crawler/internal/progress"
	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

const tracerName = "github.com/JakeFAU/toolhub-crawler/internal/crawler"

// EngineConfig controls run behavior.
type EngineConfig struct {
	// DefaultLanguage is used for records without a usable language code.
	DefaultLanguage string
	// Actor is recorded as the author of every change a run makes.
	Actor string
	// Topic receives a run summary when a Publisher is configured.
	Topic string
	// ArchivePrefix is the blob path prefix for raw documents.
	ArchivePrefix string
	ContentType   string
}

// EngineDeps are the collaborators of an Engine. Blobs, Publisher, Progress
// and Audit are optional.
type EngineDeps struct {
	Fetcher    Fetcher
	Normalizer *toolinfo.Normalizer
	Reconciler *Reconciler
	Runs       RunStore
	Targets    TargetStore
	Blobs      BlobStore
	Hasher     Hasher
	Publisher  Publisher
	Progress   progress.Emitter
	Audit      audit.Recorder
	Clock      Clock
	IDs        IDGenerator
	Logger     *zap.Logger
}

// Engine runs crawls. Targets are processed one at a time in the order given
// and only one run executes at a time.
type Engine struct {
	deps   EngineDeps
	cfg    EngineConfig
	logger *zap.Logger
	tracer trace.Tracer
	mu     sync.Mutex
}

// NewEngine validates deps and fills config defaults.
func NewEngine(deps EngineDeps, cfg EngineConfig) (*Engine, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("engine requires a fetcher")
	case deps.Reconciler == nil:
		return nil, errors.New("engine requires a reconciler")
	case deps.Runs == nil:
		return nil, errors.New("engine requires a run store")
	case deps.Clock == nil:
		return nil, errors.New("engine requires a clock")
	case deps.IDs == nil:
		return nil, errors.New("engine requires an id generator")
	case deps.Blobs != nil && deps.Hasher == nil:
		return nil, errors.New("engine requires a hasher when archiving")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = toolinfo.NewNormalizer(nil, deps.Logger.Named("normalizer"))
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = toolinfo.DefaultLanguage
	}
	if cfg.Actor == "" {
		cfg.Actor = "crawler"
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "toolinfo"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// RunAll crawls every registered target in registration order.
func (e *Engine) RunAll(ctx context.Context) (RunSummary, error) {
	if e.deps.Targets == nil {
		return RunSummary{}, errors.New("engine has no target store")
	}
	targets, err := e.deps.Targets.ListTargets(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("list targets: %w", err)
	}
	return e.Run(ctx, targets)
}

// targetResult is a target outcome waiting for the end-of-run deletion sweep.
type targetResult struct {
	outcome    FetchOutcome
	candidates []string
	skipRecord bool
}

// Run crawls targets in order and returns the run summary. Per-target
// failures are folded into the outcomes; the only error returned is
// ErrRunInProgress or a failure to allocate a run ID.
func (e *Engine) Run(ctx context.Context, targets []Target) (RunSummary, error) {
	if !e.mu.TryLock() {
		return RunSummary{}, ErrRunInProgress
	}
	defer e.mu.Unlock()

	runID, err := e.deps.IDs.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("allocate run id: %w", err)
	}
	ctx, span := e.tracer.Start(ctx, "crawler.Run", trace.WithAttributes(
		attribute.String("crawl.run_id", runID),
		attribute.Int("crawl.targets", len(targets)),
	))
	defer span.End()

	logger := logging.ForRun(e.logger, runID)
	summary := RunSummary{RunID: runID, StartedAt: e.deps.Clock.Now()}
	changes := Audit{Actor: e.cfg.Actor, Comment: "crawl run " + runID}

	if err := e.deps.Runs.CreateRun(ctx, runID, summary.StartedAt); err != nil {
		logger.Error("create run record failed", zap.Error(err))
	}
	e.recordAudit(ctx, audit.ActionStart, runID)
	e.emit(progress.Event{RunID: runID, TS: summary.StartedAt, Stage: progress.StageRunStart})
	logger.Info("crawl run started", zap.Int("targets", len(targets)))

	claims := NewClaims()
	results := make([]targetResult, 0, len(targets))
	for _, target := range targets {
		res := e.crawlTarget(ctx, runID, claims, target, changes)
		results = append(results, res)
		e.emitTarget(runID, res.outcome)
	}

	// Persistence after this point must survive cancellation of the caller.
	finishCtx := context.WithoutCancel(ctx)
	total := make(map[string]struct{})
	for i := range results {
		res := &results[i]
		e.sweep(finishCtx, claims, res, changes, logger)
		tally(&summary, res.outcome, total)
		if !res.skipRecord {
			if err := e.deps.Runs.RecordOutcome(finishCtx, runID, res.outcome); err != nil {
				logger.Error("record outcome failed", zap.String("target", res.outcome.TargetURL), zap.Error(err))
			}
		}
		summary.Outcomes = append(summary.Outcomes, res.outcome)
	}
	summary.TotalTools = len(total)

	finished := e.deps.Clock.Now()
	summary.FinishedAt = &finished
	if err := e.deps.Runs.FinishRun(finishCtx, summary); err != nil {
		logger.Error("finish run record failed", zap.Error(err))
	}
	e.recordAudit(finishCtx, audit.ActionFinish, runID)

	invalid := summary.InvalidTargets()
	metrics.ObserveRun(invalid)
	span.SetAttributes(
		attribute.Int("crawl.new_tools", summary.NewTools),
		attribute.Int("crawl.updated_tools", summary.UpdatedTools),
		attribute.Int("crawl.deleted_tools", summary.DeletedTools),
		attribute.Int("crawl.invalid_targets", invalid),
	)
	e.emit(progress.Event{
		RunID:   runID,
		TS:      finished,
		Stage:   progress.StageRunDone,
		Created: summary.NewTools,
		Updated: summary.UpdatedTools,
		Deleted: summary.DeletedTools,
		Dur:     finished.Sub(summary.StartedAt),
	})
	e.publish(finishCtx, summary, logger)
	logger.Info("crawl run finished",
		zap.Int("new_tools", summary.NewTools),
		zap.Int("updated_tools", summary.UpdatedTools),
		zap.Int("total_tools", summary.TotalTools),
		zap.Int("deleted_tools", summary.DeletedTools),
		zap.Int("invalid_targets", invalid),
	)
	return summary, nil
}

func tally(summary *RunSummary, outcome FetchOutcome, total map[string]struct{}) {
	for _, a := range outcome.Actions {
		switch a.Kind {
		case ActionCreate:
			summary.NewTools++
		case ActionUpdate:
			summary.UpdatedTools++
		case ActionNoOp:
		default:
			continue
		}
		total[a.Name] = struct{}{}
	}
	summary.DeletedTools += len(outcome.Deleted)
}

func (e *Engine) crawlTarget(
	ctx context.Context,
	runID string,
	claims *Claims,
	target Target,
	changes Audit,
) (res targetResult) {
	ctx, span := e.tracer.Start(ctx, "crawler.Target", trace.WithAttributes(
		attribute.String("crawl.target", target.URL),
	))
	defer span.End()
	logger := logging.ForTarget(logging.ForRun(e.logger, runID), target.URL)
	res.outcome = FetchOutcome{TargetURL: target.URL}

	var expected []string
	loaded := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("target processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			res.outcome.Valid = false
			res.outcome.Error = joinErrors(res.outcome.Error, fmt.Errorf("panic: %v", r))
			res.outcome.Tools = mergeNames(res.outcome.Tools, expected)
			res.candidates = nil
			// Without the previous names an outcome would erase them.
			res.skipRecord = !loaded
			span.SetStatus(codes.Error, "panic")
		}
	}()

	expected, err := e.deps.Runs.ExpectedNames(ctx, target.URL)
	if err != nil {
		// Without the previous names an outcome would erase them, so none is stored.
		logger.Error("load expected names failed", zap.Error(err))
		res.outcome.Error = fmt.Sprintf("load expected names: %v", err)
		res.skipRecord = true
		span.SetStatus(codes.Error, "expected names unavailable")
		return res
	}
	loaded = true

	resp, err := e.deps.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		logger.Warn("fetch failed", zap.Error(err))
		res.outcome.StatusCode = resp.StatusCode
		res.outcome.Error = err.Error()
		res.outcome.Tools = mergeNames(nil, expected)
		metrics.ObserveFetch(target.URL, resp.StatusCode, 0, resp.Duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return res
	}
	res.outcome.StatusCode = resp.StatusCode
	res.outcome.Redirected = resp.Redirected
	res.outcome.ElapsedMs = resp.Duration.Milliseconds()
	metrics.ObserveFetch(target.URL, resp.StatusCode, len(resp.Body), resp.Duration)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if len(resp.Body) > 0 {
		res.outcome.ArchiveURI = e.archive(ctx, runID, resp.Body, logger)
	}
	if !resp.Valid {
		fetchErr := &FetchError{URL: target.URL, StatusCode: resp.StatusCode, Err: resp.ParseErr}
		res.outcome.Error = fetchErr.Error()
		logger.Info("target response not usable", zap.Error(fetchErr))
	}

	records := make([]toolinfo.Record, 0, len(resp.Records))
	for _, raw := range resp.Records {
		records = append(records, e.deps.Normalizer.Normalize(raw, e.cfg.DefaultLanguage))
	}
	res.outcome.Records = len(records)

	result := e.deps.Reconciler.Reconcile(ctx, claims, Observation{
		TargetURL:  target.URL,
		StatusCode: resp.StatusCode,
		Parsed:     resp.Valid,
		Expected:   expected,
		Records:    records,
	}, changes)

	res.outcome.Valid = result.Valid
	res.outcome.Actions = result.Actions
	res.outcome.Tools = append([]string(nil), result.Claimed...)
	if result.DeletionPermitted {
		res.candidates = result.StillExpected
	} else {
		res.outcome.Tools = mergeNames(res.outcome.Tools, result.StillExpected)
	}
	if len(result.Errors) > 0 {
		res.outcome.Error = joinErrors(res.outcome.Error, errors.Join(result.Errors...))
	}
	for _, a := range result.Actions {
		metrics.ObserveAction(string(a.Kind))
	}
	if !res.outcome.Valid {
		span.SetStatus(codes.Error, "target invalid")
	}
	logger.Debug("target reconciled",
		zap.Int("status_code", resp.StatusCode),
		zap.Bool("valid", res.outcome.Valid),
		zap.Int("records", len(records)),
		zap.Int("actions", len(result.Actions)),
		zap.Int("still_expected", len(result.StillExpected)),
	)
	return res
}

// sweep deletes a target's candidates once every target has claimed its
// names, so a tool moving between targets is never deleted.
func (e *Engine) sweep(ctx context.Context, claims *Claims, res *targetResult, changes Audit, logger *zap.Logger) {
	if len(res.candidates) == 0 {
		return
	}
	deleted, err := e.deps.Reconciler.Sweep(ctx, claims, res.candidates, changes)
	if err != nil {
		logger.Error("soft delete failed", zap.String("target", res.outcome.TargetURL), zap.Error(err))
		res.outcome.Valid = false
		res.outcome.Error = joinErrors(res.outcome.Error, err)
		var keep []string
		for _, name := range res.candidates {
			if _, claimed := claims.Owner(name); !claimed {
				keep = append(keep, name)
			}
		}
		res.outcome.Tools = mergeNames(res.outcome.Tools, keep)
		return
	}
	if len(deleted) > 0 {
		sort.Strings(deleted)
		res.outcome.Deleted = deleted
		metrics.ObserveDeleted(len(deleted))
		logger.Info("tools soft-deleted",
			zap.String("target", res.outcome.TargetURL),
			zap.Strings("tools", deleted),
		)
	}
}

func (e *Engine) archive(ctx context.Context, runID string, body []byte, logger *zap.Logger) string {
	if e.deps.Blobs == nil {
		return ""
	}
	sum, err := e.deps.Hasher.Hash(body)
	if err != nil {
		logger.Warn("hash body failed", zap.Error(err))
		return ""
	}
	path := fmt.Sprintf("%s/%s/%s.json", strings.Trim(e.cfg.ArchivePrefix, "/"), runID, sum)
	uri, err := e.deps.Blobs.PutObject(ctx, path, e.cfg.ContentType, bytes.NewReader(body))
	if err != nil {
		logger.Warn("archive body failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return uri
}

func (e *Engine) publish(ctx context.Context, summary RunSummary, logger *zap.Logger) {
	if e.cfg.Topic == "" || e.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":          summary.RunID,
		"started_at":      summary.StartedAt.Format(time.RFC3339),
		"finished_at":     summary.FinishedAt.Format(time.RFC3339),
		"new_tools":       summary.NewTools,
		"updated_tools":   summary.UpdatedTools,
		"total_tools":     summary.TotalTools,
		"deleted_tools":   summary.DeletedTools,
		"targets":         len(summary.Outcomes),
		"invalid_targets": summary.InvalidTargets(),
	}
	id, err := e.deps.Publisher.Publish(ctx, e.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish run summary failed", zap.String("topic", e.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("run summary published", zap.String("topic", e.cfg.Topic), zap.String("message_id", id))
}

func (e *Engine) recordAudit(ctx context.Context, action audit.Action, runID string) {
	err := e.deps.Audit.Record(ctx, audit.Entry{
		Kind:      audit.KindCrawlRun,
		Action:    action,
		Subject:   runID,
		Actor:     e.cfg.Actor,
		Timestamp: e.deps.Clock.Now(),
	})
	if err != nil {
		e.logger.Warn("audit record failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (e *Engine) emit(evt progress.Event) {
	if e.deps.Progress == nil {
		return
	}
	e.deps.Progress.Emit(evt)
}

func (e *Engine) emitTarget(runID string, outcome FetchOutcome) {
	var created, updated int
	for _, a := range outcome.Actions {
		switch a.Kind {
		case ActionCreate:
			created++
		case ActionUpdate:
			updated++
		}
	}
	e.emit(progress.Event{
		RunID:       runID,
		TS:          e.deps.Clock.Now(),
		Stage:       progress.StageTargetDone,
		Target:      outcome.TargetURL,
		Site:        metrics.SanitizeSite(outcome.TargetURL),
		StatusClass: progress.ClassifyStatus(outcome.StatusCode),
		Valid:       outcome.Valid,
		Records:     outcome.Records,
		Created:     created,
		Updated:     updated,
		Dur:         time.Duration(outcome.ElapsedMs) * time.Millisecond,
		Note:        outcome.Error,
	})
}

// mergeNames appends the names in extra missing from names.
func mergeNames(names, extra []string) []string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	for _, n := range extra {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names
}

func joinErrors(existing string, err error) string {
	if existing == "" {
		return err.Error()
	}
	return existing + "; " + err.Error()
}
