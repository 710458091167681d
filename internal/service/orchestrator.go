package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"program_catalog/internal/domain"
	"program_catalog/internal/normalizer"
)

const defaultSourceTimeout = 2 * time.Minute

// Orchestrator runs every configured source concurrently and folds the
// outcomes into one SyncReport. A failing source never cancels its siblings.
type Orchestrator struct {
	sources   []Source
	store     ProgramStore
	states    SourceStateStore
	publisher Publisher
	guard     RunGuard
	recorder  RunRecorder
	cache     ReportCache
	logger    *slog.Logger

	now           func() time.Time
	sourceTimeout time.Duration

	mu    sync.Mutex
	state domain.RunState
	last  *domain.SyncReport
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithSourceTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.sourceTimeout = d
		}
	}
}

func WithSourceStates(states SourceStateStore) Option {
	return func(o *Orchestrator) { o.states = states }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithRunGuard(g RunGuard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

func WithRunRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithReportCache(c ReportCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

func NewOrchestrator(sources []Source, store ProgramStore, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sources:       sources,
		store:         store,
		logger:        logger.With("component", "orchestrator"),
		now:           time.Now,
		sourceTimeout: defaultSourceTimeout,
		state:         domain.RunNotStarted,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status is the orchestrator's view of the latest run.
type Status struct {
	State      domain.RunState    `json:"state"`
	LastReport *domain.SyncReport `json:"lastReport,omitempty"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{State: o.state, LastReport: o.last}
}

type reportReader interface {
	LastReport(ctx context.Context) (*domain.SyncReport, error)
}

// LastReport returns the latest report held in memory. Before this process
// completes a run it falls back to the report cache, then to the run recorder
// when that can read history.
func (o *Orchestrator) LastReport(ctx context.Context) (*domain.SyncReport, error) {
	if st := o.Status(); st.LastReport != nil {
		return st.LastReport, nil
	}

	err := domain.ErrNotFound
	for _, candidate := range []any{o.cache, o.recorder} {
		reader, ok := candidate.(reportReader)
		if !ok {
			continue
		}
		var report *domain.SyncReport
		if report, err = reader.LastReport(ctx); err == nil {
			return report, nil
		}
	}
	return nil, err
}

// Run performs one full sync. It returns an error only when the run could
// not start; source failures are reported inside the SyncReport.
func (o *Orchestrator) Run(ctx context.Context) (*domain.SyncReport, error) {
	if len(o.sources) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", domain.ErrConfigMissing)
	}
	if o.store == nil {
		return nil, fmt.Errorf("%w: no program store configured", domain.ErrConfigMissing)
	}

	prev, ok := o.begin()
	if !ok {
		return nil, domain.ErrRunInProgress
	}

	if o.guard != nil {
		release, err := o.guard.Acquire(ctx)
		if err != nil {
			o.abort(prev)
			return nil, fmt.Errorf("acquire run guard: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				o.logger.Warn("failed to release run guard", "error", err)
			}
		}()
	}

	runID := uuid.New()
	logger := o.logger.With("run_id", runID)
	startedAt := o.now()

	logger.Info("starting sync run", "sources", len(o.sources))

	results := o.fanOut(ctx, logger)

	report := Aggregate(results)
	report.RunID = runID
	report.StartedAt = startedAt
	report.FinishedAt = o.now()

	o.finish(report)

	logger.Info("sync run finished",
		"state", report.State,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"programs", report.ProgramCount,
		"soft_errors", report.SoftErrors,
		"duration", report.FinishedAt.Sub(startedAt),
	)

	o.persist(ctx, report, logger)

	return report, nil
}

func (o *Orchestrator) fanOut(ctx context.Context, logger *slog.Logger) []domain.SourceResult {
	defer o.releaseSources(logger)

	results := make([]domain.SourceResult, len(o.sources))
	var storeDown atomic.Bool

	// Every goroutine returns nil so no sibling is ever cancelled.
	var g errgroup.Group
	for i, src := range o.sources {
		g.Go(func() error {
			results[i] = o.syncSource(ctx, src, &storeDown, logger)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) syncSource(ctx context.Context, src Source, storeDown *atomic.Bool, logger *slog.Logger) (res domain.SourceResult) {
	id := src.ID()
	logger = logger.With("source", id)
	started := o.now()
	res.Source = id

	defer func() {
		if r := recover(); r != nil {
			logger.Error("source panicked", "panic", r)
			res = failResult(res, fmt.Errorf("%w: panic: %v", domain.ErrSourceUnavailable, r))
		}
		res.DurationMs = o.now().Sub(started).Milliseconds()
		o.recordSourceState(ctx, res, logger)
	}()

	sourceCtx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
	defer cancel()

	raw, err := src.Fetch(sourceCtx)
	if err != nil {
		logger.Error("fetch failed", "error", err)
		return failResult(res, err)
	}
	res.Fetched = len(raw)

	programs, softErrs := normalizer.NormalizeBatch(raw, id)
	for _, e := range softErrs {
		logger.Warn("skipped record", "error", e)
	}
	res.SoftErrors = len(softErrs)

	for i := range programs {
		if storeDown.Load() {
			return failResult(res, fmt.Errorf("%w: skipped after earlier store failure", domain.ErrStoreUnavailable))
		}
		if err := sourceCtx.Err(); err != nil {
			return failResult(res, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err))
		}

		program := &programs[i]
		program.LastSyncedAt = o.now()

		result, err := o.store.Upsert(sourceCtx, program)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				storeDown.Store(true)
				logger.Error("store unavailable", "error", err)
				return failResult(res, err)
			}
			res.SoftErrors++
			logger.Warn("upsert failed", "source_api_id", program.SourceAPIID, "error", err)
			continue
		}

		program.ID = result.ID
		if result.Inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
		res.Count++

		o.publish(sourceCtx, program, result.Inserted, &res, logger)
	}

	res.Status = domain.StatusSucceeded
	logger.Info("source synced",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"soft_errors", res.SoftErrors,
	)
	return res
}

func (o *Orchestrator) publish(ctx context.Context, program *domain.Program, isNew bool, res *domain.SourceResult, logger *slog.Logger) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, program, isNew); err != nil {
		logger.Warn("failed to publish program", "source_api_id", program.SourceAPIID, "error", err)
		return
	}
	res.Published++
}

// failResult keeps the counts of programs already written before the failure.
func failResult(res domain.SourceResult, err error) domain.SourceResult {
	res.Status = domain.StatusFailed
	res.Error = err.Error()
	return res
}

func (o *Orchestrator) releaseSources(logger *slog.Logger) {
	for _, src := range o.sources {
		if err := src.Release(); err != nil {
			logger.Warn("failed to release source", "source", src.ID(), "error", err)
		}
	}
}

func (o *Orchestrator) recordSourceState(ctx context.Context, res domain.SourceResult, logger *slog.Logger) {
	if o.states == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	state, err := o.states.Get(ctx, res.Source)
	if err != nil {
		logger.Warn("failed to load source state", "error", err)
		return
	}

	state.DataSource = res.Source
	state.LastSyncedAt = o.now()
	state.LastStatus = res.Status
	state.LastError = res.Error
	state.TotalSynced += int64(res.Count)

	if err := o.states.Update(ctx, state); err != nil {
		logger.Warn("failed to update source state", "error", err)
	}
}

func (o *Orchestrator) persist(ctx context.Context, report *domain.SyncReport, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	if o.recorder != nil {
		if err := o.recorder.Record(ctx, report); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}
	if o.cache != nil {
		if err := o.cache.SaveReport(ctx, report); err != nil {
			logger.Warn("failed to cache report", "error", err)
		}
	}
}

func (o *Orchestrator) begin() (domain.RunState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == domain.RunRunning {
		return o.state, false
	}
	prev := o.state
	o.state = domain.RunRunning
	return prev, true
}

func (o *Orchestrator) abort(prev domain.RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = prev
}

func (o *Orchestrator) finish(report *domain.SyncReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = report.State
	o.last = report
}
