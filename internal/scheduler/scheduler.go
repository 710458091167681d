package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"program_catalog/internal/domain"
)

// Syncer runs one synchronization.
type Syncer interface {
	Run(ctx context.Context) (*domain.SyncReport, error)
}

// Scheduler re-triggers the sync on a cron spec, e.g. "@every 6h".
type Scheduler struct {
	cron       *cron.Cron
	syncer     Syncer
	spec       string
	runTimeout time.Duration
	logger     *slog.Logger

	wg sync.WaitGroup
}

func New(syncer Syncer, spec string, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		// A tick that lands while the previous run is still going is skipped.
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		syncer:     syncer,
		spec:       spec,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
	}
}

// Start registers the job, starts the cron loop and runs one sync right away.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runSync(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(ctx)
	}()

	return nil
}

// Stop halts the cron loop and waits for running syncs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	report, err := s.syncer.Run(syncCtx)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		s.logger.Info("sync skipped, another run in progress")
	case err != nil:
		s.logger.Error("sync failed", "error", err)
	default:
		s.logger.Info("scheduled sync finished",
			"state", report.State,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"programs", report.ProgramCount,
		)
	}
}
