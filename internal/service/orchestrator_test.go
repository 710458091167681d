package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"program_catalog/internal/domain"
	"program_catalog/internal/service/mocks"
	"program_catalog/internal/storage/memory"
)

type OrchestratorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	store     *mocks.MockProgramStore
	publisher *mocks.MockPublisher
	guard     *mocks.MockRunGuard
	recorder  *mocks.MockRunRecorder
	cache     *mocks.MockReportCache

	now    time.Time
	logger *slog.Logger
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.store = mocks.NewMockProgramStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.guard = mocks.NewMockRunGuard(s.ctrl)
	s.recorder = mocks.NewMockRunRecorder(s.ctrl)
	s.cache = mocks.NewMockReportCache(s.ctrl)

	s.now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *OrchestratorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) newOrchestrator(sources []Source, opts ...Option) *Orchestrator {
	opts = append([]Option{WithClock(func() time.Time { return s.now })}, opts...)
	return NewOrchestrator(sources, s.store, s.logger, opts...)
}

// source returns a mock that expects exactly one Fetch and one Release.
func (s *OrchestratorTestSuite) source(id domain.DataSource, records []domain.RawRecord, err error) *mocks.MockSource {
	src := mocks.NewMockSource(s.ctrl)
	src.EXPECT().ID().Return(id).AnyTimes()
	src.EXPECT().Name().Return(string(id)).AnyTimes()
	src.EXPECT().Fetch(gomock.Any()).Return(records, err).Times(1)
	src.EXPECT().Release().Return(nil).Times(1)
	return src
}

func (s *OrchestratorTestSuite) upsertInserts() {
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *domain.Program) (domain.UpsertResult, error) {
			return domain.UpsertResult{ID: uuid.New(), Inserted: true}, nil
		},
	).AnyTimes()
}

func records(prefix string, n int) []domain.RawRecord {
	out := make([]domain.RawRecord, n)
	for i := range out {
		out[i] = domain.RawRecord{
			ExternalID: fmt.Sprintf("%s-%d", prefix, i),
			Title:      fmt.Sprintf("%s program %d", prefix, i),
		}
	}
	return out
}

func (s *OrchestratorTestSuite) TestRun_AllSucceed() {
	ctx := context.Background()

	bizinfo := s.source(domain.SourceBizinfo, records("b", 2), nil)
	kosmes := s.source(domain.SourceKosmes, records("k", 1), nil)

	var mu sync.Mutex
	var stamped []time.Time
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p *domain.Program) (domain.UpsertResult, error) {
			mu.Lock()
			stamped = append(stamped, p.LastSyncedAt)
			mu.Unlock()
			return domain.UpsertResult{ID: uuid.New(), Inserted: p.DataSource == domain.SourceBizinfo}, nil
		},
	).Times(3)

	report, err := s.newOrchestrator([]Source{kosmes, bizinfo}).Run(ctx)

	s.Require().NoError(err)
	s.Equal(2, report.Total)
	s.Equal(2, report.Succeeded)
	s.Equal(0, report.Failed)
	s.Equal(3, report.ProgramCount)
	s.Equal(domain.RunCompleted, report.State)
	s.NotEqual(uuid.Nil, report.RunID)
	s.Equal(s.now, report.StartedAt)

	s.Require().Len(report.Results, 2)
	s.Equal(domain.SourceBizinfo, report.Results[0].Source)
	s.Equal(2, report.Results[0].Inserted)
	s.Equal(1, report.Results[1].Updated)

	for _, ts := range stamped {
		s.Equal(s.now, ts)
	}
}

func (s *OrchestratorTestSuite) TestRun_PartialFailure() {
	ctx := context.Background()

	var mu sync.Mutex
	persisted := map[domain.DataSource]int{}
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p *domain.Program) (domain.UpsertResult, error) {
			mu.Lock()
			persisted[p.DataSource]++
			mu.Unlock()
			return domain.UpsertResult{ID: uuid.New(), Inserted: true}, nil
		},
	).Times(4)

	sources := []Source{
		s.source(domain.SourceBizinfo, records("b", 1), nil),
		s.source(domain.SourceKStartup, nil, fmt.Errorf("fetch page 1: %w", domain.ErrSourceUnavailable)),
		s.source(domain.SourceKosmes, records("k", 1), nil),
		s.source(domain.SourceSemas, nil, fmt.Errorf("token refused: %w", domain.ErrRateLimited)),
		s.source(domain.SourceMSS, records("m", 1), nil),
		s.source(domain.SourceKised, records("s", 1), nil),
	}

	report, err := s.newOrchestrator(sources).Run(ctx)

	s.Require().NoError(err)
	s.Equal(6, report.Total)
	s.Equal(4, report.Succeeded)
	s.Equal(2, report.Failed)
	s.Equal(domain.RunPartiallyFailed, report.State)

	failed := map[domain.DataSource]string{}
	for _, r := range report.Results {
		if r.Status == domain.StatusFailed {
			failed[r.Source] = r.Error
		}
	}
	s.Len(failed, 2)
	s.Contains(failed[domain.SourceKStartup], "source unavailable")
	s.Contains(failed[domain.SourceSemas], "rate limited")

	s.Equal(map[domain.DataSource]int{
		domain.SourceBizinfo: 1,
		domain.SourceKosmes:  1,
		domain.SourceMSS:     1,
		domain.SourceKised:   1,
	}, persisted)
	s.Equal(4, report.ProgramCount)
}

func (s *OrchestratorTestSuite) TestRun_SoftErrorsAreContained() {
	ctx := context.Background()

	raw := records("b", 10)
	raw[4].Title = "   "

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{ID: uuid.New(), Inserted: true}, nil).
		Times(9)

	report, err := s.newOrchestrator([]Source{s.source(domain.SourceBizinfo, raw, nil)}).Run(ctx)

	s.Require().NoError(err)
	s.Equal(1, report.Succeeded)
	s.Equal(9, report.ProgramCount)
	s.Equal(1, report.SoftErrors)
	s.Equal(domain.StatusSucceeded, report.Results[0].Status)
	s.Equal(10, report.Results[0].Fetched)
}

func (s *OrchestratorTestSuite) TestRun_UpsertErrorIsSoft() {
	ctx := context.Background()

	gomock.InOrder(
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(domain.UpsertResult{}, errors.New("value too long")),
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(domain.UpsertResult{ID: uuid.New(), Inserted: true}, nil),
	)

	report, err := s.newOrchestrator([]Source{s.source(domain.SourceMSS, records("m", 2), nil)}).Run(ctx)

	s.Require().NoError(err)
	s.Equal(domain.RunCompleted, report.State)
	s.Equal(1, report.ProgramCount)
	s.Equal(1, report.SoftErrors)
}

func (s *OrchestratorTestSuite) TestRun_PanicBecomesSourceFailure() {
	ctx := context.Background()
	s.upsertInserts()

	panicky := mocks.NewMockSource(s.ctrl)
	panicky.EXPECT().ID().Return(domain.SourceKised).AnyTimes()
	panicky.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) ([]domain.RawRecord, error) {
		panic("selector exploded")
	})
	panicky.EXPECT().Release().Return(nil).Times(1)

	report, err := s.newOrchestrator([]Source{panicky, s.source(domain.SourceMSS, records("m", 1), nil)}).Run(ctx)

	s.Require().NoError(err)
	s.Equal(1, report.Succeeded)
	s.Equal(1, report.Failed)

	kised := report.Results[0]
	s.Equal(domain.SourceKised, kised.Source)
	s.Equal(domain.StatusFailed, kised.Status)
	s.Contains(kised.Error, "selector exploded")
}

func (s *OrchestratorTestSuite) TestRun_StoreUnavailableStopsRemainingUpserts() {
	ctx := context.Background()

	var calls atomic.Int32
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *domain.Program) (domain.UpsertResult, error) {
			calls.Add(1)
			return domain.UpsertResult{}, fmt.Errorf("upsert program: %w", domain.ErrStoreUnavailable)
		},
	).MinTimes(1).MaxTimes(2)

	sources := []Source{
		s.source(domain.SourceBizinfo, records("b", 5), nil),
		s.source(domain.SourceKosmes, records("k", 5), nil),
		s.source(domain.SourceSemas, nil, nil),
	}

	report, err := s.newOrchestrator(sources).Run(ctx)

	s.Require().NoError(err)
	s.Equal(domain.RunPartiallyFailed, report.State)
	s.Equal(2, report.Failed)
	s.Equal(1, report.Succeeded)
	s.LessOrEqual(calls.Load(), int32(2))
	for _, r := range report.Results {
		if r.Source == domain.SourceSemas {
			s.Equal(domain.StatusSucceeded, r.Status)
			continue
		}
		s.Contains(r.Error, "store unavailable")
	}
}

func (s *OrchestratorTestSuite) TestRun_SourceTimeout() {
	ctx := context.Background()

	slow := mocks.NewMockSource(s.ctrl)
	slow.EXPECT().ID().Return(domain.SourceSemas).AnyTimes()
	slow.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]domain.RawRecord, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, ctx.Err())
	})
	slow.EXPECT().Release().Return(nil).Times(1)

	report, err := s.newOrchestrator([]Source{slow}, WithSourceTimeout(20*time.Millisecond)).Run(ctx)

	s.Require().NoError(err)
	s.Equal(1, report.Failed)
	s.Contains(report.Results[0].Error, "deadline exceeded")
}

func (s *OrchestratorTestSuite) TestRun_NoSourcesIsFatal() {
	report, err := s.newOrchestrator(nil).Run(context.Background())

	s.Nil(report)
	s.ErrorIs(err, domain.ErrConfigMissing)
	s.Equal(domain.RunNotStarted, s.newOrchestrator(nil).Status().State)
}

func (s *OrchestratorTestSuite) TestRun_NilStoreIsFatal() {
	src := mocks.NewMockSource(s.ctrl)

	report, err := NewOrchestrator([]Source{src}, nil, s.logger).Run(context.Background())

	s.Nil(report)
	s.ErrorIs(err, domain.ErrConfigMissing)
}

func (s *OrchestratorTestSuite) TestRun_GuardHeld() {
	ctx := context.Background()

	src := mocks.NewMockSource(s.ctrl)
	s.guard.EXPECT().Acquire(gomock.Any()).Return(nil, domain.ErrRunInProgress)

	o := s.newOrchestrator([]Source{src}, WithRunGuard(s.guard))
	report, err := o.Run(ctx)

	s.Nil(report)
	s.ErrorIs(err, domain.ErrRunInProgress)
	s.Equal(domain.RunNotStarted, o.Status().State)
}

func (s *OrchestratorTestSuite) TestRun_GuardReleasedAfterRun() {
	ctx := context.Background()
	s.upsertInserts()

	released := 0
	s.guard.EXPECT().Acquire(gomock.Any()).Return(func(context.Context) error {
		released++
		return nil
	}, nil)

	_, err := s.newOrchestrator(
		[]Source{s.source(domain.SourceMSS, records("m", 1), nil)},
		WithRunGuard(s.guard),
	).Run(ctx)

	s.Require().NoError(err)
	s.Equal(1, released)
}

func (s *OrchestratorTestSuite) TestRun_PublishesAndPersists() {
	ctx := context.Background()
	s.upsertInserts()

	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil).Times(2)
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("db down"))
	s.cache.EXPECT().SaveReport(gomock.Any(), gomock.Any()).Return(nil)

	o := s.newOrchestrator(
		[]Source{s.source(domain.SourceKStartup, records("k", 2), nil)},
		WithPublisher(s.publisher),
		WithRunRecorder(s.recorder),
		WithReportCache(s.cache),
	)
	report, err := o.Run(ctx)

	s.Require().NoError(err)
	s.Equal(2, report.Results[0].Published)

	st := o.Status()
	s.Equal(domain.RunCompleted, st.State)
	s.Same(report, st.LastReport)

	last, err := o.LastReport(ctx)
	s.NoError(err)
	s.Same(report, last)
}

func (s *OrchestratorTestSuite) TestLastReport_FallsBackToCache() {
	cached := &domain.SyncReport{Total: 6}
	s.cache.EXPECT().LastReport(gomock.Any()).Return(cached, nil)

	o := s.newOrchestrator(nil, WithReportCache(s.cache))
	got, err := o.LastReport(context.Background())

	s.NoError(err)
	s.Same(cached, got)
}

func (s *OrchestratorTestSuite) TestLastReport_NothingYet() {
	_, err := s.newOrchestrator(nil).LastReport(context.Background())
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *OrchestratorTestSuite) TestRun_UpdatesSourceState() {
	ctx := context.Background()
	s.upsertInserts()
	states := memory.NewSourceStateStore()

	o := s.newOrchestrator([]Source{
		s.source(domain.SourceBizinfo, records("b", 3), nil),
		s.source(domain.SourceKosmes, nil, fmt.Errorf("%w: authentication failed", domain.ErrSourceUnavailable)),
	}, WithSourceStates(states))

	_, err := o.Run(ctx)
	s.Require().NoError(err)

	biz, err := states.Get(ctx, domain.SourceBizinfo)
	s.Require().NoError(err)
	s.Equal(domain.StatusSucceeded, biz.LastStatus)
	s.Equal(int64(3), biz.TotalSynced)
	s.Equal(s.now, biz.LastSyncedAt)

	kosmes, err := states.Get(ctx, domain.SourceKosmes)
	s.Require().NoError(err)
	s.Equal(domain.StatusFailed, kosmes.LastStatus)
	s.Contains(kosmes.LastError, "authentication failed")
}

// stubSource is a hand-rolled Source for end-to-end runs against a real store.
type stubSource struct {
	id       domain.DataSource
	records  []domain.RawRecord
	err      error
	released atomic.Int32
}

func (s *stubSource) ID() domain.DataSource { return s.id }
func (s *stubSource) Name() string          { return string(s.id) }

func (s *stubSource) Fetch(context.Context) ([]domain.RawRecord, error) {
	return s.records, s.err
}

func (s *stubSource) Release() error {
	s.released.Add(1)
	return nil
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProgramStore()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	stubs := []*stubSource{
		{id: domain.SourceBizinfo, records: records("a", 3)},
		{id: domain.SourceKStartup, err: fmt.Errorf("%w: unexpected status: 503", domain.ErrSourceUnavailable)},
		{id: domain.SourceKosmes, records: records("c", 1)},
		{id: domain.SourceSemas, records: records("d", 1)},
		{id: domain.SourceMSS, records: records("e", 1)},
		{id: domain.SourceKised, records: records("f", 1)},
	}
	sources := make([]Source, len(stubs))
	for i, st := range stubs {
		sources[i] = st
	}

	o := NewOrchestrator(sources, store, logger)

	report, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 5, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 7, report.ProgramCount)

	n, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	for _, r := range report.Results {
		if r.Source == domain.SourceKStartup {
			assert.Equal(t, domain.StatusFailed, r.Status)
			assert.NotEmpty(t, r.Error)
		}
	}

	for _, st := range stubs {
		assert.Equal(t, int32(1), st.released.Load(), "%s release count", st.id)
	}

	// A second run over the same data updates instead of inserting.
	again, err := o.Run(ctx)
	require.NoError(t, err)

	n, err = store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	for _, r := range again.Results {
		assert.Zero(t, r.Inserted, "%s inserted on rerun", r.Source)
	}
}
