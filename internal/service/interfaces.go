package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"program_catalog/internal/domain"
)

// Source is one external program provider.
type Source interface {
	ID() domain.DataSource
	Name() string
	Fetch(ctx context.Context) ([]domain.RawRecord, error)
	// Release drops connections and sessions acquired by Fetch.
	Release() error
}

type ProgramStore interface {
	Upsert(ctx context.Context, program *domain.Program) (domain.UpsertResult, error)
}

type SourceStateStore interface {
	Get(ctx context.Context, source domain.DataSource) (*domain.SourceState, error)
	Update(ctx context.Context, state *domain.SourceState) error
}

type Publisher interface {
	Publish(ctx context.Context, program *domain.Program, isNew bool) error
	Close() error
}

// RunGuard serializes runs across processes. Acquire fails with
// domain.ErrRunInProgress while another holder exists.
type RunGuard interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

type RunRecorder interface {
	Record(ctx context.Context, report *domain.SyncReport) error
}

type ReportCache interface {
	SaveReport(ctx context.Context, report *domain.SyncReport) error
	LastReport(ctx context.Context) (*domain.SyncReport, error)
}
