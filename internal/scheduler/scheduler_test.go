package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"program_catalog/internal/domain"
)

type countingSyncer struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (c *countingSyncer) Run(ctx context.Context) (*domain.SyncReport, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		c.deadline.Store(true)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &domain.SyncReport{State: domain.RunCompleted}, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestScheduler_RunsImmediately(t *testing.T) {
	syncer := &countingSyncer{}
	s := New(syncer, "@every 1h", time.Minute, discard)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	s.Stop()

	assert.True(t, syncer.deadline.Load())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	syncer := &countingSyncer{err: domain.ErrRunInProgress}
	s := New(syncer, "@every 1s", time.Minute, discard)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return syncer.calls.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New(&countingSyncer{}, "every tuesday", time.Minute, discard)

	err := s.Start(context.Background())
	assert.Error(t, err)
}

func TestScheduler_CancelledContextSkipsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	syncer := &countingSyncer{}
	s := New(syncer, "@every 1h", time.Minute, discard)
	require.NoError(t, s.Start(ctx))
	s.Stop()

	assert.Equal(t, int32(0), syncer.calls.Load())
}
