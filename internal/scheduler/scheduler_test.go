package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("0 0 1 * * *", &countingJob{name: "a"}))
	assert.Error(t, s.AddJob("0 0 1 * * *", &countingJob{name: "a"}), "duplicate names are rejected")
	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "b"}))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "0 0 1 * * *", jobs[0].Schedule)
	assert.Nil(t, jobs[0].LastRun)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.AddJob("@daily", ok))
	require.NoError(t, s.AddJob("@daily", failing))

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	assert.EqualError(t, s.RunNow(context.Background(), "failing"), "boom")
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), domain.ErrNotFound)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "failing", jobs[0].Name)
	assert.Equal(t, "boom", jobs[0].LastError)
	assert.NotNil(t, jobs[1].LastRun)
	assert.Empty(t, jobs[1].LastError)
	assert.EqualValues(t, 1, ok.runs.Load())
}

func TestScheduler_RejectsConcurrentRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(zerolog.Nop())
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob("@daily", job))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), domain.ErrConflict)
	assert.True(t, s.Jobs()[0].Running)

	close(job.block)
	require.NoError(t, <-done)
}

func TestScheduler_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	require.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
}

type fakeOverdue struct{ n int }

func (f fakeOverdue) MarkOverdue(context.Context) (int, error) { return f.n, nil }

type fakeReconciler struct{ err error }

func (f fakeReconciler) Reconcile(context.Context) (int, error) { return 1, f.err }

type fakeCleaner struct{ retention time.Duration }

func (f *fakeCleaner) CleanupSessions(_ context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return 2, nil
}

func TestJobs(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	overdue := NewMarkOverdueInstallmentsJob(fakeOverdue{n: 3}, log)
	assert.Equal(t, "mark_overdue_installments", overdue.Name())
	assert.NoError(t, overdue.Run(ctx))

	reconcile := NewReconcileBudgetsJob(fakeReconciler{err: errors.New("locked")}, log)
	assert.Equal(t, "reconcile_budgets", reconcile.Name())
	assert.EqualError(t, reconcile.Run(ctx), "locked")

	cleaner := &fakeCleaner{}
	cleanup := NewCleanupSessionsJob(cleaner, 48*time.Hour, log)
	assert.Equal(t, "cleanup_sessions", cleanup.Name())
	assert.NoError(t, cleanup.Run(ctx))
	assert.Equal(t, 48*time.Hour, cleaner.retention)
}
