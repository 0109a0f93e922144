package reminder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/cobranca-service/internal/reminder"
)

type runnerFunc func(ctx context.Context) (reminder.Report, error)

func (f runnerFunc) Run(ctx context.Context) (reminder.Report, error) { return f(ctx) }

func TestScheduler_RunsOnStart(t *testing.T) {
	calls := make(chan struct{}, 4)
	cfg := sweepConfig(false)
	cfg.SweepOnStart = true

	s, err := reminder.NewScheduler(runnerFunc(func(context.Context) (reminder.Report, error) {
		calls <- struct{}{}
		return reminder.Report{}, nil
	}), quietLogger(), cfg)
	require.NoError(t, err)

	s.Start()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run on start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
	assert.NoError(t, s.Stop(ctx), "stopping twice is a no-op")
}

func TestScheduler_StopCancelsRunningSweep(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	cfg := sweepConfig(false)
	cfg.SweepOnStart = true

	s, err := reminder.NewScheduler(runnerFunc(func(ctx context.Context) (reminder.Report, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return reminder.Report{}, ctx.Err()
	}), quietLogger(), cfg)
	require.NoError(t, err)

	s.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case <-cancelled:
	default:
		t.Fatal("running sweep was not cancelled before Stop returned")
	}
}

func TestScheduler_NoRunOnStart(t *testing.T) {
	calls := make(chan struct{}, 1)
	s, err := reminder.NewScheduler(runnerFunc(func(context.Context) (reminder.Report, error) {
		calls <- struct{}{}
		return reminder.Report{}, nil
	}), quietLogger(), sweepConfig(false))
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Len(t, calls, 0)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	cfg := sweepConfig(false)
	cfg.SweepSchedule = "every tuesday"
	_, err := reminder.NewScheduler(runnerFunc(func(context.Context) (reminder.Report, error) {
		return reminder.Report{}, nil
	}), quietLogger(), cfg)
	assert.Error(t, err)
}
