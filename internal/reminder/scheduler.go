package reminder

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/config"
)

// Runner is anything that can perform one sweep
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler triggers the sweep on a cron schedule
type Scheduler struct {
	cron       *cron.Cron
	job        cron.Job
	runner     Runner
	log        *logrus.Logger
	runOnStart bool

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler registers the sweep under cfg.SweepSchedule. Overlapping runs
// are skipped and a panicking run is recovered.
func NewScheduler(runner Runner, log *logrus.Logger, cfg *config.Config) (*Scheduler, error) {
	logger := cron.PrintfLogger(log)
	s := &Scheduler{
		runner:     runner,
		log:        log,
		runOnStart: cfg.SweepOnStart,
		cron: cron.New(
			cron.WithLocation(cfg.Location()),
			cron.WithLogger(logger),
		),
	}
	// the on-start run shares the chain so it never overlaps a scheduled one
	s.job = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(s.runOnce))
	if _, err := s.cron.AddJob(cfg.SweepSchedule, s.job); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	return s, nil
}

// Start begins scheduling and, when configured, runs a sweep right away
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cron.Start()
	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.job.Run()
		}()
	}

	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.log.Infof("Reminder scheduler started, next sweep at %s", entries[0].Next)
	}
}

// Stop cancels any running sweep and waits for it to return or for ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reminder scheduler did not stop: %w", ctx.Err())
	}
}

func (s *Scheduler) runOnce() {
	report, err := s.runner.Run(s.ctx)
	if err != nil {
		s.log.WithError(err).Error("Reminder sweep failed")
		return
	}
	s.log.Debugf("Reminder sweep for %s sent %d of %d", report.Today, report.Sent, report.Due)
}
