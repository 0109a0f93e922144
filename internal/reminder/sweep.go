package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Dan9191/cobranca-service/internal/config"
	"github.com/Dan9191/cobranca-service/internal/models"
	"github.com/Dan9191/cobranca-service/internal/notify"
	"github.com/Dan9191/cobranca-service/internal/schedule"
)

// Store is the read side the sweep needs plus its own reminder log
type Store interface {
	ListUnpaidDue(ctx context.Context) ([]models.DueInstallment, error)
	HasReminder(ctx context.Context, installmentID int64, day time.Time) (bool, error)
	RecordReminder(ctx context.Context, entry models.ReminderLog) error
}

// Report summarizes one sweep
type Report struct {
	Today        string `json:"today"`
	Scanned      int    `json:"scanned"`
	Due          int    `json:"due"`
	Sent         int    `json:"sent"`
	Skipped      int    `json:"skipped"`
	Deduplicated int    `json:"deduplicated"`
	Failed       int    `json:"failed"`
}

// Sweeper scans every unpaid installment and sends reminders for those in the
// reminder window. It never changes installment state.
type Sweeper struct {
	store       Store
	notifier    notify.Notifier
	log         *logrus.Logger
	loc         *time.Location
	daysBefore  int
	dedup       bool
	concurrency int
	now         func() time.Time
}

// Option customizes a Sweeper
type Option func(*Sweeper)

// WithClock replaces the wall clock used to decide "today"
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper configured from cfg
func NewSweeper(store Store, notifier notify.Notifier, log *logrus.Logger, cfg *config.Config, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:       store,
		notifier:    notifier,
		log:         log,
		loc:         cfg.Location(),
		daysBefore:  cfg.ReminderDaysBefore,
		dedup:       cfg.ReminderDedup,
		concurrency: cfg.SweepConcurrency,
		now:         time.Now,
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sweep. Only a failure to read the installments is returned;
// failures of single reminders are logged and counted in the report.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	today := schedule.DateOnly(s.now().In(s.loc))
	report := Report{Today: schedule.FormatDate(today)}

	items, err := s.store.ListUnpaidDue(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list unpaid installments: %w", err)
	}
	report.Scanned = len(items)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}
	g.SetLimit(s.concurrency)

	for _, item := range items {
		kind, offset, ok := Classify(item.DueDate, today, s.daysBefore)
		if !ok {
			continue
		}
		report.Due++

		g.Go(func() error {
			s.remind(ctx, item, kind, offset, today, &report, count)
			return nil
		})
	}
	_ = g.Wait()

	s.log.WithFields(logrus.Fields{
		"today":        report.Today,
		"scanned":      report.Scanned,
		"due":          report.Due,
		"sent":         report.Sent,
		"skipped":      report.Skipped,
		"deduplicated": report.Deduplicated,
		"failed":       report.Failed,
	}).Info("Reminder sweep complete")
	return report, nil
}

// remind handles a single installment; nothing it does can abort the sweep
func (s *Sweeper) remind(ctx context.Context, item models.DueInstallment, kind models.ReminderKind, offset int,
	today time.Time, report *Report, count func(*int)) {
	entry := s.log.WithFields(logrus.Fields{
		"installment_id": item.ID,
		"charge_id":      item.ChargeID,
		"kind":           kind,
		"offset_days":    offset,
	})
	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("Reminder panicked: %v", r)
			count(&report.Failed)
		}
	}()

	if item.ContactErr != nil {
		entry.WithError(item.ContactErr).Error("Failed to read client contact")
		count(&report.Failed)
		return
	}

	if s.dedup {
		seen, err := s.store.HasReminder(ctx, item.ID, today)
		if err != nil {
			entry.WithError(err).Error("Failed to check reminder log")
			count(&report.Failed)
			return
		}
		if seen {
			count(&report.Deduplicated)
			return
		}
	}

	r := models.Reminder{
		InstallmentID: item.ID,
		ChargeID:      item.ChargeID,
		Number:        item.Number,
		ClientName:    item.ClientName,
		ClientEmail:   item.ClientEmail,
		ClientPhone:   item.ClientPhone,
		Amount:        item.Amount,
		DueDate:       item.DueDate,
		Kind:          kind,
		OffsetDays:    offset,
		Message:       Message(kind, offset, item.ClientName, item.Number, item.Amount, item.DueDate),
	}

	err := s.notifier.Notify(ctx, r)
	switch {
	case errors.Is(err, notify.ErrNoDestination):
		entry.Warn("No contact channel for reminder")
		count(&report.Skipped)
		return
	case err != nil:
		entry.WithError(err).Error("Failed to send reminder")
		count(&report.Failed)
		return
	}
	count(&report.Sent)

	if s.dedup {
		err := s.store.RecordReminder(ctx, models.ReminderLog{
			InstallmentID: item.ID,
			SentOn:        today,
			Kind:          string(kind),
			OffsetDays:    offset,
		})
		if err != nil {
			entry.WithError(err).Error("Failed to record reminder")
		}
	}
}
