// Command sweep runs a single reminder sweep and exits. It suits an external
// scheduler such as a system cron entry or a Kubernetes CronJob.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/config"
	"github.com/Dan9191/cobranca-service/internal/notify"
	"github.com/Dan9191/cobranca-service/internal/reminder"
	"github.com/Dan9191/cobranca-service/internal/repository"
	"github.com/Dan9191/cobranca-service/internal/utils"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if err := run(cfg, logger); err != nil {
		logger.Errorf("Reminder sweep failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		return err
	}
	defer db.Close()

	sealer, err := utils.NewSealer(cfg.ContactEncryptionKey)
	if err != nil {
		return err
	}

	notifier, err := notify.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	sweeper := reminder.NewSweeper(repository.NewRepository(db, sealer), notifier, logger, cfg)
	report, err := sweeper.Run(ctx)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		logger.Warnf("%d reminder(s) failed", report.Failed)
	}
	return nil
}
