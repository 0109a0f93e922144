package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/config"
	"github.com/Dan9191/cobranca-service/internal/handler"
	"github.com/Dan9191/cobranca-service/internal/notify"
	"github.com/Dan9191/cobranca-service/internal/reminder"
	"github.com/Dan9191/cobranca-service/internal/repository"
	"github.com/Dan9191/cobranca-service/internal/service"
	"github.com/Dan9191/cobranca-service/internal/utils"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize database
	db, err := repository.Open(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	sealer, err := utils.NewSealer(cfg.ContactEncryptionKey)
	if err != nil {
		logger.Fatalf("Failed to load contact encryption key: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db, sealer)
	svc, err := service.NewService(repo, logger, cfg)
	if err != nil {
		logger.Fatalf("Failed to create service: %v", err)
	}

	notifier, err := notify.FromConfig(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to set up notifications: %v", err)
	}
	defer notifier.Close()

	sweeper := reminder.NewSweeper(repo, notifier, logger, cfg)
	scheduler, err := reminder.NewScheduler(sweeper, logger, cfg)
	if err != nil {
		logger.Fatalf("Failed to create reminder scheduler: %v", err)
	}
	scheduler.Start()

	// Setup router
	h := handler.NewHandler(svc, logger, cfg,
		handler.WithHealthCheck(db.PingContext),
		handler.WithSecureCookie(cfg.CookieSecure),
	)
	router := handler.NewRouter(h, svc, cfg.CORSOrigins, logger)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		logger.Errorf("Server failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if err := scheduler.Stop(ctx); err != nil {
		logger.Errorf("Scheduler shutdown failed: %v", err)
	}
	logger.Info("Shutdown complete")
}
