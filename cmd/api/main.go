package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/credit-service/internal/config"
	"github.com/Dan9191/credit-service/internal/handler"
	"github.com/Dan9191/credit-service/internal/integrations/cbr"
	"github.com/Dan9191/credit-service/internal/metrics"
	"github.com/Dan9191/credit-service/internal/repository"
	"github.com/Dan9191/credit-service/internal/scheduler"
	"github.com/Dan9191/credit-service/internal/service"
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

	// Initialize storage
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize layers
	var (
		rates   service.RateSource
		keyRate handler.KeyRateSource
	)
	if cfg.CBREnabled {
		cbrClient := cbr.NewClient(cfg.CBRURL, cfg.CBRMargin, logger)
		rates, keyRate = cbrClient, cbrClient
	}
	svc := service.NewService(store, rates, logger, m, service.Options{
		MaxBusinessCredits:  cfg.MaxBusinessCredits,
		DefaultInterestRate: cfg.DefaultInterestRate,
		StoreTimeout:        cfg.StoreTimeout,
	})
	sweeper := service.NewSweeper(svc, logger, m)
	h := handler.NewHandler(svc, sweeper, keyRate, logger)

	var sched *scheduler.Scheduler
	if cfg.SweepEnabled {
		sched, err = scheduler.New(cfg.SweepSchedule, cfg.SweepTimezone, sweeper, logger)
		if err != nil {
			logger.Fatalf("Failed to configure overdue sweep: %v", err)
		}
		sched.Start()
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(h, m, logger, cfg.CORSAllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			logger.WithError(err).Warn("Overdue sweep did not stop in time")
		}
	}
}

func openStore(cfg *config.Config, logger *logrus.Logger) (service.Store, func(), error) {
	if cfg.Storage == "memory" {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return repository.NewMemoryStore().WithBusinessLimit(cfg.MaxBusinessCredits), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := repository.RunMigrations(db, cfg.MigrationsDir); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("Database migrations applied")
	return repository.NewRepository(db).WithBusinessLimit(cfg.MaxBusinessCredits), func() { db.Close() }, nil
}
