package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse/config"
	"pulse/internal/database"
	"pulse/internal/logging"
	"pulse/internal/middleware"
	"pulse/internal/repository"
	"pulse/internal/router"
	"pulse/internal/service"
	"pulse/internal/ws"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Server.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	callRepo := repository.NewCallRepository(db)
	scheduledRepo := repository.NewScheduledMessageRepository(db)

	hub := ws.NewHub(userRepo, log.Named("presence"))
	hub.Start()
	calls := service.NewCallService(hub, callRepo, log.Named("calls"))
	dispatcher := ws.NewDispatcher(hub, calls, log.Named("events"))

	scheduler := service.NewScheduler(scheduledRepo, chatRepo, hub, cfg.Scheduler, log.Named("scheduler"))
	if _, err := scheduler.Recover(context.Background()); err != nil {
		log.Error("recover scheduled messages", zap.Error(err))
	}
	scheduler.Start()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit)
	sweepDone := make(chan struct{})
	go limiter.Run(sweepDone)

	engine := router.Setup(cfg, router.Deps{
		Hub:        hub,
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
		Calls:      callRepo,
		Limiter:    limiter,
	}, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	close(sweepDone)
	scheduler.Stop()
	hub.Stop()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server stopped")
	return nil
}
