package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tsubaki-chat/backend/internal/config"
	"github.com/tsubaki-chat/backend/internal/db"
	"github.com/tsubaki-chat/backend/internal/dispatch"
	"github.com/tsubaki-chat/backend/internal/model"
	"github.com/tsubaki-chat/backend/internal/server"
)

// Set via -ldflags at build time.
var (
	gitSHA    = "dev"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	conn, err := db.Connect(cfg)
	if err != nil {
		logger.Fatalw("db connect error", "error", err)
	}
	if err := conn.AutoMigrate(
		&model.NotificationEvent{},
		&model.NotificationRecipient{},
		&model.NotificationPreference{},
		&model.PushSubscription{},
		&model.DispatchJob{},
		&model.WakeupConfig{},
		&model.DeliveryTraceRecord{},
	); err != nil {
		logger.Fatalw("auto migrate error", "error", err)
	}

	srv, err := server.New(conn, cfg, logger, gitSHA, buildTime)
	if err != nil {
		logger.Fatalw("server init error", "error", err)
	}

	// The cron trigger is a safety net behind event-driven wakeups: it drains
	// retry backlogs and anything a missed wakeup left behind. It goes through
	// the same debounce gate as every other trigger.
	c := cron.New()
	if _, err := c.AddFunc(cfg.DispatchCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		srv.Scheduler().Trigger(ctx, dispatch.ModeCron, "cron_tick")
	}); err != nil {
		logger.Fatalw("cron schedule error", "spec", cfg.DispatchCronSpec, "error", err)
	}
	c.Start()
	defer c.Stop()

	addr := ":" + cfg.Port
	logger.Infow("starting server", "addr", addr, "git_sha", gitSHA)
	if err := srv.Start(addr); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}
