package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/nikitkaralius/weeklypoll/internal/app"
	"github.com/nikitkaralius/weeklypoll/internal/async"
	"github.com/nikitkaralius/weeklypoll/internal/config"
	"github.com/nikitkaralius/weeklypoll/internal/handlers"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
	"github.com/nikitkaralius/weeklypoll/internal/scheduler"
	"github.com/nikitkaralius/weeklypoll/internal/telegram"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, flush, err := app.NewLogger(cfg, version)
	if err != nil {
		log.Fatal(err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer deps.Close()

	// Insert-only River client; close jobs run in the worker binary.
	riverClient, err := river.NewClient[pgx.Tx](riverpgxv5.New(deps.Pool), &river.Config{Logger: logger})
	if err != nil {
		log.Fatalf("failed to create river client: %v", err)
	}
	enq := async.NewRiverEnqueuer(riverClient, cfg.CloseJobAttempts)

	mode, err := scheduler.ParseMode(cfg.SchedulerMode)
	if err != nil {
		log.Fatal(err)
	}
	driver, err := scheduler.New(deps.Engine(enq), deps.Snapshot, deps.Snapshot, scheduler.Config{
		Mode:         mode,
		TickInterval: cfg.TickInterval,
		GraceWindow:  cfg.GraceWindow,
		Location:     deps.Resolver.Location(),
		Clock:        deps.Resolver.Clock(),
	}, logger)
	if err != nil {
		log.Fatal(err)
	}
	if err := driver.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := driver.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown", "error", err)
		}
	}()

	svc := polls.NewService(deps.Store, deps.Snapshot, deps.Snapshot, deps.Resolver, logger)
	admin := handlers.NewAdmin(svc, driver, deps.Chats, deps.Snapshot, cfg.AdminIDs, logger)
	if len(cfg.AdminIDs) == 0 {
		logger.Warn("BOT_ADMIN_IDS is empty, admin commands are disabled")
	}

	logger.Info("bot started", "version", version)
	telegram.Listen(ctx, deps.Bot, admin, deps.Chats, logger)
	logger.Info("shutting down")
}
