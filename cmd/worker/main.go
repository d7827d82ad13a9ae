package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/nikitkaralius/weeklypoll/internal/app"
	"github.com/nikitkaralius/weeklypoll/internal/config"
	"github.com/nikitkaralius/weeklypoll/internal/worker"
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

	ctx := context.Background()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer deps.Close()

	workers := river.NewWorkers()
	river.AddWorker(workers, worker.NewClosePollWorker(deps.Engine(nil), deps.Snapshot, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(deps.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.WorkerMaxJobs},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to create river client: %v", err)
	}

	if err := riverClient.Start(ctx); err != nil {
		log.Fatalf("failed to start river client: %v", err)
	}
	logger.Info("worker started", "version", version, "max_workers", cfg.WorkerMaxJobs)

	sigintOrTerm := make(chan os.Signal, 1)
	signal.Notify(sigintOrTerm, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigintOrTerm
		logger.Info("received SIGINT/SIGTERM, soft stop: waiting for running jobs")

		softStopCtx, softStopCtxCancel := context.WithTimeout(ctx, 10*time.Second)
		defer softStopCtxCancel()

		go func() {
			select {
			case <-sigintOrTerm:
				logger.Warn("received SIGINT/SIGTERM again, hard stop")
				softStopCtxCancel()
			case <-softStopCtx.Done():
				logger.Warn("soft stop timed out, hard stop")
			}
		}()

		err := riverClient.Stop(softStopCtx)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			panic(err)
		}
		if err == nil {
			logger.Info("soft stop succeeded")
			return
		}

		hardStopCtx, hardStopCtxCancel := context.WithTimeout(ctx, 10*time.Second)
		defer hardStopCtxCancel()

		// Jobs respect cancellation, so StopAndCancel returns unless a job
		// is stuck; then exit without waiting.
		err = riverClient.StopAndCancel(hardStopCtx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			logger.Error("hard stop timed out, exiting unsafely", "error", err)
		} else if err != nil {
			panic(err)
		}
	}()

	<-riverClient.Stopped()
}
