package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/nikitkaralius/weeklypoll/internal/engine"
	"github.com/nikitkaralius/weeklypoll/internal/jobs"
	"github.com/nikitkaralius/weeklypoll/internal/models"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
)

type Closer interface {
	ClosePoll(ctx context.Context, id int64, sentOn models.Date) (engine.CloseResult, error)
}

// ClosePollWorker stops answers on a sent poll once its answer window ends.
type ClosePollWorker struct {
	river.WorkerDefaults[jobs.ClosePollArgs]
	closer Closer
	cache  polls.Invalidator
	log    *slog.Logger
	snooze func(time.Duration) error
}

func NewClosePollWorker(closer Closer, cache polls.Invalidator, log *slog.Logger) *ClosePollWorker {
	return &ClosePollWorker{closer: closer, cache: cache, log: log, snooze: river.JobSnooze}
}

func (w *ClosePollWorker) Work(ctx context.Context, job *river.Job[jobs.ClosePollArgs]) error {
	args := job.Args
	sentOn, err := models.ParseDate(args.SentOn)
	if err != nil {
		// a malformed job never becomes valid
		return river.JobCancel(fmt.Errorf("close poll %d: %w", args.PollID, err))
	}

	res, err := w.closer.ClosePoll(ctx, args.PollID, sentOn)
	switch {
	case err != nil:
		return err
	case res.Stale:
		w.log.Debug("close job is stale", "poll_id", args.PollID, "sent_on", args.SentOn)
		return nil
	case !res.NotDueUntil.IsZero():
		return w.snooze(max(res.RetryIn, time.Second))
	}

	w.cache.Invalidate(ctx)
	w.log.Info("poll answers closed by job", "poll_id", args.PollID, "sent_on", args.SentOn)
	return nil
}

// Timeout bounds one attempt; the platform call and a short retry loop fit.
func (w *ClosePollWorker) Timeout(*river.Job[jobs.ClosePollArgs]) time.Duration {
	return time.Minute
}
