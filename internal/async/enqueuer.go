package async

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"github.com/nikitkaralius/weeklypoll/internal/jobs"
)

// Enqueuer abstracts async job enqueueing for the scheduling engine.
// Implementations should be safe for concurrent use.
type Enqueuer interface {
	// EnqueueClosePoll schedules a job to stop answers on a poll at runAt.
	EnqueueClosePoll(ctx context.Context, args jobs.ClosePollArgs, runAt time.Time) error
}

type RiverEnqueuer[TTx any] struct {
	client      *river.Client[TTx]
	maxAttempts int
}

// NewRiverEnqueuer wraps an existing River client for enqueueing jobs. The
// client's lifecycle stays with the caller.
func NewRiverEnqueuer[TTx any](client *river.Client[TTx], maxAttempts int) *RiverEnqueuer[TTx] {
	return &RiverEnqueuer[TTx]{client: client, maxAttempts: maxAttempts}
}

func (e *RiverEnqueuer[TTx]) EnqueueClosePoll(ctx context.Context, args jobs.ClosePollArgs, runAt time.Time) error {
	opts := args.InsertOpts()
	opts.MaxAttempts = e.maxAttempts
	if !runAt.IsZero() {
		opts.ScheduledAt = runAt
	}
	_, err := e.client.Insert(ctx, args, &opts)
	return err
}
