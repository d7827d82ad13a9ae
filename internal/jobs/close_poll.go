package jobs

import (
	"time"

	"github.com/riverqueue/river"
)

// ClosePollArgs defines the arguments for a job that stops answering on the
// poll message sent on SentOn. Shared by the bot (enqueue) and the worker.
type ClosePollArgs struct {
	PollID int64  `json:"poll_id" river:"unique"`
	SentOn string `json:"sent_on" river:"unique"`
}

// Kind implements river.JobArgs to identify this job type.
func (ClosePollArgs) Kind() string { return "close_poll" }

// InsertOpts makes one close job per poll and send date.
func (ClosePollArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true, ByPeriod: 7 * 24 * time.Hour},
	}
}
