package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nikitkaralius/weeklypoll/internal/engine"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
)

type Mode string

const (
	ModeTick Mode = "tick"
	ModeCron Mode = "cron"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTick, ModeCron:
		return Mode(s), nil
	case "":
		return ModeTick, nil
	}
	return "", fmt.Errorf("unknown scheduler mode %q", s)
}

const sweepTag = "sweep"

// Engine is the part of the decision engine the driver calls.
type Engine interface {
	Tick(ctx context.Context, sendWindow time.Duration) engine.Report
	EvaluatePoll(ctx context.Context, id int64) engine.Report
}

type Config struct {
	Mode         Mode
	TickInterval time.Duration
	// GraceWindow bounds how late a missed cron firing is caught up.
	GraceWindow time.Duration
	Location    *time.Location
	Clock       clockwork.Clock
}

// SyncResult describes one reconciliation or forced evaluation.
type SyncResult struct {
	Added   []JobKey
	Removed []JobKey
	Report  engine.Report
}

// Driver invokes the engine on time, either by a fixed tick or by one
// weekly job per poll firing.
type Driver struct {
	engine Engine
	list   polls.Lister
	cache  polls.Invalidator
	cfg    Config
	log    *slog.Logger
	sched  gocron.Scheduler

	// ctx is the lifetime of job runs, set by Start.
	ctx context.Context
	// reconcile calls must not interleave
	mu sync.Mutex
}

func New(eng Engine, list polls.Lister, cache polls.Invalidator, cfg Config, log *slog.Logger) (*Driver, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeTick
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	opts := []gocron.SchedulerOption{
		gocron.WithLocation(cfg.Location),
		gocron.WithLogger(log),
	}
	if cfg.Clock != nil {
		opts = append(opts, gocron.WithClock(cfg.Clock))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Driver{
		engine: eng,
		list:   list,
		cache:  cache,
		cfg:    cfg,
		log:    log,
		sched:  s,
		ctx:    context.Background(),
	}, nil
}

// Start registers the jobs of the configured mode and starts firing them.
func (d *Driver) Start(ctx context.Context) error {
	d.ctx = ctx

	task := func() { d.runTick(d.ctx, 0) }
	if d.cfg.Mode == ModeCron {
		task = d.sweep
		if _, err := d.Reconcile(ctx); err != nil {
			d.log.Error("initial reconciliation", "error", err)
		}
	}

	_, err := d.sched.NewJob(
		gocron.DurationJob(d.cfg.TickInterval),
		gocron.NewTask(task),
		gocron.WithName(sweepTag),
		gocron.WithTags(sweepTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register %s job: %w", d.cfg.Mode, err)
	}

	d.sched.Start()
	d.log.Info("scheduler started", "mode", d.cfg.Mode, "interval", d.cfg.TickInterval, "zone", d.cfg.Location.String())
	return nil
}

func (d *Driver) Shutdown() error {
	return d.sched.Shutdown()
}

// Sync reconciles the weekly jobs in cron mode and then evaluates every poll.
func (d *Driver) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	window := time.Duration(0)
	if d.cfg.Mode == ModeCron {
		var err error
		if res, err = d.Reconcile(ctx); err != nil {
			return res, err
		}
		window = d.cfg.GraceWindow
	}
	res.Report = d.runTick(ctx, window)
	return res, nil
}

// Reconcile brings the registered weekly jobs in line with the stored polls.
func (d *Driver) Reconcile(ctx context.Context) (SyncResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ps, err := d.list.List(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list polls: %w", err)
	}

	registered := d.registered()
	actual := make([]JobKey, 0, len(registered))
	for k := range registered {
		actual = append(actual, k)
	}
	add, remove := Diff(DesiredJobs(ps), actual)

	var errs []error
	for _, k := range remove {
		if err := d.sched.RemoveJob(registered[k]); err != nil {
			errs = append(errs, fmt.Errorf("remove job %s: %w", k, err))
		}
	}
	for _, k := range add {
		if err := d.addWeekly(k); err != nil {
			errs = append(errs, err)
		}
	}

	if len(add)+len(remove) > 0 {
		d.log.Info("poll jobs reconciled", "added", len(add), "removed", len(remove))
	}
	return SyncResult{Added: add, Removed: remove}, errors.Join(errs...)
}

func (d *Driver) registered() map[JobKey]uuid.UUID {
	jobs := d.sched.Jobs()
	res := make(map[JobKey]uuid.UUID, len(jobs))
	for _, j := range jobs {
		for _, tag := range j.Tags() {
			if k, ok := ParseJobKey(tag); ok {
				res[k] = j.ID()
			}
		}
	}
	return res
}

func (d *Driver) addWeekly(k JobKey) error {
	wd, ok := k.Weekday.TimeWeekday()
	if !ok {
		return fmt.Errorf("job %s: bad weekday", k)
	}
	_, err := d.sched.NewJob(
		gocron.WeeklyJob(1,
			gocron.NewWeekdays(wd),
			gocron.NewAtTimes(gocron.NewAtTime(uint(k.Hour), uint(k.Minute), 0)),
		),
		gocron.NewTask(d.fire, k.PollID),
		gocron.WithName(k.String()),
		gocron.WithTags(k.String()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", k, err)
	}
	return nil
}

func (d *Driver) fire(id int64) {
	rep := d.engine.EvaluatePoll(d.ctx, id)
	d.finish(d.ctx, rep)
}

// sweep is the cron mode safety net: it picks up poll edits and catches up
// firings missed within the grace window, and evaluates closes.
func (d *Driver) sweep() {
	if _, err := d.Reconcile(d.ctx); err != nil {
		d.log.Error("reconcile poll jobs", "error", err)
	}
	d.runTick(d.ctx, d.cfg.GraceWindow)
}

func (d *Driver) runTick(ctx context.Context, window time.Duration) engine.Report {
	rep := d.engine.Tick(ctx, window)
	d.finish(ctx, rep)
	return rep
}

// finish drops the cached snapshot once if anything changed.
func (d *Driver) finish(ctx context.Context, rep engine.Report) {
	if rep.Changed() {
		d.cache.Invalidate(ctx)
	}
	if rep.Changed() || len(rep.Failures) > 0 || len(rep.Deferred) > 0 {
		d.log.Info("polls evaluated",
			"polls", rep.Polls,
			"sent", rep.Count(engine.KindSent),
			"skipped", rep.Count(engine.KindSkipped),
			"closed", rep.Count(engine.KindClosed),
			"failed", len(rep.Failures),
			"deferred", len(rep.Deferred),
		)
	}
}

// Keys returns the currently registered weekly job keys.
func (d *Driver) Keys() []JobKey {
	var keys []JobKey
	for k := range d.registered() {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}
