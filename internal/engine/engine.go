package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nikitkaralius/weeklypoll/internal/async"
	"github.com/nikitkaralius/weeklypoll/internal/dates"
	"github.com/nikitkaralius/weeklypoll/internal/jobs"
	"github.com/nikitkaralius/weeklypoll/internal/models"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
)

type Store interface {
	Get(ctx context.Context, id int64) (*models.Poll, error)
	Update(ctx context.Context, id int64, upd models.PollUpdate) (*models.Poll, error)
}

type Gateway interface {
	SendPoll(ctx context.Context, chatID, question string, options []string, anonymous, multiple bool) (int, error)
	StopPoll(ctx context.Context, chatID string, messageID int) error
}

type Clock interface {
	Now() dates.Moment
}

type Config struct {
	Workers     int
	TickTimeout time.Duration
	// PersistRetries and PersistBackoff bound the retries of a state write
	// that follows a delivered poll.
	PersistRetries int
	PersistBackoff time.Duration
	// PersistTimeout caps those retries independently of the tick deadline.
	PersistTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 50 * time.Second
	}
	if c.PersistRetries <= 0 {
		c.PersistRetries = 5
	}
	if c.PersistBackoff <= 0 {
		c.PersistBackoff = 200 * time.Millisecond
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 30 * time.Second
	}
	return c
}

// Engine decides and performs poll deliveries and closes.
type Engine struct {
	list     polls.Lister
	store    Store
	gateway  Gateway
	clock    Clock
	enqueuer async.Enqueuer
	cfg      Config
	log      *slog.Logger

	locks sync.Map // poll id -> *sync.Mutex
}

// New builds an engine. enq may be nil; closes are then driven by ticks only.
func New(list polls.Lister, store Store, gateway Gateway, clock Clock, enq async.Enqueuer, cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		list:     list,
		store:    store,
		gateway:  gateway,
		clock:    clock,
		enqueuer: enq,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// Tick evaluates every poll once. Polls with nothing to do are filtered on
// the listed snapshot; the rest are re-read under their lock and handled in
// a bounded pool. Polls not started before the tick timeout are deferred.
func (e *Engine) Tick(ctx context.Context, sendWindow time.Duration) Report {
	all, err := e.list.List(ctx)
	if err != nil {
		e.log.Error("tick: list polls", "error", err)
		return Report{Err: err}
	}

	now := e.clock.Now()
	rep := Report{Polls: len(all)}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TickTimeout)
	defer cancel()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.cfg.Workers)
	for _, p := range all {
		if Decide(p, now, sendWindow).None() {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				rep.Deferred = append(rep.Deferred, p.ID)
				mu.Unlock()
				return nil
			}
			res := e.handle(ctx, p.ID, now, sendWindow)
			mu.Lock()
			rep.merge(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(rep.Deferred) > 0 {
		e.log.Warn("tick timed out, polls deferred", "deferred", rep.Deferred)
	}
	return rep
}

// EvaluatePoll runs the full decision for one poll now. A poll that no
// longer exists yields an empty report.
func (e *Engine) EvaluatePoll(ctx context.Context, id int64) Report {
	rep := Report{Polls: 1}
	rep.merge(e.handle(ctx, id, e.clock.Now(), 0))
	return rep
}

// CloseResult tells a close job what happened.
type CloseResult struct {
	Closed bool
	// Stale is set when the poll is gone, already closed or was re-sent
	// since the job was queued.
	Stale bool
	// NotDueUntil is set when the close time has not come yet, RetryIn is
	// the wait until then by the engine's clock.
	NotDueUntil time.Time
	RetryIn     time.Duration
}

// ClosePoll closes answering on the poll sent on sentOn if that is due.
func (e *Engine) ClosePoll(ctx context.Context, id int64, sentOn models.Date) (CloseResult, error) {
	unlock := e.lock(id)
	defer unlock()

	p, err := e.store.Get(ctx, id)
	if errors.Is(err, polls.ErrNotFound) {
		return CloseResult{Stale: true}, nil
	}
	if err != nil {
		return CloseResult{}, err
	}
	if !p.SentOn(sentOn) || p.IsBlocked || p.BlockAnswerDeltaHours <= 0 {
		return CloseResult{Stale: true}, nil
	}

	now := e.clock.Now()
	if !CloseDue(*p, now) {
		until := CloseAt(*p, now.Time.Location())
		return CloseResult{NotDueUntil: until, RetryIn: until.Sub(now.Time)}, nil
	}
	err = e.close(ctx, p)
	if errors.Is(err, polls.ErrSuperseded) || errors.Is(err, polls.ErrNotFound) {
		return CloseResult{Stale: true}, nil
	}
	if err != nil {
		return CloseResult{}, err
	}
	return CloseResult{Closed: true}, nil
}

func (e *Engine) lock(id int64) func() {
	m, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// handle re-reads the poll under its lock and acts on a fresh decision.
func (e *Engine) handle(ctx context.Context, id int64, now dates.Moment, sendWindow time.Duration) Report {
	var rep Report
	unlock := e.lock(id)
	defer unlock()

	p, err := e.store.Get(ctx, id)
	if errors.Is(err, polls.ErrNotFound) {
		e.log.Debug("poll vanished before evaluation", "poll_id", id)
		return rep
	}
	if err != nil {
		rep.fail(id, "", fmt.Errorf("load poll: %w", err))
		return rep
	}
	log := e.log.With("poll_id", p.ID, "title", p.Title)

	d := Decide(*p, now, sendWindow)
	cycleStarted := false

	switch {
	case d.Send:
		msgID, err := e.send(ctx, p, now)
		if msgID != 0 {
			cycleStarted = true
			rep.add(p, KindSent, msgID)
			log.Info("poll sent", "message_id", msgID, "date", now.DateISO())
		}
		if err != nil {
			rep.fail(p.ID, p.Title, err)
			e.logFailure(log, err)
		}
	case d.Skip:
		err := e.skip(ctx, p, now)
		switch {
		case errors.Is(err, polls.ErrAlreadySent):
			log.Debug("skip already recorded by another evaluator")
		case err != nil:
			rep.fail(p.ID, p.Title, err)
			log.Error("record skipped day", "error", err)
		default:
			cycleStarted = true
			rep.add(p, KindSkipped, 0)
			log.Info("poll skipped for exception date", "date", now.DateISO())
		}
	}

	if !d.Close {
		return rep
	}
	if cycleStarted {
		// The new cycle supersedes the previous one; only the old message
		// needs closing, the stored state already belongs to the new cycle.
		if p.MessageID != nil {
			if err := e.gateway.StopPoll(ctx, p.ChatID, *p.MessageID); err != nil {
				log.Warn("close superseded poll message", "message_id", *p.MessageID, "error", err)
			}
		}
		return rep
	}
	err = e.close(ctx, p)
	if errors.Is(err, polls.ErrSuperseded) || errors.Is(err, polls.ErrNotFound) {
		log.Debug("poll changed while closing, left as is", "error", err)
		return rep
	}
	if err != nil {
		rep.fail(p.ID, p.Title, err)
		e.logFailure(log, err)
		return rep
	}
	rep.add(p, KindClosed, derefInt(p.MessageID))
	log.Info("poll answers closed")
	return rep
}

// send delivers p and records the delivery. A non-zero message id means the
// poll reached the chat even if recording it failed.
func (e *Engine) send(ctx context.Context, p *models.Poll, now dates.Moment) (int, error) {
	msgID, err := e.gateway.SendPoll(ctx, p.ChatID, p.Topic, p.Options, p.IsAnonymous, p.AllowsMultipleAnswers)
	if err != nil {
		return 0, &DeliveryError{Op: OpSend, PollID: p.ID, Err: err}
	}

	today := now.Date
	err = e.persist(ctx, p.ID, models.PollUpdate{
		LastSendDate: &today,
		MessageID:    &msgID,
		IsBlocked:    models.Ptr(false),
		UnlessSentOn: &today,
	})
	if err != nil {
		return msgID, &PersistenceError{PollID: p.ID, Err: err}
	}

	if e.enqueuer != nil && p.BlockAnswerDeltaHours > 0 {
		sent := *p
		sent.LastSendDate = &today
		args := jobs.ClosePollArgs{PollID: p.ID, SentOn: today.String()}
		if err := e.enqueuer.EnqueueClosePoll(ctx, args, CloseAt(sent, now.Time.Location())); err != nil {
			e.log.Warn("enqueue close poll job", "poll_id", p.ID, "error", err)
		}
	}
	return msgID, nil
}

func (e *Engine) skip(ctx context.Context, p *models.Poll, now dates.Moment) error {
	today := now.Date
	remaining := dates.RemoveDates(p.SkipDates, []string{today.String()})
	_, err := e.store.Update(ctx, p.ID, models.PollUpdate{
		SkipDates:    &remaining,
		LastSendDate: &today,
		IsBlocked:    models.Ptr(true),
		UnlessSentOn: &today,
	})
	return err
}

// close stops the delivery p describes. The bot and the close worker run
// separate engines, so the write only lands while that delivery is still
// the stored one; otherwise it yields polls.ErrSuperseded.
func (e *Engine) close(ctx context.Context, p *models.Poll) error {
	if p.MessageID != nil {
		if err := e.gateway.StopPoll(ctx, p.ChatID, *p.MessageID); err != nil {
			return &DeliveryError{Op: OpStop, PollID: p.ID, Err: err}
		}
	}
	err := e.persist(ctx, p.ID, models.PollUpdate{
		IsBlocked:     models.Ptr(true),
		OnlySentOn:    p.LastSendDate,
		OnlyMessageID: p.MessageID,
	})
	if errors.Is(err, polls.ErrSuperseded) {
		return err
	}
	if err != nil {
		return &PersistenceError{PollID: p.ID, Err: err}
	}
	return nil
}

// persist retries an idempotent update after an external side effect. It
// outlives the caller's deadline by up to PersistTimeout.
func (e *Engine) persist(ctx context.Context, id int64, upd models.PollUpdate) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PersistTimeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.PersistBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.cfg.PersistRetries)), ctx)

	return backoff.Retry(func() error {
		_, err := e.store.Update(ctx, id, upd)
		if errors.Is(err, polls.ErrNotFound) || errors.Is(err, polls.ErrAlreadySent) || errors.Is(err, polls.ErrSuperseded) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (e *Engine) logFailure(log *slog.Logger, err error) {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		log.Error("poll delivered but its state was not saved", "error", err)
		return
	}
	log.Warn("poll delivery failed, retrying next tick", "error", err)
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
