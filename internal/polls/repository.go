package polls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

const pollColumns = `id, title, chat_id, topic, options, is_anonymous, allows_multiple_answers,
	weekdays, send_time, skip_dates, block_answer_delta_hours, created_by,
	last_send_date, message_id, is_blocked`

// Repository is the PostgreSQL poll store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListAll(ctx context.Context) ([]models.Poll, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pollColumns+` FROM polls ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query polls: %w", err)
	}
	defer rows.Close()

	var res []models.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	return res, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id int64) (*models.Poll, error) {
	return r.getOne(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id)
}

func (r *Repository) GetByTitle(ctx context.Context, title string) (*models.Poll, error) {
	return r.getOne(ctx, `SELECT `+pollColumns+` FROM polls WHERE title = $1`, title)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*models.Poll, error) {
	p, err := scanPoll(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *Repository) Create(ctx context.Context, p *models.Poll) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO polls (
		title, chat_id, topic, options, is_anonymous, allows_multiple_answers,
		weekdays, send_time, skip_dates, block_answer_delta_hours, created_by
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	RETURNING id`,
		p.Title, p.ChatID, p.Topic, p.Options, p.IsAnonymous, p.AllowsMultipleAnswers,
		weekdaysToText(p.Weekdays), sendTimeToPG(p.SendTime), nonNil(p.SkipDates), p.BlockAnswerDeltaHours, p.CreatedBy,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return ErrTitleTaken
	}
	if err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}
	return nil
}

// Update applies upd as a single statement keyed by id. A guarded update
// that matches no row returns ErrAlreadySent (UnlessSentOn) or
// ErrSuperseded (OnlySentOn, OnlyMessageID) when the poll still exists.
func (r *Repository) Update(ctx context.Context, id int64, upd models.PollUpdate) (*models.Poll, error) {
	if upd.Empty() {
		return r.Get(ctx, id)
	}

	var (
		sets  []string
		conds = []string{"id = $1"}
		args  = []any{id}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if upd.SkipDates != nil {
		sets = append(sets, "skip_dates = "+arg(nonNil(*upd.SkipDates)))
	}
	if upd.LastSendDate != nil {
		sets = append(sets, "last_send_date = "+arg(dateToPG(*upd.LastSendDate)))
	}
	if upd.MessageID != nil {
		sets = append(sets, "message_id = "+arg(*upd.MessageID))
	}
	if upd.IsBlocked != nil {
		sets = append(sets, "is_blocked = "+arg(*upd.IsBlocked))
	}
	if upd.UnlessSentOn != nil {
		conds = append(conds, "last_send_date IS DISTINCT FROM "+arg(dateToPG(*upd.UnlessSentOn)))
	}
	if upd.OnlySentOn != nil {
		conds = append(conds, "last_send_date = "+arg(dateToPG(*upd.OnlySentOn)))
	}
	if upd.OnlyMessageID != nil {
		conds = append(conds, "message_id = "+arg(*upd.OnlyMessageID))
	}

	query := `UPDATE polls SET ` + strings.Join(sets, ", ") +
		` WHERE ` + strings.Join(conds, " AND ") +
		` RETURNING ` + pollColumns

	p, err := scanPoll(r.pool.QueryRow(ctx, query, args...))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if upd.UnlessSentOn == nil && !upd.Guarded() {
			return nil, ErrNotFound
		}
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		if upd.UnlessSentOn != nil {
			return nil, ErrAlreadySent
		}
		return nil, ErrSuperseded
	case err != nil:
		return nil, fmt.Errorf("update poll %d: %w", id, err)
	}
	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete poll %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPoll(row pgx.Row) (*models.Poll, error) {
	var (
		p         models.Poll
		weekdays  []string
		sendTime  pgtype.Time
		lastSend  pgtype.Date
		messageID pgtype.Int4
	)
	err := row.Scan(
		&p.ID, &p.Title, &p.ChatID, &p.Topic, &p.Options, &p.IsAnonymous, &p.AllowsMultipleAnswers,
		&weekdays, &sendTime, &p.SkipDates, &p.BlockAnswerDeltaHours, &p.CreatedBy,
		&lastSend, &messageID, &p.IsBlocked,
	)
	if err != nil {
		return nil, err
	}

	for _, wd := range weekdays {
		p.Weekdays = append(p.Weekdays, models.Weekday(wd))
	}
	offset := time.Duration(sendTime.Microseconds) * time.Microsecond
	p.SendTime = models.SendTime{Hour: int(offset / time.Hour), Minute: int(offset % time.Hour / time.Minute)}
	if lastSend.Valid {
		d := models.DateOf(lastSend.Time)
		p.LastSendDate = &d
	}
	if messageID.Valid {
		id := int(messageID.Int32)
		p.MessageID = &id
	}
	return &p, nil
}

func weekdaysToText(wds []models.Weekday) []string {
	res := make([]string, len(wds))
	for i, wd := range wds {
		res[i] = string(wd)
	}
	return res
}

func sendTimeToPG(t models.SendTime) pgtype.Time {
	return pgtype.Time{Microseconds: t.Offset().Microseconds(), Valid: true}
}

func dateToPG(d models.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
