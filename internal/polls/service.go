package polls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/nikitkaralius/weeklypoll/internal/dates"
	"github.com/nikitkaralius/weeklypoll/internal/models"
)

const (
	TitleLenMax   = 100
	TopicLenMax   = 300
	OptionLenMax  = 100
	OptionsMin    = 2
	OptionsMax    = 10
	DefaultDelta  = 24
	ChatIDLenMax  = 128
	deltaHoursMax = 24 * 7
)

// Store is the durable poll storage.
type Store interface {
	ListAll(ctx context.Context) ([]models.Poll, error)
	Get(ctx context.Context, id int64) (*models.Poll, error)
	GetByTitle(ctx context.Context, title string) (*models.Poll, error)
	Create(ctx context.Context, p *models.Poll) error
	Update(ctx context.Context, id int64, upd models.PollUpdate) (*models.Poll, error)
	Delete(ctx context.Context, id int64) error
}

// Lister returns every poll, possibly from a cache.
type Lister interface {
	List(ctx context.Context) ([]models.Poll, error)
}

// Invalidator drops the cached poll snapshot.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// DateParser turns admin text into ISO exception dates.
type DateParser interface {
	ParseExceptionDates(text string) ([]string, error)
}

// Service implements the admin operations on polls. Every successful
// mutation invalidates the cached snapshot.
type Service struct {
	store  Store
	list   Lister
	cache  Invalidator
	parser DateParser
	log    *slog.Logger
}

func NewService(store Store, list Lister, cache Invalidator, parser DateParser, log *slog.Logger) *Service {
	return &Service{store: store, list: list, cache: cache, parser: parser, log: log}
}

func (s *Service) List(ctx context.Context) ([]models.Poll, error) {
	return s.list.List(ctx)
}

func (s *Service) Create(ctx context.Context, p *models.Poll) error {
	if err := Validate(p); err != nil {
		return err
	}
	p.SkipDates = dates.MergeDates(nil, p.SkipDates)
	if err := s.store.Create(ctx, p); err != nil {
		return err
	}
	s.log.Info("poll created", "poll_id", p.ID, "title", p.Title, "chat_id", p.ChatID)
	s.cache.Invalidate(ctx)
	return nil
}

// Delete removes the poll. Close jobs still queued for it become no-ops.
func (s *Service) Delete(ctx context.Context, title string) error {
	p, err := s.store.GetByTitle(ctx, title)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, p.ID); err != nil {
		return err
	}
	s.log.Info("poll deleted", "poll_id", p.ID, "title", p.Title)
	s.cache.Invalidate(ctx)
	return nil
}

// Pause parses text and adds the dates to the poll's exception list. A
// malformed text changes nothing.
func (s *Service) Pause(ctx context.Context, title, text string) (*models.Poll, error) {
	added, err := s.parser.ParseExceptionDates(text)
	if err != nil {
		return nil, err
	}
	return s.editSkipDates(ctx, title, func(existing []string) []string {
		return dates.MergeDates(existing, added)
	})
}

// Resume removes the parsed dates from the poll's exception list.
func (s *Service) Resume(ctx context.Context, title, text string) (*models.Poll, error) {
	removed, err := s.parser.ParseExceptionDates(text)
	if err != nil {
		return nil, err
	}
	return s.editSkipDates(ctx, title, func(existing []string) []string {
		return dates.RemoveDates(existing, removed)
	})
}

// ClearPauses empties the poll's exception list.
func (s *Service) ClearPauses(ctx context.Context, title string) (*models.Poll, error) {
	return s.editSkipDates(ctx, title, func([]string) []string { return []string{} })
}

func (s *Service) editSkipDates(ctx context.Context, title string, edit func([]string) []string) (*models.Poll, error) {
	p, err := s.store.GetByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	skip := edit(p.SkipDates)
	updated, err := s.store.Update(ctx, p.ID, models.PollUpdate{SkipDates: &skip})
	if err != nil {
		return nil, err
	}
	s.log.Info("poll exception dates changed", "poll_id", p.ID, "skip_dates", skip)
	s.cache.Invalidate(ctx)
	return updated, nil
}

// Validate checks the admin supplied fields of a new poll and fills defaults.
func Validate(p *models.Poll) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Topic = strings.TrimSpace(p.Topic)
	p.ChatID = strings.TrimSpace(p.ChatID)

	switch {
	case p.Title == "":
		return &ValidationError{Field: "title", Reason: "empty"}
	case utf8.RuneCountInString(p.Title) > TitleLenMax:
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("longer than %d characters", TitleLenMax)}
	case p.Topic == "":
		return &ValidationError{Field: "topic", Reason: "empty"}
	case utf8.RuneCountInString(p.Topic) > TopicLenMax:
		return &ValidationError{Field: "topic", Reason: fmt.Sprintf("longer than %d characters", TopicLenMax)}
	case p.ChatID == "" || len(p.ChatID) > ChatIDLenMax:
		return &ValidationError{Field: "chat", Reason: "empty or too long"}
	case len(p.Options) < OptionsMin || len(p.Options) > OptionsMax:
		return &ValidationError{Field: "options", Reason: fmt.Sprintf("need %d to %d options", OptionsMin, OptionsMax)}
	case len(p.Weekdays) == 0:
		return &ValidationError{Field: "weekdays", Reason: "empty"}
	case p.BlockAnswerDeltaHours < 0 || p.BlockAnswerDeltaHours > deltaHoursMax:
		return &ValidationError{Field: "block hours", Reason: fmt.Sprintf("must be within 0..%d", deltaHoursMax)}
	}

	for i, o := range p.Options {
		o = strings.TrimSpace(o)
		if o == "" || utf8.RuneCountInString(o) > OptionLenMax {
			return &ValidationError{Field: "options", Reason: fmt.Sprintf("option %d is empty or longer than %d characters", i+1, OptionLenMax)}
		}
		p.Options[i] = o
	}
	for _, wd := range p.Weekdays {
		if _, ok := wd.TimeWeekday(); !ok {
			return &ValidationError{Field: "weekdays", Reason: fmt.Sprintf("unknown day %q", wd)}
		}
	}
	return nil
}

// IsUserError reports whether err should be shown to the admin as is.
func IsUserError(err error) bool {
	var ve *ValidationError
	var pe *dates.ParseError
	return errors.As(err, &ve) || errors.As(err, &pe) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrTitleTaken)
}
