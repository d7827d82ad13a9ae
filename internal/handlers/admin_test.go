package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikitkaralius/weeklypoll/internal/dates"
	"github.com/nikitkaralius/weeklypoll/internal/engine"
	"github.com/nikitkaralius/weeklypoll/internal/models"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
	"github.com/nikitkaralius/weeklypoll/internal/scheduler"
)

const adminID = 500

type fakeService struct {
	polls   []models.Poll
	created *models.Poll
	deleted string
	paused  [2]string
	resumed [2]string
	cleared string
	err     error
}

func (s *fakeService) List(context.Context) ([]models.Poll, error) { return s.polls, s.err }

func (s *fakeService) Create(_ context.Context, p *models.Poll) error {
	if s.err != nil {
		return s.err
	}
	if err := polls.Validate(p); err != nil {
		return err
	}
	s.created = p
	return nil
}

func (s *fakeService) Delete(_ context.Context, title string) error {
	s.deleted = title
	return s.err
}

func (s *fakeService) Pause(_ context.Context, title, text string) (*models.Poll, error) {
	s.paused = [2]string{title, text}
	return &models.Poll{Title: title, SkipDates: []string{"2024-12-31"}}, s.err
}

func (s *fakeService) Resume(_ context.Context, title, text string) (*models.Poll, error) {
	s.resumed = [2]string{title, text}
	return &models.Poll{Title: title}, s.err
}

func (s *fakeService) ClearPauses(_ context.Context, title string) (*models.Poll, error) {
	s.cleared = title
	return &models.Poll{Title: title}, s.err
}

type fakeSyncer struct{ res scheduler.SyncResult }

func (f *fakeSyncer) Sync(context.Context) (scheduler.SyncResult, error) { return f.res, nil }

type fakeChats struct{ chats []models.Chat }

func (f *fakeChats) List(context.Context) ([]models.Chat, error) { return f.chats, nil }

func (f *fakeChats) Resolve(_ context.Context, ref string) (string, error) {
	for _, c := range f.chats {
		if c.Title == ref {
			return c.ID, nil
		}
	}
	if strings.HasPrefix(ref, "-") || strings.HasPrefix(ref, "@") {
		return ref, nil
	}
	return "", &polls.ValidationError{Field: "chat", Reason: "unknown chat"}
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate(context.Context) { c.n++ }

func command(from int64, text string) *tgbotapi.Message {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: from, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func newAdmin(svc *fakeService) (*Admin, *countingCache) {
	cache := &countingCache{}
	sync := &fakeSyncer{res: scheduler.SyncResult{Report: engine.Report{
		Polls:    2,
		Outcomes: []engine.Outcome{{Kind: engine.KindSent}},
	}}}
	chats := &fakeChats{chats: []models.Chat{{ID: "-100777", Title: "Football club", IsGroup: true}}}
	return NewAdmin(svc, sync, chats, cache, []int64{adminID}, slog.New(slog.DiscardHandler)), cache
}

func TestAdmin_IgnoresStrangers(t *testing.T) {
	a, _ := newAdmin(&fakeService{})
	assert.Empty(t, a.Handle(context.Background(), command(1, "/polls")))

	group := command(adminID, "/polls")
	group.Chat.Type = "supergroup"
	assert.Empty(t, a.Handle(context.Background(), group))
}

func TestAdmin_NewPoll(t *testing.T) {
	svc := &fakeService{}
	a, _ := newAdmin(svc)

	reply := a.Handle(context.Background(), command(adminID,
		"/newpoll Football | -100123 | Football on Tuesday? | Yes; No; Maybe | вт, fri | 19:30 | no | yes | 12"))

	require.NotNil(t, svc.created, reply)
	p := svc.created
	assert.Equal(t, "Football", p.Title)
	assert.Equal(t, "-100123", p.ChatID)
	assert.Equal(t, []string{"Yes", "No", "Maybe"}, p.Options)
	assert.Equal(t, []models.Weekday{models.Tuesday, models.Friday}, p.Weekdays)
	assert.Equal(t, models.SendTime{Hour: 19, Minute: 30}, p.SendTime)
	assert.False(t, p.IsAnonymous)
	assert.True(t, p.AllowsMultipleAnswers)
	assert.Equal(t, 12, p.BlockAnswerDeltaHours)
	assert.Equal(t, int64(adminID), p.CreatedBy)
	assert.Contains(t, reply, "Created")
}

func TestAdmin_NewPollByChatTitle(t *testing.T) {
	svc := &fakeService{}
	a, _ := newAdmin(svc)

	a.Handle(context.Background(), command(adminID, "/newpoll Football | Football club | Coming? | Yes; No | tue | 19:30"))
	require.NotNil(t, svc.created)
	assert.Equal(t, "-100777", svc.created.ChatID)
}

func TestAdmin_Chats(t *testing.T) {
	a, _ := newAdmin(&fakeService{})
	assert.Equal(t, "• Football club (-100777)", a.Handle(context.Background(), command(adminID, "/chats")))
	assert.Contains(t, formatChats(nil), "not in any chat")
}

func TestAdmin_NewPollErrors(t *testing.T) {
	cases := map[string]string{
		"/newpoll just a title":                               "Usage",
		"/newpoll T | -1 | Q | Yes; No | xyz | 10:00":         "invalid weekdays",
		"/newpoll T | -1 | Q | Yes; No | mon | 25:00":         "invalid time",
		"/newpoll T | -1 | Q | Yes | mon | 10:00":             "invalid options",
		"/newpoll T | -1 | Q | Yes; No | mon | 10:00 | maybe": "invalid anonymous",
		"/newpoll T | Chess | Q | Yes; No | mon | 10:00":      "invalid chat",
	}
	for text, want := range cases {
		t.Run(text, func(t *testing.T) {
			svc := &fakeService{}
			a, _ := newAdmin(svc)
			assert.Contains(t, a.Handle(context.Background(), command(adminID, text)), want)
			assert.Nil(t, svc.created)
		})
	}
}

func TestAdmin_PauseAndResume(t *testing.T) {
	svc := &fakeService{}
	a, _ := newAdmin(svc)
	ctx := context.Background()

	reply := a.Handle(ctx, command(adminID, "/pause Football | 27.11-29.11, 31.12"))
	assert.Equal(t, [2]string{"Football", "27.11-29.11, 31.12"}, svc.paused)
	assert.Contains(t, reply, "2024-12-31")

	a.Handle(ctx, command(adminID, "/resume Football | 31.12"))
	assert.Equal(t, [2]string{"Football", "31.12"}, svc.resumed)

	a.Handle(ctx, command(adminID, "/resume Football | Clear"))
	assert.Equal(t, "Football", svc.cleared)

	assert.Contains(t, a.Handle(ctx, command(adminID, "/pause Football")), "Usage")
}

func TestAdmin_ReportsUserErrors(t *testing.T) {
	ctx := context.Background()

	a, _ := newAdmin(&fakeService{err: &dates.ParseError{Token: "32.13", Reason: "no such day"}})
	assert.Contains(t, a.Handle(ctx, command(adminID, "/pause Football | 32.13")), `Error: parse "32.13"`)

	a, _ = newAdmin(&fakeService{err: polls.ErrNotFound})
	assert.Contains(t, a.Handle(ctx, command(adminID, "/delete Chess")), "poll not found")

	a, _ = newAdmin(&fakeService{err: errors.New("conn refused")})
	reply := a.Handle(ctx, command(adminID, "/polls"))
	assert.NotContains(t, reply, "conn refused")
}

func TestAdmin_SyncAndCache(t *testing.T) {
	a, cache := newAdmin(&fakeService{})
	ctx := context.Background()

	assert.Contains(t, a.Handle(ctx, command(adminID, "/sync")), "sent: 1")
	assert.Equal(t, "Cache cleared.", a.Handle(ctx, command(adminID, "/clearcache")))
	assert.Equal(t, 1, cache.n)
}

func TestFormatPolls(t *testing.T) {
	assert.Contains(t, formatPolls(nil), "No polls yet")

	last := models.Date{Year: 2024, Month: 11, Day: 19}
	out := formatPolls([]models.Poll{{
		Title:                 "Football",
		ChatID:                "@club",
		Weekdays:              []models.Weekday{models.Tuesday},
		SendTime:              models.SendTime{Hour: 9},
		SkipDates:             []string{"2024-12-31"},
		BlockAnswerDeltaHours: 24,
		LastSendDate:          &last,
		IsBlocked:             true,
	}})
	assert.Equal(t, "• Football → @club\n  tue at 09:00, closes after 24h\n  paused: 2024-12-31\n  last sent 2024-11-19 (closed)", out)
}
