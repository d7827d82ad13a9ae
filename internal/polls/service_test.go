package polls

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikitkaralius/weeklypoll/internal/dates"
	"github.com/nikitkaralius/weeklypoll/internal/models"
)

type memStore struct {
	polls  map[int64]*models.Poll
	nextID int64
}

func newMemStore() *memStore { return &memStore{polls: map[int64]*models.Poll{}} }

func (s *memStore) ListAll(context.Context) ([]models.Poll, error) {
	var res []models.Poll
	for _, p := range s.polls {
		res = append(res, *p)
	}
	return res, nil
}

func (s *memStore) Get(_ context.Context, id int64) (*models.Poll, error) {
	p, ok := s.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetByTitle(_ context.Context, title string) (*models.Poll, error) {
	for _, p := range s.polls {
		if p.Title == title {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) Create(_ context.Context, p *models.Poll) error {
	if _, err := s.GetByTitle(context.Background(), p.Title); err == nil {
		return ErrTitleTaken
	}
	s.nextID++
	p.ID = s.nextID
	cp := *p
	s.polls[p.ID] = &cp
	return nil
}

func (s *memStore) Update(_ context.Context, id int64, upd models.PollUpdate) (*models.Poll, error) {
	p, ok := s.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.SkipDates != nil {
		p.SkipDates = *upd.SkipDates
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.polls[id]; !ok {
		return ErrNotFound
	}
	delete(s.polls, id)
	return nil
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate(context.Context) { c.n++ }

type storeLister struct{ s *memStore }

func (l storeLister) List(ctx context.Context) ([]models.Poll, error) { return l.s.ListAll(ctx) }

func newService(t *testing.T) (*Service, *memStore, *countingCache) {
	t.Helper()
	// Tuesday 2024-11-19 in Moscow
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.November, 19, 9, 0, 0, 0, time.UTC))
	resolver, err := dates.NewResolver("Europe/Moscow", clock)
	require.NoError(t, err)

	store, cache := newMemStore(), &countingCache{}
	return NewService(store, storeLister{store}, cache, resolver, slog.New(slog.DiscardHandler)), store, cache
}

func validPoll() *models.Poll {
	return &models.Poll{
		Title:                 " Football ",
		ChatID:                "-100",
		Topic:                 "Coming?",
		Options:               []string{" Yes ", "No"},
		Weekdays:              []models.Weekday{models.Tuesday},
		SendTime:              models.SendTime{Hour: 14},
		SkipDates:             []string{"2024-12-31", "2024-12-31"},
		BlockAnswerDeltaHours: 24,
	}
}

func TestService_Create(t *testing.T) {
	svc, store, cache := newService(t)
	ctx := context.Background()

	p := validPoll()
	require.NoError(t, svc.Create(ctx, p))
	assert.Equal(t, "Football", store.polls[p.ID].Title)
	assert.Equal(t, []string{"Yes", "No"}, store.polls[p.ID].Options)
	assert.Equal(t, []string{"2024-12-31"}, store.polls[p.ID].SkipDates)
	assert.Equal(t, 1, cache.n)

	assert.ErrorIs(t, svc.Create(ctx, validPoll()), ErrTitleTaken)
	assert.Equal(t, 1, cache.n)
}

func TestService_PauseResumeClear(t *testing.T) {
	svc, store, cache := newService(t)
	ctx := context.Background()
	p := validPoll()
	require.NoError(t, svc.Create(ctx, p))

	got, err := svc.Pause(ctx, "Football", "27.11-29.11, 31.12")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-11-27", "2024-11-28", "2024-11-29", "2024-12-31"}, got.SkipDates)

	got, err = svc.Resume(ctx, "Football", "28.11, 01.01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-11-27", "2024-11-29", "2024-12-31"}, got.SkipDates)

	got, err = svc.ClearPauses(ctx, "Football")
	require.NoError(t, err)
	assert.Empty(t, got.SkipDates)
	assert.Equal(t, 4, cache.n)

	_, err = svc.Pause(ctx, "Football", "31.02")
	var pe *dates.ParseError
	assert.ErrorAs(t, err, &pe)
	assert.True(t, IsUserError(err))
	assert.Empty(t, store.polls[p.ID].SkipDates)
	assert.Equal(t, 4, cache.n)
}

func TestService_Delete(t *testing.T) {
	svc, store, cache := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, validPoll()))

	require.NoError(t, svc.Delete(ctx, "Football"))
	assert.Empty(t, store.polls)
	assert.Equal(t, 2, cache.n)

	err := svc.Delete(ctx, "Football")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsUserError(err))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(p *models.Poll){
		"title":    func(p *models.Poll) { p.Title = "  " },
		"topic":    func(p *models.Poll) { p.Topic = string(make([]rune, TopicLenMax+1)) + "x" },
		"chat":     func(p *models.Poll) { p.ChatID = "" },
		"options":  func(p *models.Poll) { p.Options = []string{"only"} },
		"weekdays": func(p *models.Poll) { p.Weekdays = []models.Weekday{"funday"} },
		"block":    func(p *models.Poll) { p.BlockAnswerDeltaHours = -1 },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			p := validPoll()
			mutate(p)
			var ve *ValidationError
			require.ErrorAs(t, Validate(p), &ve)
			assert.Contains(t, ve.Field, field)
		})
	}

	require.NoError(t, Validate(validPoll()))
}
