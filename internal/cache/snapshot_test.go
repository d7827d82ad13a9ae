package cache

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

type countingStore struct {
	polls []models.Poll
	err   error
	calls int
}

func (s *countingStore) ListAll(context.Context) ([]models.Poll, error) {
	s.calls++
	return s.polls, s.err
}

func newSnapshot(t *testing.T) (*PollSnapshot, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	last := models.Date{Year: 2024, Month: time.November, Day: 19}
	store := &countingStore{polls: []models.Poll{{
		ID:           1,
		Title:        "standup",
		Weekdays:     []models.Weekday{models.Tuesday},
		SendTime:     models.SendTime{Hour: 14},
		SkipDates:    []string{"2024-12-31"},
		LastSendDate: &last,
		MessageID:    models.Ptr(42),
	}}}
	snap := NewPollSnapshot(NewRedisCache(client, "test:"), store, 10*time.Second, slog.New(slog.DiscardHandler))
	return snap, store, mr
}

func TestPollSnapshot_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	snap, store, mr := newSnapshot(t)

	first, err := snap.List(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:"+KeyAllPolls))

	second, err := snap.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, "2024-11-19", second[0].LastSendDate.String())
	assert.Equal(t, 42, *second[0].MessageID)

	snap.Invalidate(ctx)
	assert.False(t, mr.Exists("test:"+KeyAllPolls))

	_, err = snap.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestPollSnapshot_Expires(t *testing.T) {
	ctx := context.Background()
	snap, store, mr := newSnapshot(t)

	_, err := snap.List(ctx)
	require.NoError(t, err)
	mr.FastForward(11 * time.Second)

	_, err = snap.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestPollSnapshot_FallsBackWhenCacheIsDown(t *testing.T) {
	ctx := context.Background()
	snap, store, mr := newSnapshot(t)
	mr.Close()

	polls, err := snap.List(ctx)
	require.NoError(t, err)
	assert.Len(t, polls, 1)
	assert.Equal(t, 1, store.calls)

	// invalidation is best effort
	snap.Invalidate(ctx)
}

func TestPollSnapshot_IgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	snap, store, mr := newSnapshot(t)
	require.NoError(t, mr.Set("test:"+KeyAllPolls, "not json"))

	polls, err := snap.List(ctx)
	require.NoError(t, err)
	assert.Len(t, polls, 1)
	assert.Equal(t, 1, store.calls)
}

func TestPollSnapshot_StoreError(t *testing.T) {
	snap, store, _ := newSnapshot(t)
	store.err = errors.New("db down")

	_, err := snap.List(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestRedisCache_Miss(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")

	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMiss)
}

type chatStore struct{ chats []models.Chat }

func (s *chatStore) ListAll(context.Context) ([]models.Chat, error) { return s.chats, nil }

func TestChatSnapshot_UsesOwnKey(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &chatStore{chats: []models.Chat{{ID: "-100123", Title: "Team", IsGroup: true}}}
	snap := NewChatSnapshot(NewRedisCache(client, "test:"), store, time.Minute, slog.New(slog.DiscardHandler))

	chats, err := snap.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.chats, chats)
	assert.True(t, mr.Exists("test:"+KeyAllChats))
	assert.False(t, mr.Exists("test:"+KeyAllPolls))

	store.chats = nil
	cached, err := snap.List(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}
