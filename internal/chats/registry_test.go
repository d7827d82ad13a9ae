package chats

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikitkaralius/weeklypoll/internal/models"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
)

// memChats is both the store and an uncached snapshot.
type memChats struct {
	chats       map[string]models.Chat
	invalidated int
}

func (m *memChats) Upsert(_ context.Context, c models.Chat) error {
	m.chats[c.ID] = c
	return nil
}

func (m *memChats) Remove(_ context.Context, chatID string) error {
	delete(m.chats, chatID)
	return nil
}

func (m *memChats) List(context.Context) ([]models.Chat, error) {
	var res []models.Chat
	for _, c := range m.chats {
		res = append(res, c)
	}
	return res, nil
}

func (m *memChats) Invalidate(context.Context) { m.invalidated++ }

func newRegistry() (*Registry, *memChats) {
	m := &memChats{chats: map[string]models.Chat{}}
	return NewRegistry(m, m, slog.New(slog.DiscardHandler)), m
}

func TestRegistry_JoinedAndLeft(t *testing.T) {
	ctx := context.Background()
	r, m := newRegistry()

	require.NoError(t, r.Joined(ctx, models.Chat{ID: "-100123", Title: "Football", IsGroup: true}))
	require.NoError(t, r.Joined(ctx, models.Chat{ID: "-100123", Title: "Football club", IsGroup: true}))
	chats, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Chat{{ID: "-100123", Title: "Football club", IsGroup: true}}, chats)

	require.NoError(t, r.Left(ctx, "-100123"))
	chats, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
	assert.Equal(t, 3, m.invalidated)
}

func TestRegistry_Resolve(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	require.NoError(t, r.Joined(ctx, models.Chat{ID: "-100123", Title: "Football", IsGroup: true}))
	require.NoError(t, r.Joined(ctx, models.Chat{ID: "-100200", Title: "Chess"}))
	require.NoError(t, r.Joined(ctx, models.Chat{ID: "-100201", Title: "chess"}))

	ok := map[string]string{
		"football":  "-100123",
		" Football": "-100123",
		"-100999":   "-100999",
		"@team":     "@team",
	}
	for ref, want := range ok {
		got, err := r.Resolve(ctx, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, want, got, ref)
	}

	for _, ref := range []string{"Basketball", "Chess", "@"} {
		_, err := r.Resolve(ctx, ref)
		assert.True(t, polls.IsUserError(err), ref)
	}
}
