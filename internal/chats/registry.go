package chats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nikitkaralius/weeklypoll/internal/models"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
)

type Store interface {
	Upsert(ctx context.Context, c models.Chat) error
	Remove(ctx context.Context, chatID string) error
}

// Snapshot is the cached chat listing.
type Snapshot interface {
	List(ctx context.Context) ([]models.Chat, error)
	Invalidate(ctx context.Context)
}

// Registry tracks the chats the bot was added to and turns a chat title
// given by an admin into the chat id polls are sent to.
type Registry struct {
	store Store
	snap  Snapshot
	log   *slog.Logger
}

func NewRegistry(store Store, snap Snapshot, log *slog.Logger) *Registry {
	return &Registry{store: store, snap: snap, log: log}
}

func (r *Registry) Joined(ctx context.Context, c models.Chat) error {
	if err := r.store.Upsert(ctx, c); err != nil {
		return err
	}
	r.snap.Invalidate(ctx)
	r.log.Info("bot added to chat", "chat_id", c.ID, "title", c.Title)
	return nil
}

func (r *Registry) Left(ctx context.Context, chatID string) error {
	if err := r.store.Remove(ctx, chatID); err != nil {
		return err
	}
	r.snap.Invalidate(ctx)
	r.log.Info("bot removed from chat", "chat_id", chatID)
	return nil
}

func (r *Registry) List(ctx context.Context) ([]models.Chat, error) {
	return r.snap.List(ctx)
}

// Resolve returns the chat id for ref. A numeric id or an @channel name is
// used as is; anything else must match the title of exactly one known chat,
// ignoring case.
func (r *Registry) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if isChatID(ref) {
		return ref, nil
	}

	chats, err := r.snap.List(ctx)
	if err != nil {
		return "", err
	}
	var found []models.Chat
	for _, c := range chats {
		if strings.EqualFold(c.Title, ref) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return "", &polls.ValidationError{Field: "chat", Reason: fmt.Sprintf("bot is not in a chat titled %q, see /chats", ref)}
	case 1:
		return found[0].ID, nil
	}
	return "", &polls.ValidationError{Field: "chat", Reason: fmt.Sprintf("%d chats are titled %q, use the chat id", len(found), ref)}
}

func isChatID(s string) bool {
	if strings.HasPrefix(s, "@") {
		return len(s) > 1 && !strings.ContainsAny(s, " \t")
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
