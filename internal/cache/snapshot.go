package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

const (
	KeyAllPolls = "poll:all"
	KeyAllChats = "chat:all"
)

// Snapshot serves a full table listing from the cache and falls back to the
// store on a miss or on any cache failure. Cache writes are best effort.
type Snapshot[T any] struct {
	cache Cache
	key   string
	load  func(ctx context.Context) ([]T, error)
	ttl   time.Duration
	log   *slog.Logger
}

func NewSnapshot[T any](cache Cache, key string, load func(context.Context) ([]T, error), ttl time.Duration, log *slog.Logger) *Snapshot[T] {
	return &Snapshot[T]{cache: cache, key: key, load: load, ttl: ttl, log: log.With("key", key)}
}

func (s *Snapshot[T]) List(ctx context.Context) ([]T, error) {
	b, err := s.cache.Get(ctx, s.key)
	switch {
	case err == nil:
		var items []T
		decodeErr := json.Unmarshal(b, &items)
		if decodeErr == nil {
			return items, nil
		}
		s.log.Warn("cached snapshot is unreadable", "error", decodeErr)
	case !errors.Is(err, ErrMiss):
		s.log.Warn("cache read failed, reading store", "error", err)
	}

	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(items); err != nil {
		s.log.Warn("encode snapshot for cache", "error", err)
	} else if err := s.cache.Set(ctx, s.key, b, s.ttl); err != nil {
		s.log.Warn("cache write failed", "error", err)
	}
	return items, nil
}

func (s *Snapshot[T]) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, s.key); err != nil {
		s.log.Warn("cache invalidation failed", "error", err)
	}
}

type PollLoader interface {
	ListAll(ctx context.Context) ([]models.Poll, error)
}

type PollSnapshot = Snapshot[models.Poll]

func NewPollSnapshot(cache Cache, store PollLoader, ttl time.Duration, log *slog.Logger) *PollSnapshot {
	return NewSnapshot(cache, KeyAllPolls, store.ListAll, ttl, log)
}

type ChatLoader interface {
	ListAll(ctx context.Context) ([]models.Chat, error)
}

type ChatSnapshot = Snapshot[models.Chat]

func NewChatSnapshot(cache Cache, store ChatLoader, ttl time.Duration, log *slog.Logger) *ChatSnapshot {
	return NewSnapshot(cache, KeyAllChats, store.ListAll, ttl, log)
}
