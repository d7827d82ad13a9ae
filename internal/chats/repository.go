package chats

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

// Repository is the PostgreSQL table of chats the bot belongs to.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListAll(ctx context.Context) ([]models.Chat, error) {
	rows, err := r.pool.Query(ctx, `SELECT chat_id, title, is_group FROM chats ORDER BY title, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	chats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Chat, error) {
		var c models.Chat
		err := row.Scan(&c.ID, &c.Title, &c.IsGroup)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan chats: %w", err)
	}
	return chats, nil
}

// Upsert records c, refreshing the title of a chat already known.
func (r *Repository) Upsert(ctx context.Context, c models.Chat) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO chats (chat_id, title, is_group) VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET title = EXCLUDED.title, is_group = EXCLUDED.is_group`,
		c.ID, c.Title, c.IsGroup)
	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", c.ID, err)
	}
	return nil
}

// Remove forgets a chat. Removing an unknown chat is not an error.
func (r *Repository) Remove(ctx context.Context, chatID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM chats WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	return nil
}
