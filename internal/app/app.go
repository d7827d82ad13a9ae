// Package app wires the pieces shared by the bot and worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikitkaralius/weeklypoll/internal/async"
	"github.com/nikitkaralius/weeklypoll/internal/cache"
	"github.com/nikitkaralius/weeklypoll/internal/chats"
	"github.com/nikitkaralius/weeklypoll/internal/config"
	"github.com/nikitkaralius/weeklypoll/internal/dates"
	"github.com/nikitkaralius/weeklypoll/internal/engine"
	"github.com/nikitkaralius/weeklypoll/internal/logger"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
	"github.com/nikitkaralius/weeklypoll/internal/storage"
	"github.com/nikitkaralius/weeklypoll/internal/telegram"
	"github.com/nikitkaralius/weeklypoll/internal/utils"
)

// Deps holds the long lived clients of a process.
type Deps struct {
	Config   *config.Config
	Log      logger.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Bot      *tgbotapi.BotAPI
	Store    *polls.Repository
	Snapshot *cache.PollSnapshot
	Chats    *chats.Registry
	Resolver *dates.Resolver
	Gateway  *telegram.Gateway
}

// NewLogger builds the process logger, reporting to Sentry when configured.
// The returned func flushes pending Sentry events.
func NewLogger(cfg *config.Config, release string) (logger.Logger, func(), error) {
	if cfg.SentryDSN == "" {
		return logger.New(cfg.LogLevel), func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     cfg.SentryDSN,
		Release: release,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init sentry: %w", err)
	}
	return logger.NewWithSentry(cfg.LogLevel), func() { sentry.Flush(2 * time.Second) }, nil
}

// Open connects to PostgreSQL, Redis and Telegram and applies migrations.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Deps, error) {
	pool, err := storage.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := utils.WaitForDB(ctx, pool, 2*time.Minute, 2*time.Second); err != nil {
		pool.Close()
		return nil, err
	}
	if err := storage.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// the snapshot falls back to the store, so a missing cache is not fatal
		log.Warn("redis unavailable, reading polls from the database", "addr", cfg.RedisAddr, "error", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	bot.Debug = cfg.LogVerbose
	log.Info("authorized on telegram", "username", bot.Self.UserName)

	resolver, err := dates.NewResolver(cfg.Timezone, nil)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}

	store := polls.NewRepository(pool)
	rc := cache.NewRedisCache(rdb, "weeklypoll:")
	chatStore := chats.NewRepository(pool)
	return &Deps{
		Config:   cfg,
		Log:      log,
		Pool:     pool,
		Redis:    rdb,
		Bot:      bot,
		Store:    store,
		Snapshot: cache.NewPollSnapshot(rc, store, cfg.CacheTTL, log),
		Chats:    chats.NewRegistry(chatStore, cache.NewChatSnapshot(rc, chatStore, cfg.CacheTTL, log), log),
		Resolver: resolver,
		Gateway:  telegram.NewGateway(bot),
	}, nil
}

// Engine builds the decision engine. enq may be nil.
func (d *Deps) Engine(enq async.Enqueuer) *engine.Engine {
	return engine.New(d.Snapshot, d.Store, d.Gateway, d.Resolver, enq, engine.Config{
		Workers:     d.Config.TickWorkers,
		TickTimeout: d.Config.TickTimeout,
	}, d.Log)
}

func (d *Deps) Close() {
	_ = d.Redis.Close()
	d.Pool.Close()
}
