package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken string
	PostgresDSN   string
	AdminIDs      []int64

	RedisAddr     string
	RedisDB       int
	RedisPassword string
	CacheTTL      time.Duration

	Timezone         string
	SchedulerMode    string
	TickInterval     time.Duration
	TickTimeout      time.Duration
	TickWorkers      int
	GraceWindow      time.Duration
	CloseJobAttempts int
	WorkerMaxJobs    int

	LogLevel   slog.Level
	LogVerbose bool
	SentryDSN  string
}

var defaults = map[string]any{
	"redis_addr":         "localhost:6379",
	"redis_db":           0,
	"cache_ttl":          "10s",
	"timezone":           "Europe/Moscow",
	"scheduler_mode":     "tick",
	"tick_interval":      "60s",
	"tick_timeout":       "50s",
	"tick_workers":       8,
	"grace_window":       "30m",
	"close_job_attempts": 5,
	"worker_max_jobs":    10,
	"log_level":          "info",
	"log_verbose":        false,
}

// Load reads .env when present and then the environment. Any KEY may be
// given as KEY_FILE pointing at a file holding the value.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	r := reader{v: v}

	cfg := &Config{
		TelegramToken: r.str("telegram_bot_token"),
		PostgresDSN:   r.str("postgres_dsn"),
		AdminIDs:      r.ids("bot_admin_ids"),
		RedisAddr:     r.str("redis_addr"),
		RedisDB:       r.int("redis_db"),
		RedisPassword: r.str("redis_password"),
		CacheTTL:      r.duration("cache_ttl"),

		Timezone:         r.str("timezone"),
		SchedulerMode:    strings.ToLower(r.str("scheduler_mode")),
		TickInterval:     r.duration("tick_interval"),
		TickTimeout:      r.duration("tick_timeout"),
		TickWorkers:      r.int("tick_workers"),
		GraceWindow:      r.duration("grace_window"),
		CloseJobAttempts: r.int("close_job_attempts"),
		WorkerMaxJobs:    r.int("worker_max_jobs"),

		LogVerbose: r.bool("log_verbose"),
		SentryDSN:  r.str("sentry_dsn"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(r.str("log_level"))); err != nil {
		r.errs = append(r.errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if cfg.LogVerbose {
		cfg.LogLevel = slog.LevelDebug
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if c.SchedulerMode != "tick" && c.SchedulerMode != "cron" {
		errs = append(errs, fmt.Errorf("SCHEDULER_MODE must be tick or cron, got %q", c.SchedulerMode))
	}
	if c.TickInterval <= 0 || c.TickTimeout <= 0 || c.GraceWindow <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL, TICK_TIMEOUT and GRACE_WINDOW must be positive"))
	}
	if c.TickWorkers < 1 || c.CloseJobAttempts < 1 || c.WorkerMaxJobs < 1 {
		errs = append(errs, errors.New("TICK_WORKERS, CLOSE_JOB_ATTEMPTS and WORKER_MAX_JOBS must be at least 1"))
	}
	return errors.Join(errs...)
}

// reader collects conversion errors so all bad keys are reported at once.
type reader struct {
	v    *viper.Viper
	errs []error
}

func (r *reader) str(key string) string {
	file := r.v.GetString(key + "_file")
	if file == "" {
		return strings.TrimSpace(r.v.GetString(key))
	}
	data, err := os.ReadFile(file)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s_FILE: %w", strings.ToUpper(key), err))
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (r *reader) int(key string) int {
	n, err := cast.ToIntE(r.str(key))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: not an integer", strings.ToUpper(key)))
	}
	return n
}

func (r *reader) bool(key string) bool {
	b, err := cast.ToBoolE(r.str(key))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: not a boolean", strings.ToUpper(key)))
	}
	return b
}

func (r *reader) duration(key string) time.Duration {
	d, err := time.ParseDuration(r.str(key))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", strings.ToUpper(key), err))
	}
	return d
}

func (r *reader) ids(key string) []int64 {
	var ids []int64
	for _, part := range strings.Split(r.str(key), ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := cast.ToInt64E(part)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %q is not a user id", strings.ToUpper(key), part))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
