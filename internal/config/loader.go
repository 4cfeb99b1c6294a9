package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies IBFADE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known IBFADE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject credentials at deploy time without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "IBFADE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "IBFADE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "IBFADE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "IBFADE_DATABASE_NAME")
	setStr(&cfg.Database.User, "IBFADE_DATABASE_USER")
	setStr(&cfg.Database.Password, "IBFADE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "IBFADE_DATABASE_SSLMODE")
	setBool(&cfg.Database.RunMigrations, "IBFADE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "IBFADE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "IBFADE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "IBFADE_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "IBFADE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "IBFADE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "IBFADE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "IBFADE_S3_REGION")
	setStr(&cfg.S3.Bucket, "IBFADE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "IBFADE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "IBFADE_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "IBFADE_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, "IBFADE_FEED_WS_URL")
	setStr(&cfg.Feed.ReplayPath, "IBFADE_FEED_REPLAY_PATH")

	// ── Session ──
	setStringSlice(&cfg.Session.Symbols, "IBFADE_SESSION_SYMBOLS")
	setFloat64(&cfg.Session.TickSize, "IBFADE_SESSION_TICK_SIZE")

	// ── Risk ──
	setFloat64(&cfg.Risk.DailyLossCapR, "IBFADE_RISK_DAILY_LOSS_CAP_R")
	setFloat64(&cfg.Risk.DailyProfitCapR, "IBFADE_RISK_DAILY_PROFIT_CAP_R")
	setInt(&cfg.Risk.MaxConsecutiveLosses, "IBFADE_RISK_MAX_CONSECUTIVE_LOSSES")
	setBool(&cfg.Risk.AggregateAcrossSymbols, "IBFADE_RISK_AGGREGATE_ACROSS_SYMBOLS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "IBFADE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "IBFADE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "IBFADE_NOTIFY_DISCORD_WEBHOOK")
	setStringSlice(&cfg.Notify.Events, "IBFADE_NOTIFY_EVENTS")
	setInt(&cfg.Notify.RateLimitPerMinute, "IBFADE_NOTIFY_RATE_LIMIT_PER_MINUTE")

	// ── Top-level ──
	setStr(&cfg.Mode, "IBFADE_MODE")
	setStr(&cfg.LogLevel, "IBFADE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
