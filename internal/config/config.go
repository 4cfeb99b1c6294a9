// Package config defines the top-level configuration for the IB fade bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by IBFADE_* environment variables.
type Config struct {
	Session  SessionConfig   `toml:"session"`
	Strategy StrategyConfig  `toml:"strategy"`
	Risk     RiskConfig      `toml:"risk"`
	Feed     FeedConfig      `toml:"feed"`
	Database DatabaseConfig  `toml:"database"`
	Redis    RedisConfig     `toml:"redis"`
	S3       S3Config        `toml:"s3"`
	Notify   NotifyConfig    `toml:"notify"`
	Contexts []ContextConfig `toml:"context"`
	Mode     string          `toml:"mode"`
	LogLevel string          `toml:"log_level"`
}

// SessionConfig describes the traded session: which symbols run an engine
// and how the session clock and price grid are laid out. All times are
// minutes from the session open so replays stay deterministic.
type SessionConfig struct {
	Symbols         []string `toml:"symbols"`
	TickSize        float64  `toml:"tick_size"`
	IBWindowMinutes int      `toml:"ib_window_minutes"`
	ValueAreaPct    float64  `toml:"value_area_pct"`
}

// StrategyConfig holds the fade-setup thresholds. The backtest-sensitive
// knobs (width cutoffs, entry zone, stop multiple) are configuration on
// purpose; the defaults are the documented starting values, not optimized.
type StrategyConfig struct {
	NarrowThreshold  float64 `toml:"narrow_threshold"`
	WideThreshold    float64 `toml:"wide_threshold"`
	ExtensionCap     float64 `toml:"extension_cap"`
	EntryZoneLow     float64 `toml:"entry_zone_low"`
	EntryZoneHigh    float64 `toml:"entry_zone_high"`
	StopMultiple     float64 `toml:"stop_multiple"`
	MinRiskReward    float64 `toml:"min_risk_reward"`
	MinScore         int     `toml:"min_score"`
	WickBodyRatio    float64 `toml:"wick_body_ratio"`
	VolumeClimaxMult float64 `toml:"volume_climax_mult"`
	POCStallTicks    int     `toml:"poc_stall_ticks"`

	// Session-relative cutoffs, minutes from the open.
	EntryCutoffMinutes  int `toml:"entry_cutoff_minutes"`
	OptimalWindowEndMin int `toml:"optimal_window_end_minutes"`
	TightenStopsMinutes int `toml:"tighten_stops_minutes"`
	FlattenMinutes      int `toml:"flatten_minutes"`

	// Position management.
	TimeStopMinutes    int     `toml:"time_stop_minutes"`
	TimeStopProgress   float64 `toml:"time_stop_progress"`
	PriorDayConviction float64 `toml:"prior_day_conviction"`
	VIXJumpPct         float64 `toml:"vix_jump_pct"`

	// Size multipliers applied on top of score-tier sizing.
	NarrowSizeMult float64 `toml:"narrow_size_mult"`
	MediumSizeMult float64 `toml:"medium_size_mult"`
	WideSizeMult   float64 `toml:"wide_size_mult"`
}

// RiskConfig holds the daily risk caps enforced by the governor.
type RiskConfig struct {
	DailyLossCapR        float64 `toml:"daily_loss_cap_r"`
	DailyProfitCapR      float64 `toml:"daily_profit_cap_r"`
	MaxConsecutiveLosses int     `toml:"max_consecutive_losses"`
	// AggregateAcrossSymbols shares one DailyRiskState between all symbol
	// engines through the Redis risk-state store.
	AggregateAcrossSymbols bool `toml:"aggregate_across_symbols"`
}

// FeedConfig holds bar-feed parameters for live and replay modes.
type FeedConfig struct {
	WSURL      string `toml:"ws_url"`
	ReplayPath string `toml:"replay_path"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the session
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Enabled        bool   `toml:"enabled"`
}

// NotifyConfig holds notification channel parameters.
type NotifyConfig struct {
	TelegramToken      string   `toml:"telegram_token"`
	TelegramChatID     string   `toml:"telegram_chat_id"`
	DiscordWebhook     string   `toml:"discord_webhook"`
	Events             []string `toml:"events"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// ContextConfig seeds one symbol's session context: the prior-day reference
// levels and the 20-day average IB range. When session history exists in the
// database the average IB is recomputed from it and this seed is overridden.
type ContextConfig struct {
	Symbol       string  `toml:"symbol"`
	PriorDayHigh float64 `toml:"prior_day_high"`
	PriorDayLow  float64 `toml:"prior_day_low"`
	PriorDayPOC  float64 `toml:"prior_day_poc"`
	PriorDayVAH  float64 `toml:"prior_day_vah"`
	PriorDayVAL  float64 `toml:"prior_day_val"`
	AvgIB20      float64 `toml:"avg_ib_20"`
	VIX          float64 `toml:"vix"`
}

// Defaults returns a Config populated with the documented default
// parameters: a 60-minute IB, 0.70/1.30 width cutoffs, 1.5x extension cap,
// 0.5-1.0x entry zone, 0.5x stop, 2.0 minimum R:R, the 14:30/15:45 session
// cutoffs (minutes 300/375 from a 9:30 open), and -3R/+4R daily caps.
func Defaults() Config {
	return Config{
		Mode:     "replay",
		LogLevel: "info",
		Session: SessionConfig{
			Symbols:         []string{"MES"},
			TickSize:        0.25,
			IBWindowMinutes: 60,
			ValueAreaPct:    0.70,
		},
		Strategy: StrategyConfig{
			NarrowThreshold:     0.70,
			WideThreshold:       1.30,
			ExtensionCap:        1.5,
			EntryZoneLow:        0.5,
			EntryZoneHigh:       1.0,
			StopMultiple:        0.5,
			MinRiskReward:       2.0,
			MinScore:            4,
			WickBodyRatio:       2.0,
			VolumeClimaxMult:    2.0,
			POCStallTicks:       4,
			EntryCutoffMinutes:  300,
			OptimalWindowEndMin: 180,
			TightenStopsMinutes: 330,
			FlattenMinutes:      375,
			TimeStopMinutes:     90,
			TimeStopProgress:    0.5,
			PriorDayConviction:  0.10,
			VIXJumpPct:          0.10,
			NarrowSizeMult:      0.5,
			MediumSizeMult:      1.0,
			WideSizeMult:        1.0,
		},
		Risk: RiskConfig{
			DailyLossCapR:        -3.0,
			DailyProfitCapR:      4.0,
			MaxConsecutiveLosses: 3,
		},
		Database: DatabaseConfig{
			SSLMode:      "disable",
			PoolMaxConns: 4,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Notify: NotifyConfig{
			RateLimitPerMinute: 20,
		},
	}
}

var validModes = map[string]bool{
	"replay": true,
	"live":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for internal consistency and returns an
// error listing every failed check. It must be called before the engine is
// constructed; a misconfigured threshold never reaches the decision path.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: replay, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Session
	if len(c.Session.Symbols) == 0 {
		errs = append(errs, "session: at least one symbol is required")
	}
	if c.Session.TickSize <= 0 {
		errs = append(errs, "session: tick_size must be positive")
	}
	if c.Session.IBWindowMinutes <= 0 {
		errs = append(errs, "session: ib_window_minutes must be positive")
	}
	if c.Session.ValueAreaPct <= 0 || c.Session.ValueAreaPct >= 1 {
		errs = append(errs, "session: value_area_pct must be in (0,1)")
	}

	// Strategy thresholds
	s := c.Strategy
	if s.NarrowThreshold <= 0 || s.NarrowThreshold >= s.WideThreshold {
		errs = append(errs, "strategy: require 0 < narrow_threshold < wide_threshold")
	}
	if s.ExtensionCap <= 0 {
		errs = append(errs, "strategy: extension_cap must be positive")
	}
	if s.EntryZoneLow <= 0 || s.EntryZoneLow >= s.EntryZoneHigh || s.EntryZoneHigh > s.ExtensionCap {
		errs = append(errs, "strategy: require 0 < entry_zone_low < entry_zone_high <= extension_cap")
	}
	if s.StopMultiple <= 0 || s.StopMultiple >= 1 {
		errs = append(errs, "strategy: stop_multiple must be in (0,1)")
	}
	if s.MinRiskReward <= 0 {
		errs = append(errs, "strategy: min_risk_reward must be positive")
	}
	if s.MinScore < 0 || s.MinScore > 10 {
		errs = append(errs, "strategy: min_score must be in [0,10]")
	}

	// Cutoff ordering: IB close < entry cutoff < flatten.
	if c.Session.IBWindowMinutes >= s.EntryCutoffMinutes {
		errs = append(errs, "strategy: entry_cutoff_minutes must be after the IB window")
	}
	if s.EntryCutoffMinutes >= s.FlattenMinutes {
		errs = append(errs, "strategy: flatten_minutes must be after entry_cutoff_minutes")
	}
	if s.TightenStopsMinutes >= s.FlattenMinutes {
		errs = append(errs, "strategy: tighten_stops_minutes must be before flatten_minutes")
	}
	if s.TimeStopMinutes <= 0 {
		errs = append(errs, "strategy: time_stop_minutes must be positive")
	}
	if s.TimeStopProgress <= 0 || s.TimeStopProgress >= 1 {
		errs = append(errs, "strategy: time_stop_progress must be in (0,1)")
	}

	// Risk caps
	if c.Risk.DailyLossCapR >= 0 {
		errs = append(errs, "risk: daily_loss_cap_r must be negative")
	}
	if c.Risk.DailyProfitCapR <= 0 {
		errs = append(errs, "risk: daily_profit_cap_r must be positive")
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		errs = append(errs, "risk: max_consecutive_losses must be at least 1")
	}

	// Mode-specific collaborator config
	switch strings.ToLower(c.Mode) {
	case "live":
		if c.Feed.WSURL == "" {
			errs = append(errs, "feed: ws_url is required for live mode")
		}
	case "replay":
		if c.Feed.ReplayPath == "" {
			errs = append(errs, "feed: replay_path is required for replay mode")
		}
	}

	for i, sc := range c.Contexts {
		if sc.Symbol == "" {
			errs = append(errs, fmt.Sprintf("context[%d]: symbol is required", i))
		}
		if sc.AvgIB20 <= 0 {
			errs = append(errs, fmt.Sprintf("context[%d]: avg_ib_20 must be positive", i))
		}
		if sc.PriorDayHigh < sc.PriorDayLow {
			errs = append(errs, fmt.Sprintf("context[%d]: prior_day_high below prior_day_low", i))
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", domain.ErrInvalidConfiguration, strings.Join(errs, "\n  - "))
	}
	return nil
}
