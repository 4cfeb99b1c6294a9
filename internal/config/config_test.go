package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	// Replay mode needs a source; everything else must validate as shipped.
	cfg.Feed.ReplayPath = "testdata/bars.csv"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should validate cleanly, got: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "paper" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"zero tick size", func(c *Config) { c.Session.TickSize = 0 }},
		{"no symbols", func(c *Config) { c.Session.Symbols = nil }},
		{"narrow >= wide", func(c *Config) {
			c.Strategy.NarrowThreshold = 1.5
			c.Strategy.WideThreshold = 1.3
		}},
		{"entry zone inverted", func(c *Config) {
			c.Strategy.EntryZoneLow = 1.0
			c.Strategy.EntryZoneHigh = 0.5
		}},
		{"cutoff after flatten", func(c *Config) {
			c.Strategy.EntryCutoffMinutes = 400
			c.Strategy.FlattenMinutes = 375
		}},
		{"positive loss cap", func(c *Config) { c.Risk.DailyLossCapR = 3.0 }},
		{"negative profit cap", func(c *Config) { c.Risk.DailyProfitCapR = -4.0 }},
		{"live mode without ws url", func(c *Config) {
			c.Mode = "live"
			c.Feed.WSURL = ""
		}},
		{"replay mode without path", func(c *Config) {
			c.Mode = "replay"
			c.Feed.ReplayPath = ""
		}},
		{"s3 enabled without bucket", func(c *Config) {
			c.S3.Enabled = true
			c.S3.Bucket = ""
		}},
		{"context without symbol", func(c *Config) {
			c.Contexts = []ContextConfig{{AvgIB20: 12.5}}
		}},
		{"context with inverted prior day range", func(c *Config) {
			c.Contexts = []ContextConfig{{
				Symbol:       "ES",
				AvgIB20:      12.5,
				PriorDayHigh: 5000,
				PriorDayLow:  5010,
			}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			// Defaults validate; give replay mode a path so only the
			// mutation under test can fail.
			cfg.Feed.ReplayPath = "testdata/bars.csv"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error for %q, got nil", tc.name)
			}
			if !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "replay"
log_level = "debug"

[session]
symbols = ["ES", "NQ"]
tick_size = 0.25

[feed]
replay_path = "testdata/bars.csv"

[strategy]
min_score = 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("IBFADE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("IBFADE_RISK_MAX_CONSECUTIVE_LOSSES", "2")
	t.Setenv("IBFADE_SESSION_SYMBOLS", "ES,RTY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "replay" {
		t.Fatalf("mode = %q, want replay", cfg.Mode)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Strategy.MinScore != 5 {
		t.Fatalf("min_score = %d, want 5", cfg.Strategy.MinScore)
	}
	// File value untouched by env keeps its default.
	if cfg.Strategy.ExtensionCap != 1.5 {
		t.Fatalf("extension_cap = %v, want default 1.5", cfg.Strategy.ExtensionCap)
	}
	// Env overrides win over both defaults and file values.
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("redis addr = %q, want env override", cfg.Redis.Addr)
	}
	if cfg.Risk.MaxConsecutiveLosses != 2 {
		t.Fatalf("max_consecutive_losses = %d, want 2", cfg.Risk.MaxConsecutiveLosses)
	}
	if len(cfg.Session.Symbols) != 2 || cfg.Session.Symbols[1] != "RTY" {
		t.Fatalf("symbols = %v, want [ES RTY]", cfg.Session.Symbols)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
