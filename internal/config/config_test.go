package config

import (
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "batch" },
			want:   "unknown mode",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "trace" },
			want:   "unknown log_level",
		},
		{
			name: "unordered thresholds",
			mutate: func(c *Config) {
				c.Settlement.WarningThreshold = c.Settlement.SafeThreshold + 1
			},
			want: "strictly ordered",
		},
		{
			name:   "zero liquidation threshold",
			mutate: func(c *Config) { c.Settlement.LiquidationThreshold = 0 },
			want:   "liquidation_threshold must be > 0",
		},
		{
			name:   "empty settlement cron",
			mutate: func(c *Config) { c.Scheduler.SettlementCron = "" },
			want:   "settlement_cron",
		},
		{
			name:   "bad server port",
			mutate: func(c *Config) { c.Server.Port = 70000 },
			want:   "port must be 1-65535",
		},
		{
			name:   "badge key without url",
			mutate: func(c *Config) { c.Badge.APIKey = "secret" },
			want:   "badge: base_url is required",
		},
		{
			name: "pool min exceeds max",
			mutate: func(c *Config) {
				c.Postgres.PoolMinConns = 20
				c.Postgres.PoolMaxConns = 5
			},
			want: "pool_min_conns must not exceed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FXARENA_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("FXARENA_SERVER_PORT", "9001")
	t.Setenv("FXARENA_SCHEDULER_SWEEP_INTERVAL", "45s")
	t.Setenv("FXARENA_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("FXARENA_S3_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("password override not applied, got %q", cfg.Postgres.Password)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("port override not applied, got %d", cfg.Server.Port)
	}
	if got := cfg.Scheduler.SweepInterval.Duration.String(); got != "45s" {
		t.Errorf("sweep interval override not applied, got %s", got)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins override not applied, got %v", cfg.Server.CORSOrigins)
	}
	if !cfg.S3.Enabled {
		t.Error("s3 enabled override not applied")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "dbpass"
	cfg.Redis.Password = "redispass"
	cfg.Server.APIKey = "apikey"
	cfg.Notify.TelegramToken = "tgtoken"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"postgres password": red.Postgres.Password,
		"redis password":    red.Redis.Password,
		"server api key":    red.Server.APIKey,
		"telegram token":    red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s not redacted, got %q", name, got)
		}
	}

	// The original must be untouched.
	if cfg.Postgres.Password != "dbpass" {
		t.Error("redaction mutated the original config")
	}
}
