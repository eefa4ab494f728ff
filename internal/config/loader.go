package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FXARENA_* environment variable overrides, and
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

// applyEnvOverrides reads well-known FXARENA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FXARENA_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FXARENA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FXARENA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FXARENA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FXARENA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FXARENA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FXARENA_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FXARENA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FXARENA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FXARENA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FXARENA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FXARENA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FXARENA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FXARENA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FXARENA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FXARENA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FXARENA_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FXARENA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FXARENA_S3_REGION")
	setStr(&cfg.S3.Bucket, "FXARENA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FXARENA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FXARENA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FXARENA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FXARENA_S3_FORCE_PATH_STYLE")

	// ── Settlement ──
	setFloat64(&cfg.Settlement.SafeThreshold, "FXARENA_SETTLEMENT_SAFE_THRESHOLD")
	setFloat64(&cfg.Settlement.WarningThreshold, "FXARENA_SETTLEMENT_WARNING_THRESHOLD")
	setFloat64(&cfg.Settlement.CallThreshold, "FXARENA_SETTLEMENT_CALL_THRESHOLD")
	setFloat64(&cfg.Settlement.LiquidationThreshold, "FXARENA_SETTLEMENT_LIQUIDATION_THRESHOLD")
	setDuration(&cfg.Settlement.CheckInterval, "FXARENA_SETTLEMENT_CHECK_INTERVAL")
	setInt(&cfg.Settlement.Precision, "FXARENA_SETTLEMENT_PRECISION")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.SweepInterval, "FXARENA_SCHEDULER_SWEEP_INTERVAL")
	setStr(&cfg.Scheduler.SettlementCron, "FXARENA_SCHEDULER_SETTLEMENT_CRON")
	setStr(&cfg.Scheduler.ArchiveCron, "FXARENA_SCHEDULER_ARCHIVE_CRON")
	setInt(&cfg.Scheduler.ArchiveRetentionDays, "FXARENA_SCHEDULER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Scheduler.LockTTL, "FXARENA_SCHEDULER_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FXARENA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FXARENA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FXARENA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FXARENA_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "FXARENA_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "FXARENA_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FXARENA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FXARENA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FXARENA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FXARENA_NOTIFY_EVENTS")

	// ── Badge ──
	setStr(&cfg.Badge.BaseURL, "FXARENA_BADGE_BASE_URL")
	setStr(&cfg.Badge.APIKey, "FXARENA_BADGE_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "FXARENA_MODE")
	setStr(&cfg.LogLevel, "FXARENA_LOG_LEVEL")
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
