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
// built-in defaults, applies PREDAGG_* environment variable overrides, and
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

// applyEnvOverrides reads well-known PREDAGG_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDAGG_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDAGG_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDAGG_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDAGG_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDAGG_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDAGG_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDAGG_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDAGG_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDAGG_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDAGG_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDAGG_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDAGG_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDAGG_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDAGG_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDAGG_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDAGG_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDAGG_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDAGG_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDAGG_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDAGG_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDAGG_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDAGG_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "PREDAGG_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.APIKey, "OPENAI_API_KEY") // compatibility alias, applied first so PREDAGG_* wins
	setStr(&cfg.Oracle.APIKey, "PREDAGG_ORACLE_API_KEY")
	setStr(&cfg.Oracle.Model, "PREDAGG_ORACLE_MODEL")
	setDuration(&cfg.Oracle.Timeout, "PREDAGG_ORACLE_TIMEOUT")

	// ── Sources ──
	setStr(&cfg.Sources.PolymarketHost, "PREDAGG_SOURCES_POLYMARKET_HOST")
	setStr(&cfg.Sources.KalshiHost, "PREDAGG_SOURCES_KALSHI_HOST")
	setInt(&cfg.Sources.PageSize, "PREDAGG_SOURCES_PAGE_SIZE")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "PREDAGG_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.Interval, "PREDAGG_PIPELINE_INTERVAL")
	setBool(&cfg.Pipeline.ArchiveEnabled, "PREDAGG_PIPELINE_ARCHIVE_ENABLED")
	setDuration(&cfg.Pipeline.ArchiveInterval, "PREDAGG_PIPELINE_ARCHIVE_INTERVAL")
	setStr(&cfg.Pipeline.ArchivePrefix, "PREDAGG_PIPELINE_ARCHIVE_PREFIX")

	// ── Signal ──
	setFloat64(&cfg.Signal.DefaultMaxBetSize, "PREDAGG_SIGNAL_DEFAULT_MAX_BET_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDAGG_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDAGG_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDAGG_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDAGG_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PREDAGG_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDAGG_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDAGG_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDAGG_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDAGG_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDAGG_MODE")
	setStr(&cfg.LogLevel, "PREDAGG_LOG_LEVEL")
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
