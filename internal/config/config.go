// Package config defines the top-level configuration for the prediction
// aggregator and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PREDAGG_* environment
// variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Oracle   OracleConfig   `toml:"oracle"`
	Sources  SourcesConfig  `toml:"sources"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Signal   SignalConfig   `toml:"signal"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Vaults   []VaultConfig  `toml:"vaults"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. When DSN and Host
// are both empty the in-memory stores are used instead.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// Enabled reports whether a PostgreSQL backend has been configured.
func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != "" || strings.TrimSpace(c.Host) != ""
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// market cache and signal bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the snapshot
// archiver. An empty Bucket disables archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig holds the scoring-oracle API parameters. An empty APIKey means
// no oracle is configured, which is a valid deployment: the signal engine
// falls back to its deterministic heuristic.
type OracleConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Model   string   `toml:"model"`
	Timeout duration `toml:"timeout"`
}

// SourcesConfig holds the external platform API endpoints the aggregation
// pipeline pulls from. An empty host disables that source.
type SourcesConfig struct {
	PolymarketHost string `toml:"polymarket_host"`
	KalshiHost     string `toml:"kalshi_host"`
	PageSize       int    `toml:"page_size"`
}

// PipelineConfig holds the aggregation pipeline schedule.
type PipelineConfig struct {
	Enabled         bool     `toml:"enabled"`
	Interval        duration `toml:"interval"`
	ArchiveEnabled  bool     `toml:"archive_enabled"`
	ArchiveInterval duration `toml:"archive_interval"`
	ArchivePrefix   string   `toml:"archive_prefix"`
}

// SignalConfig holds signal-engine tunables.
type SignalConfig struct {
	DefaultMaxBetSize float64 `toml:"default_max_bet_size"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards the API; empty disables authentication.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// VaultConfig describes one vault provisioned at startup. Asset quantities
// are decimal strings in the token's smallest unit.
type VaultConfig struct {
	Address           string `toml:"address"`
	DepositToken      string `toml:"deposit_token"`
	TotalAssets       string `toml:"total_assets"`
	TotalShares       string `toml:"total_shares"`
	PerformanceFeeBps int64  `toml:"performance_fee_bps"`
	ManagementFeeBps  int64  `toml:"management_fee_bps"`
	MinDeposit        string `toml:"min_deposit"`
	VaultCap          string `toml:"vault_cap"`
}

// ToVaultInfo parses the decimal-string quantities into a domain.VaultInfo.
func (v VaultConfig) ToVaultInfo() (domain.VaultInfo, error) {
	info := domain.VaultInfo{
		Address:           v.Address,
		DepositToken:      v.DepositToken,
		PerformanceFeeBps: v.PerformanceFeeBps,
		ManagementFeeBps:  v.ManagementFeeBps,
	}

	var err error
	if info.TotalAssets, err = parseAmount(v.TotalAssets, "total_assets"); err != nil {
		return domain.VaultInfo{}, err
	}
	if info.TotalShares, err = parseAmount(v.TotalShares, "total_shares"); err != nil {
		return domain.VaultInfo{}, err
	}
	if info.MinDeposit, err = parseAmount(v.MinDeposit, "min_deposit"); err != nil {
		return domain.VaultInfo{}, err
	}
	if info.VaultCap, err = parseAmount(v.VaultCap, "vault_cap"); err != nil {
		return domain.VaultInfo{}, err
	}

	return info, nil
}

func parseAmount(s, field string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("config: vault %s: invalid amount %q", field, s)
	}
	return n, nil
}

// duration wraps time.Duration so it can be decoded from TOML strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		Sources: SourcesConfig{
			PolymarketHost: "https://gamma-api.polymarket.com",
			KalshiHost:     "https://api.elections.kalshi.com/trade-api/v2",
			PageSize:       100,
		},
		Oracle: OracleConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4",
			Timeout: duration{30 * time.Second},
		},
		Pipeline: PipelineConfig{
			Enabled:         true,
			Interval:        duration{5 * time.Minute},
			ArchiveInterval: duration{24 * time.Hour},
			ArchivePrefix:   "markets",
		},
		Signal: SignalConfig{
			DefaultMaxBetSize: 1000,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency. It is expected
// to be called once after Load.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "full", "serve", "aggregate":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}

	if c.Pipeline.Enabled && c.Pipeline.Interval.Duration <= 0 {
		return fmt.Errorf("config: pipeline interval must be positive, got %s", c.Pipeline.Interval.Duration)
	}

	if c.Pipeline.ArchiveEnabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("config: archive enabled but s3 bucket is empty")
		}
		if c.Pipeline.ArchiveInterval.Duration <= 0 {
			return fmt.Errorf("config: archive interval must be positive, got %s", c.Pipeline.ArchiveInterval.Duration)
		}
	}

	if c.Signal.DefaultMaxBetSize <= 0 {
		return fmt.Errorf("config: default max bet size must be positive, got %v", c.Signal.DefaultMaxBetSize)
	}

	seen := make(map[string]bool, len(c.Vaults))
	for i, v := range c.Vaults {
		if !common.IsHexAddress(v.Address) {
			return fmt.Errorf("config: vaults[%d]: %q is not a valid address", i, v.Address)
		}
		addr := strings.ToLower(v.Address)
		if seen[addr] {
			return fmt.Errorf("config: vaults[%d]: duplicate address %q", i, v.Address)
		}
		seen[addr] = true

		info, err := v.ToVaultInfo()
		if err != nil {
			return fmt.Errorf("config: vaults[%d]: %w", i, err)
		}
		// A vault is empty on both counters or neither.
		if (info.TotalAssets.Sign() == 0) != (info.TotalShares.Sign() == 0) {
			return fmt.Errorf("config: vaults[%d]: total_assets and total_shares must be zero together", i)
		}
	}

	return nil
}
