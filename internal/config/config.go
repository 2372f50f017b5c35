// Package config defines the top-level configuration for the polyarb bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYARB_* environment variables.
type Config struct {
	Trading    TradingConfig      `toml:"trading"`
	Multiplier map[string]float64 `toml:"multiplier"`
	Feeds      FeedsConfig        `toml:"feeds"`
	Polymarket PolymarketConfig   `toml:"polymarket"`
	Postgres   PostgresConfig     `toml:"postgres"`
	Redis      RedisConfig        `toml:"redis"`
	S3         S3Config           `toml:"s3"`
	Notify     NotifyConfig       `toml:"notify"`
	Mode       string             `toml:"mode"`
	LogLevel   string             `toml:"log_level"`
}

// TradingConfig holds detection, sizing and risk parameters. Percentages are
// whole numbers (3.0 means 3%); prices are probabilities in [0,1].
type TradingConfig struct {
	MinEdgePercent      float64 `toml:"min_edge_percent"`
	DefaultPositionSize float64 `toml:"default_position_size"`
	MaxPositionSize     float64 `toml:"max_position_size"`
	MaxTotalExposure    float64 `toml:"max_total_exposure"`
	ProfitTargetPct     float64 `toml:"profit_target_pct"`
	StopLossPct         float64 `toml:"stop_loss_pct"`
	TimeLimitMinutes    int     `toml:"time_limit_minutes"`
	SmartExitEnabled    bool    `toml:"smart_exit_enabled"`
	SellPriceThreshold  float64 `toml:"sell_price_threshold"`
	MaxConcurrent       int     `toml:"max_concurrent"`
	DailyLossLimit      float64 `toml:"daily_loss_limit"`
}

// FeedsConfig selects which exchange price feeds to run and which assets to
// track.
type FeedsConfig struct {
	Assets   []string `toml:"assets"`
	Binance  bool     `toml:"binance"`
	Coinbase bool     `toml:"coinbase"`
	Kraken   bool     `toml:"kraken"`
}

// PolymarketConfig holds Polymarket API endpoints and CLOB credentials.
type PolymarketConfig struct {
	GammaHost     string `toml:"gamma_host"`
	ClobHost      string `toml:"clob_host"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
	PaperTrading  bool   `toml:"paper_trading"`
	ScanLimit     int    `toml:"scan_limit"`
}

// PostgresConfig holds PostgreSQL connection parameters for ledger snapshots.
type PostgresConfig struct {
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// S3Config holds S3-compatible object storage parameters for the position
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			MinEdgePercent:      3.0,
			DefaultPositionSize: 50,
			MaxPositionSize:     200,
			MaxTotalExposure:    1000,
			ProfitTargetPct:     50,
			StopLossPct:         20,
			TimeLimitMinutes:    30,
			SmartExitEnabled:    true,
			SellPriceThreshold:  0.95,
			MaxConcurrent:       10,
			DailyLossLimit:      200,
		},
		Multiplier: map[string]float64{
			"crypto_5m":      1.0,
			"crypto_15m":     1.2,
			"crypto_1h":      1.5,
			"sports_live":    0.8,
			"sports_pregame": 1.0,
			"stocks":         1.0,
			"news":           0.5,
		},
		Feeds: FeedsConfig{
			Assets:   []string{"BTC", "ETH", "SOL", "XRP"},
			Binance:  true,
			Coinbase: true,
			Kraken:   true,
		},
		Polymarket: PolymarketConfig{
			GammaHost:    "https://gamma-api.polymarket.com",
			ClobHost:     "https://clob.polymarket.com",
			PaperTrading: true,
			ScanLimit:    1000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polyarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyarb-data",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "position_opened", "position_closed", "error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for fatally invalid values and returns a combined
// error describing every problem found. Merely questionable values are
// reported by Warnings instead.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	t := c.Trading
	if t.DefaultPositionSize <= 0 {
		errs = append(errs, "trading: default_position_size must be > 0")
	}
	if t.MaxPositionSize < t.DefaultPositionSize {
		errs = append(errs, "trading: max_position_size must be >= default_position_size")
	}
	if t.MaxTotalExposure < t.MaxPositionSize {
		errs = append(errs, "trading: max_total_exposure must be >= max_position_size")
	}
	if t.MaxConcurrent < 1 {
		errs = append(errs, "trading: max_concurrent must be >= 1")
	}
	if t.TimeLimitMinutes < 1 {
		errs = append(errs, "trading: time_limit_minutes must be >= 1")
	}
	if t.SellPriceThreshold <= 0 || t.SellPriceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("trading: sell_price_threshold must be in (0,1], got %g", t.SellPriceThreshold))
	}

	for class, mult := range c.Multiplier {
		if mult < 0 {
			errs = append(errs, fmt.Sprintf("multiplier: %s must be >= 0, got %g", class, mult))
		}
	}

	if len(c.Feeds.Assets) == 0 {
		errs = append(errs, "feeds: assets must not be empty")
	}
	if !c.Feeds.Binance && !c.Feeds.Coinbase && !c.Feeds.Kraken {
		errs = append(errs, "feeds: at least one exchange feed must be enabled")
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}

	// Live execution needs the full CLOB credential triple.
	if strings.ToLower(c.Mode) == "trade" && !c.Polymarket.PaperTrading {
		if c.Polymarket.ApiKey == "" || c.Polymarket.ApiSecret == "" || c.Polymarket.ApiPassphrase == "" {
			errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase are required for live trading")
		}
		if c.Polymarket.ClobHost == "" {
			errs = append(errs, "polymarket: clob_host must not be empty for live trading")
		}
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Warnings returns non-fatal configuration concerns. The bot starts anyway;
// the caller is expected to log each one.
func (c *Config) Warnings() []string {
	var warns []string

	t := c.Trading
	if t.MinEdgePercent < 1 {
		warns = append(warns, fmt.Sprintf("trading: min_edge_percent %.1f is very aggressive; expect noise trades", t.MinEdgePercent))
	}
	if t.MinEdgePercent > 20 {
		warns = append(warns, fmt.Sprintf("trading: min_edge_percent %.1f is very conservative; expect few trades", t.MinEdgePercent))
	}
	if t.StopLossPct >= t.ProfitTargetPct {
		warns = append(warns, "trading: stop_loss_pct >= profit_target_pct gives an unfavourable risk/reward")
	}
	if t.DailyLossLimit > t.MaxTotalExposure {
		warns = append(warns, "trading: daily_loss_limit exceeds max_total_exposure and can never trigger first")
	}
	if !c.Polymarket.PaperTrading {
		warns = append(warns, "polymarket: live trading is enabled; orders will spend real funds")
	}
	return warns
}
