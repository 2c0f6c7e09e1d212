// Package config defines the top-level configuration for the swap bot and
// provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SWAPBOT_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Solana   SolanaConfig   `toml:"solana"`
	Jupiter  JupiterConfig  `toml:"jupiter"`
	Engine   EngineConfig   `toml:"engine"`
	Store    StoreConfig    `toml:"store"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the trading keypair. Exactly one source is used: a
// base58 secret key or an encrypted key file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SolanaConfig holds the RPC endpoint and submission parameters.
type SolanaConfig struct {
	RPCURL        string   `toml:"rpc_url"`
	Commitment    string   `toml:"commitment"`
	SkipPreflight bool     `toml:"skip_preflight"`
	MaxRetries    uint     `toml:"max_retries"`
	ConfirmPoll   duration `toml:"confirm_poll"`
}

// JupiterConfig holds the quote/swap API endpoint and client-side throttle.
type JupiterConfig struct {
	BaseURL                   string   `toml:"base_url"`
	APIKey                    string   `toml:"api_key"`
	RequestsPerSecond         float64  `toml:"requests_per_second"`
	Burst                     int      `toml:"burst"`
	Timeout                   duration `toml:"timeout"`
	DynamicComputeUnitLimit   bool     `toml:"dynamic_compute_unit_limit"`
	PrioritizationFeeLamports int64    `toml:"prioritization_fee_lamports"`
}

// EngineConfig holds default timing for every bot. Per-bot configuration may
// override the check interval and slippage.
type EngineConfig struct {
	CheckInterval    duration `toml:"check_interval"`
	QuoteTimeout     duration `toml:"quote_timeout"`
	SubmitTimeout    duration `toml:"submit_timeout"`
	ConfirmTimeout   duration `toml:"confirm_timeout"`
	SlippageBps      int      `toml:"slippage_bps"`
	InitAttempts     int      `toml:"init_attempts"`
	InitBackoff      duration `toml:"init_backoff"`
	DistributedLocks bool     `toml:"distributed_locks"`
	LockTTL          duration `toml:"lock_ttl"`
}

// StoreConfig selects the persistence backend: "postgres" or "memory".
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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

// RedisConfig holds Redis connection parameters. When disabled, events are
// delivered in-process only and no distributed locks are taken.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the periodic export of old swap history to S3. Cron,
// when set, replaces Interval.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	Cron          string   `toml:"cron"`
	RetentionDays int      `toml:"retention_days"`
	Prefix        string   `toml:"prefix"`
	DeleteAfter   bool     `toml:"delete_after"`
}

// KafkaConfig holds the optional swap event stream.
type KafkaConfig struct {
	Enabled   bool     `toml:"enabled"`
	Brokers   []string `toml:"brokers"`
	SwapTopic string   `toml:"swap_topic"`
	ClientID  string   `toml:"client_id"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled            bool     `toml:"enabled"`
	Port               int      `toml:"port"`
	CORSOrigins        []string `toml:"cors_origins"`
	APIKey             string   `toml:"api_key"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
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
		Solana: SolanaConfig{
			RPCURL:      "https://api.mainnet-beta.solana.com",
			Commitment:  "confirmed",
			MaxRetries:  3,
			ConfirmPoll: duration{2 * time.Second},
		},
		Jupiter: JupiterConfig{
			BaseURL:                 "https://quote-api.jup.ag/v6",
			RequestsPerSecond:       1,
			Burst:                   2,
			Timeout:                 duration{15 * time.Second},
			DynamicComputeUnitLimit: true,
		},
		Engine: EngineConfig{
			CheckInterval:  duration{20 * time.Second},
			QuoteTimeout:   duration{15 * time.Second},
			SubmitTimeout:  duration{30 * time.Second},
			ConfirmTimeout: duration{90 * time.Second},
			SlippageBps:    50,
			InitAttempts:   3,
			InitBackoff:    duration{time.Second},
			LockTTL:        duration{time.Minute},
		},
		Store: StoreConfig{
			Backend: "postgres",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "swapbot-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
			Prefix:        "swaps",
		},
		Kafka: KafkaConfig{
			SwapTopic: "swapbot.swaps",
			ClientID:  "swapbot",
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"swap_executed", "bot_stopped", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":  true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet. Server mode starts bots through the API, so every mode trades.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Solana
	if _, err := url.ParseRequestURI(c.Solana.RPCURL); err != nil {
		errs = append(errs, fmt.Sprintf("solana: rpc_url %q is not a valid URL", c.Solana.RPCURL))
	}
	if !validCommitments[strings.ToLower(c.Solana.Commitment)] {
		errs = append(errs, fmt.Sprintf("solana: unknown commitment %q (valid: processed, confirmed, finalized)", c.Solana.Commitment))
	}
	if c.Solana.ConfirmPoll.Duration <= 0 {
		errs = append(errs, "solana: confirm_poll must be > 0")
	}

	// Jupiter
	if _, err := url.ParseRequestURI(c.Jupiter.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("jupiter: base_url %q is not a valid URL", c.Jupiter.BaseURL))
	}
	if c.Jupiter.RequestsPerSecond <= 0 {
		errs = append(errs, "jupiter: requests_per_second must be > 0")
	}
	if c.Jupiter.Burst < 1 {
		errs = append(errs, "jupiter: burst must be >= 1")
	}

	// Engine
	if c.Engine.CheckInterval.Duration < time.Second {
		errs = append(errs, "engine: check_interval must be at least 1s")
	}
	if c.Engine.QuoteTimeout.Duration <= 0 {
		errs = append(errs, "engine: quote_timeout must be > 0")
	}
	if c.Engine.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "engine: confirm_timeout must be > 0")
	}
	if c.Engine.SlippageBps <= 0 || c.Engine.SlippageBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("engine: slippage_bps must be within (0, 10000), got %d", c.Engine.SlippageBps))
	}
	if c.Engine.InitAttempts < 1 {
		errs = append(errs, "engine: init_attempts must be >= 1")
	}
	if c.Engine.DistributedLocks && !c.Redis.Enabled {
		errs = append(errs, "engine: distributed_locks requires redis.enabled")
	}

	// Store
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: postgres, memory)", c.Store.Backend))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Archive / S3
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Cron != "" {
			if len(strings.Fields(c.Archive.Cron)) != 5 {
				errs = append(errs, fmt.Sprintf("archive: cron %q must have 5 fields", c.Archive.Cron))
			}
		} else if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.SwapTopic == "" {
			errs = append(errs, "kafka: swap_topic must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
