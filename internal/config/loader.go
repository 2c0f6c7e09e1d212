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
// built-in defaults, applies SWAPBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SWAPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SWAPBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SWAPBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SWAPBOT_WALLET_KEY_PASSWORD")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "SWAPBOT_SOLANA_RPC_URL")
	setStr(&cfg.Solana.Commitment, "SWAPBOT_SOLANA_COMMITMENT")
	setBool(&cfg.Solana.SkipPreflight, "SWAPBOT_SOLANA_SKIP_PREFLIGHT")
	setUint(&cfg.Solana.MaxRetries, "SWAPBOT_SOLANA_MAX_RETRIES")
	setDuration(&cfg.Solana.ConfirmPoll, "SWAPBOT_SOLANA_CONFIRM_POLL")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.BaseURL, "SWAPBOT_JUPITER_BASE_URL")
	setStr(&cfg.Jupiter.APIKey, "SWAPBOT_JUPITER_API_KEY")
	setFloat64(&cfg.Jupiter.RequestsPerSecond, "SWAPBOT_JUPITER_REQUESTS_PER_SECOND")
	setInt(&cfg.Jupiter.Burst, "SWAPBOT_JUPITER_BURST")
	setDuration(&cfg.Jupiter.Timeout, "SWAPBOT_JUPITER_TIMEOUT")
	setInt64(&cfg.Jupiter.PrioritizationFeeLamports, "SWAPBOT_JUPITER_PRIORITIZATION_FEE_LAMPORTS")

	// ── Engine ──
	setDuration(&cfg.Engine.CheckInterval, "SWAPBOT_ENGINE_CHECK_INTERVAL")
	setDuration(&cfg.Engine.QuoteTimeout, "SWAPBOT_ENGINE_QUOTE_TIMEOUT")
	setDuration(&cfg.Engine.SubmitTimeout, "SWAPBOT_ENGINE_SUBMIT_TIMEOUT")
	setDuration(&cfg.Engine.ConfirmTimeout, "SWAPBOT_ENGINE_CONFIRM_TIMEOUT")
	setInt(&cfg.Engine.SlippageBps, "SWAPBOT_ENGINE_SLIPPAGE_BPS")
	setInt(&cfg.Engine.InitAttempts, "SWAPBOT_ENGINE_INIT_ATTEMPTS")
	setDuration(&cfg.Engine.InitBackoff, "SWAPBOT_ENGINE_INIT_BACKOFF")
	setBool(&cfg.Engine.DistributedLocks, "SWAPBOT_ENGINE_DISTRIBUTED_LOCKS")
	setDuration(&cfg.Engine.LockTTL, "SWAPBOT_ENGINE_LOCK_TTL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "SWAPBOT_STORE_BACKEND")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "SWAPBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "SWAPBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "SWAPBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "SWAPBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "SWAPBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "SWAPBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "SWAPBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "SWAPBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "SWAPBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "SWAPBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "SWAPBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SWAPBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SWAPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWAPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWAPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWAPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWAPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWAPBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SWAPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SWAPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SWAPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SWAPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SWAPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SWAPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SWAPBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SWAPBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "SWAPBOT_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Cron, "SWAPBOT_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "SWAPBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Prefix, "SWAPBOT_ARCHIVE_PREFIX")
	setBool(&cfg.Archive.DeleteAfter, "SWAPBOT_ARCHIVE_DELETE_AFTER")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "SWAPBOT_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "SWAPBOT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.SwapTopic, "SWAPBOT_KAFKA_SWAP_TOPIC")
	setStr(&cfg.Kafka.ClientID, "SWAPBOT_KAFKA_CLIENT_ID")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SWAPBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SWAPBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SWAPBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SWAPBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "SWAPBOT_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWAPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWAPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWAPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWAPBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWAPBOT_MODE")
	setStr(&cfg.LogLevel, "SWAPBOT_LOG_LEVEL")
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

func setUint(dst *uint, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 0); err == nil {
			*dst = uint(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
