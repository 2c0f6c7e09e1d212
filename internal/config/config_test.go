package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "trade"

[wallet]
private_key = "base58secret"

[engine]
check_interval = "45s"
slippage_bps = 75

[kafka]
enabled = true
brokers = ["kafka-1:9092", "kafka-2:9092"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, 45*time.Second, cfg.Engine.CheckInterval.Duration)
	assert.Equal(t, 75, cfg.Engine.SlippageBps)
	assert.Equal(t, 90*time.Second, cfg.Engine.ConfirmTimeout.Duration, "unset values keep defaults")
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "swapbot.swaps", cfg.Kafka.SwapTopic)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
[wallet]
private_key = "from-file"
`)
	t.Setenv("SWAPBOT_WALLET_PRIVATE_KEY", "from-env")
	t.Setenv("SWAPBOT_ENGINE_QUOTE_TIMEOUT", "5s")
	t.Setenv("SWAPBOT_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("SWAPBOT_SOLANA_MAX_RETRIES", "7")
	t.Setenv("SWAPBOT_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Wallet.PrivateKey)
	assert.Equal(t, 5*time.Second, cfg.Engine.QuoteTimeout.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, uint(7), cfg.Solana.MaxRetries)
	assert.Equal(t, 8000, cfg.Server.Port, "unparseable values are ignored")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "arbitrage"
	cfg.Store.Backend = "sqlite"
	cfg.Engine.SlippageBps = 0
	cfg.Engine.DistributedLocks = true
	cfg.Redis.Enabled = false
	cfg.Kafka.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "arbitrage"`,
		"wallet: either private_key or encrypted_key_path must be set",
		`store: unknown backend "sqlite"`,
		"engine: slippage_bps",
		"engine: distributed_locks requires redis.enabled",
		"kafka: brokers must not be empty",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateMemoryBackendSkipsDatabase(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "k"
	cfg.Store.Backend = "memory"
	cfg.Supabase.Host = ""
	cfg.Supabase.PoolMaxConns = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.EncryptedKeyPath = "/secrets/key.enc"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password is required")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "secret"
	cfg.Supabase.Password = "pw"
	cfg.Server.APIKey = "api"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Wallet.PrivateKey)
	assert.Equal(t, redacted, out.Supabase.Password)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Equal(t, redacted, out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Notify.TelegramToken, "empty secrets stay empty")
	assert.Equal(t, "secret", cfg.Wallet.PrivateKey)

	out.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
}

func TestValidateArchiveSchedule(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "k"
	cfg.Archive.Enabled = true
	cfg.Archive.Interval.Duration = 0
	cfg.Archive.Cron = "0 3 * * *"
	assert.NoError(t, cfg.Validate(), "cron replaces the interval")

	cfg.Archive.Cron = "0 3 * *"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must have 5 fields")
}
