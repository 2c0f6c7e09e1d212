package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/swapbot/internal/blob/s3"
	"github.com/alanyoungcy/swapbot/internal/cache/redis"
	"github.com/alanyoungcy/swapbot/internal/config"
	"github.com/alanyoungcy/swapbot/internal/crypto"
	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/notify"
	"github.com/alanyoungcy/swapbot/internal/platform/jupiter"
	"github.com/alanyoungcy/swapbot/internal/platform/solana"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/store/memory"
	"github.com/alanyoungcy/swapbot/internal/store/postgres"
	"github.com/alanyoungcy/swapbot/internal/stream/kafka"
)

const statusTTL = time.Hour

// Dependencies bundles the concrete collaborators the modes run on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Configs domain.BotConfigStore
	Swaps   domain.SwapStore
	Audit   domain.AuditStore

	// Caches and messaging. Locks and Limiter are nil without Redis.
	Status  domain.StatusCache
	Bus     domain.SignalBus
	Locks   domain.LockManager
	Limiter domain.RateLimiter

	// Optional sinks. Nil when disabled.
	Archiver  *s3blob.Archiver
	Publisher *kafka.Publisher
	Notifier  *notify.Notifier

	// Providers
	Quotes *jupiter.Client
	Ledger *solana.Ledger
	Wallet *solana.Keypair

	// Checks are probed by the health endpoint.
	Checks map[string]handler.Pinger
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs every dependency from cfg and returns them with a cleanup
// function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Wallet ---
	secret, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fail("wallet", err)
	}
	deps.Wallet, err = solana.KeypairFromBase58(secret)
	if err != nil {
		return fail("wallet", err)
	}

	// --- Stores ---
	switch cfg.Store.Backend {
	case "memory":
		deps.Configs = memory.NewBotConfigStore()
		deps.Swaps = memory.NewSwapStore()
		deps.Audit = memory.NewAuditStore()
	default:
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)
		if cfg.Supabase.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		pool := pg.Pool()
		deps.Configs = postgres.NewBotConfigStore(pool)
		deps.Swaps = postgres.NewSwapStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pg
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Status = redis.NewStatusCache(rc, statusTTL)
		deps.Bus = redis.NewSignalBus(rc, logger)
		deps.Locks = redis.NewLockManager(rc)
		deps.Limiter = redis.NewRateLimiter(rc, max(int(cfg.Jupiter.RequestsPerSecond), 1), time.Second)
		deps.Checks["redis"] = rc
	} else {
		deps.Status = memory.NewStatusCache()
		deps.Bus = memory.NewSignalBus()
	}

	// --- Providers ---
	deps.Quotes = jupiter.NewClient(jupiter.Config{
		BaseURL:                   cfg.Jupiter.BaseURL,
		APIKey:                    cfg.Jupiter.APIKey,
		RequestsPerSecond:         cfg.Jupiter.RequestsPerSecond,
		Burst:                     cfg.Jupiter.Burst,
		Timeout:                   cfg.Jupiter.Timeout.Duration,
		DynamicComputeUnitLimit:   cfg.Jupiter.DynamicComputeUnitLimit,
		PrioritizationFeeLamports: cfg.Jupiter.PrioritizationFeeLamports,
	})
	if deps.Limiter != nil {
		deps.Quotes.WithSharedLimiter(deps.Limiter)
	}
	deps.Ledger = solana.NewLedger(solana.Config{
		RPCURL:        cfg.Solana.RPCURL,
		Commitment:    cfg.Solana.Commitment,
		SkipPreflight: cfg.Solana.SkipPreflight,
		MaxRetries:    cfg.Solana.MaxRetries,
		ConfirmPoll:   cfg.Solana.ConfirmPoll.Duration,
	}, logger)

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewStore(sc), deps.Swaps, deps.Audit, s3blob.ArchiverConfig{
			Prefix:      cfg.Archive.Prefix,
			DeleteAfter: cfg.Archive.DeleteAfter,
		}, logger)
		deps.Checks["s3"] = pingFunc(sc.Health)
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.SwapTopic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			return fail("kafka", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Publisher = pub
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if n := notify.NewNotifier(senders, cfg.Notify.Events, logger); n.Enabled() {
		deps.Notifier = n
	}

	return deps, cleanup, nil
}
