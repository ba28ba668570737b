package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stellar/go/keypair"

	s3blob "github.com/alanyoungcy/govledger/internal/blob/s3"
	"github.com/alanyoungcy/govledger/internal/cache/redis"
	"github.com/alanyoungcy/govledger/internal/config"
	"github.com/alanyoungcy/govledger/internal/crypto"
	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/alanyoungcy/govledger/internal/notify"
	"github.com/alanyoungcy/govledger/internal/platform/approval"
	"github.com/alanyoungcy/govledger/internal/platform/aquarius"
	"github.com/alanyoungcy/govledger/internal/platform/horizon"
	"github.com/alanyoungcy/govledger/internal/server/handler"
	"github.com/alanyoungcy/govledger/internal/service"
	"github.com/alanyoungcy/govledger/internal/store/postgres"
	"github.com/alanyoungcy/govledger/internal/store/wal"
)

// Dependencies bundles everything the modes need. Optional infrastructure is
// left nil when disabled, so interface fields are only ever assigned real
// implementations.
type Dependencies struct {
	// Upstreams
	Ledger    *horizon.Client
	Directory *aquarius.Client
	Approver  service.Approver

	// Account
	AccountID string
	Signer    *keypair.Full // nil when no signing key is configured

	Assets     *domain.AssetRegistry
	Restricted []domain.Asset

	// Stores
	Submissions   domain.SubmissionStore
	AuditStore    domain.AuditStore
	VoteSummaries domain.VoteSummaryStore

	// Caches
	PriceCache     domain.PriceCache
	MarketKeyCache domain.MarketKeyCache
	LockManager    domain.LockManager
	SignalBus      domain.SignalBus
	RateLimiter    domain.RateLimiter

	// Blob storage
	Archiver *s3blob.SnapshotArchiver

	Notifier *notify.Notifier

	// Checks backs the health endpoint, keyed by dependency name.
	Checks map[string]handler.CheckFunc
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(format string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf(format, err)
	}

	deps := &Dependencies{
		Ledger:    horizon.New(cfg.Stellar.HorizonURL),
		Directory: aquarius.NewClient(cfg.Governance.MarketDirectoryURL, cfg.Governance.DirectoryPageSize),
		Assets:    domain.NewAssetRegistry(cfg.Assets.AquaIssuer, cfg.Assets.IceIssuer),
		Checks:    make(map[string]handler.CheckFunc),
	}
	if cfg.Approval.Endpoint != "" {
		deps.Approver = approval.NewClient(cfg.Approval.Endpoint)
	}

	restricted, err := resolveAssets(deps.Assets, cfg.Assets.Restricted)
	if err != nil {
		return fail("wire: restricted assets: %w", err)
	}
	deps.Restricted = restricted

	// --- Signing key ---
	deps.AccountID = cfg.Account.AccountID
	if cfg.HasSigningKey() {
		kp, err := crypto.LoadKeypair(crypto.KeyConfig{
			SecretSeed:       cfg.Account.SecretSeed,
			EncryptedKeyPath: cfg.Account.EncryptedKeyPath,
			KeyPassword:      cfg.Account.KeyPassword,
		})
		if err != nil {
			return fail("wire: signing key: %w", err)
		}
		if deps.AccountID != "" && deps.AccountID != kp.Address() {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signing key belongs to %s, not %s", kp.Address(), deps.AccountID)
		}
		deps.Signer = kp
		deps.AccountID = kp.Address()
	}

	// --- PostgreSQL, or the local journal ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
			return fail("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Submissions = postgres.NewSubmissionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.VoteSummaries = postgres.NewVoteSummaryStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	} else {
		journal, err := wal.Open(cfg.Journal.Dir)
		if err != nil {
			return fail("wire: submission journal: %w", err)
		}
		closers = append(closers, func() {
			if err := journal.Close(); err != nil {
				logger.Warn("close submission journal", slog.String("error", err.Error()))
			}
		})
		deps.Submissions = journal
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Governance.PriceInterval.Duration*2)
		deps.MarketKeyCache = redis.NewMarketKeyCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 snapshot archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSnapshotArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), cfg.S3.Prefix)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, logger)

	return deps, cleanup, nil
}

// resolveAssets turns configured names ("ICE", "upvoteICE") or CODE:ISSUER
// pairs into concrete assets.
func resolveAssets(reg *domain.AssetRegistry, names []string) ([]domain.Asset, error) {
	out := make([]domain.Asset, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		a, err := resolveAsset(reg, n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func resolveAsset(reg *domain.AssetRegistry, s string) (domain.Asset, error) {
	if strings.Contains(s, ":") || s == "native" {
		return domain.ParseAsset(s)
	}
	if strings.EqualFold(s, "XLM") {
		return domain.NativeAsset, nil
	}
	return reg.Lookup(s)
}
