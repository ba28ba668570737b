package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load merges the TOML file at path over Defaults, then applies GOVLEDGER_*
// environment overrides (a .env file is loaded first when present). An empty
// path skips the file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and endpoints at deploy
// time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// Stellar
	setStr(&cfg.Stellar.HorizonURL, "GOVLEDGER_STELLAR_HORIZON_URL")
	setStr(&cfg.Stellar.NetworkPassphrase, "GOVLEDGER_STELLAR_NETWORK_PASSPHRASE")
	setInt64(&cfg.Stellar.BaseFee, "GOVLEDGER_STELLAR_BASE_FEE")
	setDuration(&cfg.Stellar.TxTimeout, "GOVLEDGER_STELLAR_TX_TIMEOUT")
	setInt(&cfg.Stellar.PollAttempts, "GOVLEDGER_STELLAR_POLL_ATTEMPTS")

	// Account
	setStr(&cfg.Account.AccountID, "GOVLEDGER_ACCOUNT_ID")
	setStr(&cfg.Account.SecretSeed, "GOVLEDGER_ACCOUNT_SECRET_SEED")
	setStr(&cfg.Account.EncryptedKeyPath, "GOVLEDGER_ACCOUNT_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Account.KeyPassword, "GOVLEDGER_ACCOUNT_KEY_PASSWORD")

	// Assets
	setStr(&cfg.Assets.AquaIssuer, "GOVLEDGER_ASSETS_AQUA_ISSUER")
	setStr(&cfg.Assets.IceIssuer, "GOVLEDGER_ASSETS_ICE_ISSUER")
	setStringSlice(&cfg.Assets.Restricted, "GOVLEDGER_ASSETS_RESTRICTED")

	// Governance
	setStr(&cfg.Governance.MarketDirectoryURL, "GOVLEDGER_GOVERNANCE_MARKET_DIRECTORY_URL")
	setInt(&cfg.Governance.DirectoryPageSize, "GOVLEDGER_GOVERNANCE_DIRECTORY_PAGE_SIZE")
	setDuration(&cfg.Governance.DirectoryTTL, "GOVLEDGER_GOVERNANCE_DIRECTORY_TTL")
	setStringSlice(&cfg.Governance.BribeAddresses, "GOVLEDGER_GOVERNANCE_BRIBE_ADDRESSES")
	setDuration(&cfg.Governance.MaxLockPeriod, "GOVLEDGER_GOVERNANCE_MAX_LOCK_PERIOD")
	setDecimal(&cfg.Governance.MaxBoost, "GOVLEDGER_GOVERNANCE_MAX_BOOST")
	setInt(&cfg.Governance.MaxPages, "GOVLEDGER_GOVERNANCE_MAX_PAGES")
	setDecimal(&cfg.Governance.MarketKeyFunding, "GOVLEDGER_GOVERNANCE_MARKET_KEY_FUNDING")
	setDuration(&cfg.Governance.PriceInterval, "GOVLEDGER_GOVERNANCE_PRICE_INTERVAL")
	setDuration(&cfg.Governance.ClaimCheckInterval, "GOVLEDGER_GOVERNANCE_CLAIM_CHECK_INTERVAL")

	// Approval
	setStr(&cfg.Approval.Endpoint, "GOVLEDGER_APPROVAL_ENDPOINT")

	// Supabase
	setBool(&cfg.Supabase.Enabled, "GOVLEDGER_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "GOVLEDGER_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "GOVLEDGER_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "GOVLEDGER_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "GOVLEDGER_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "GOVLEDGER_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "GOVLEDGER_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "GOVLEDGER_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "GOVLEDGER_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "GOVLEDGER_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "GOVLEDGER_SUPABASE_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "GOVLEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "GOVLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GOVLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GOVLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GOVLEDGER_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "GOVLEDGER_REDIS_TLS_ENABLED")

	// S3
	setBool(&cfg.S3.Enabled, "GOVLEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "GOVLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GOVLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "GOVLEDGER_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "GOVLEDGER_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "GOVLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GOVLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GOVLEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GOVLEDGER_S3_FORCE_PATH_STYLE")

	// Journal
	setStr(&cfg.Journal.Dir, "GOVLEDGER_JOURNAL_DIR")

	// Server
	setBool(&cfg.Server.Enabled, "GOVLEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GOVLEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "GOVLEDGER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "GOVLEDGER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "GOVLEDGER_SERVER_RATE_LIMIT")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "GOVLEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GOVLEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GOVLEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GOVLEDGER_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "GOVLEDGER_NOTIFY_COOLDOWN")

	setStr(&cfg.Mode, "GOVLEDGER_MODE")
	setStr(&cfg.LogLevel, "GOVLEDGER_LOG_LEVEL")
}

// Typed env-var helpers. Each only touches dst when the variable is set and
// parses.

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
