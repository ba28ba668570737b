// Package config defines the configuration of the governance ledger service
// and its validation rules.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
)

// Config is the root configuration. Fields come from a TOML file and are then
// optionally overridden by GOVLEDGER_* environment variables.
type Config struct {
	Stellar    StellarConfig    `toml:"stellar"`
	Account    AccountConfig    `toml:"account"`
	Assets     AssetsConfig     `toml:"assets"`
	Governance GovernanceConfig `toml:"governance"`
	Approval   ApprovalConfig   `toml:"approval"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Journal    JournalConfig    `toml:"journal"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// StellarConfig points at the ledger.
type StellarConfig struct {
	HorizonURL        string   `toml:"horizon_url"`
	NetworkPassphrase string   `toml:"network_passphrase"`
	BaseFee           int64    `toml:"base_fee"` // stroops per operation
	TxTimeout         duration `toml:"tx_timeout"`
	PollAttempts      int      `toml:"poll_attempts"`
}

// AccountConfig identifies the governance account and its signing key.
type AccountConfig struct {
	AccountID        string `toml:"account_id"`
	SecretSeed       string `toml:"secret_seed"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// AssetsConfig names the issuers of the governance and ICE tokens.
type AssetsConfig struct {
	AquaIssuer string `toml:"aqua_issuer"`
	IceIssuer  string `toml:"ice_issuer"`
	// Restricted lists asset names ("ICE", "upvoteICE") or CODE:ISSUER pairs
	// whose transactions need the approval server.
	Restricted []string `toml:"restricted"`
}

// GovernanceConfig holds protocol constants and discovery settings.
type GovernanceConfig struct {
	MarketDirectoryURL string          `toml:"market_directory_url"`
	DirectoryPageSize  int             `toml:"directory_page_size"`
	DirectoryTTL       duration        `toml:"directory_ttl"`
	BribeAddresses     []string        `toml:"bribe_addresses"`
	MaxLockPeriod      duration        `toml:"max_lock_period"`
	MaxBoost           decimal.Decimal `toml:"max_boost"`
	MaxPages           int             `toml:"max_pages"`
	MarketKeyFunding   decimal.Decimal `toml:"market_key_funding"` // XLM per new market key
	PriceInterval      duration        `toml:"price_interval"`
	ClaimCheckInterval duration        `toml:"claim_check_interval"`
}

// ApprovalConfig points at the approval server for restricted assets.
type ApprovalConfig struct {
	Endpoint string `toml:"endpoint"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	TLSEnabled bool   `toml:"tls_enabled"`
	StreamLen  int64  `toml:"stream_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// JournalConfig configures the local submission journal used when Postgres
// is disabled.
type JournalConfig struct {
	Dir string `toml:"dir"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Cooldown          duration `toml:"cooldown"`
}

// duration lets TOML strings such as "5m" decode into a time.Duration.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

const year = 365 * 24 * time.Hour

// Defaults returns a Config for the public test network with local
// infrastructure.
func Defaults() Config {
	return Config{
		Stellar: StellarConfig{
			HorizonURL:        "https://horizon-testnet.stellar.org",
			NetworkPassphrase: network.TestNetworkPassphrase,
			BaseFee:           100,
			TxTimeout:         duration{5 * time.Minute},
			PollAttempts:      10,
		},
		Assets: AssetsConfig{
			Restricted: []string{"ICE", "governICE", "upvoteICE", "downvoteICE"},
		},
		Governance: GovernanceConfig{
			DirectoryPageSize:  200,
			DirectoryTTL:       duration{10 * time.Minute},
			MaxLockPeriod:      duration{3 * year},
			MaxBoost:           decimal.RequireFromString("2.5"),
			MaxPages:           20,
			MarketKeyFunding:   decimal.NewFromInt(3),
			PriceInterval:      duration{5 * time.Minute},
			ClaimCheckInterval: duration{time.Minute},
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
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			StreamLen:  10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "govledger-snapshots",
			Prefix:         "snapshots",
			ForcePathStyle: true,
		},
		Journal: JournalConfig{Dir: "./data/journal"},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:   []string{"submission_confirmed", "submission_failed", "claimable"},
			Cooldown: duration{10 * time.Minute},
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// Modes. Action modes submit one transaction and exit.
const (
	ModeWatch      = "watch"
	ModeStatus     = "status"
	ModeVote       = "vote"
	ModeDownvote   = "downvote"
	ModeLock       = "lock"
	ModeClaim      = "claim"
	ModeCreatePair = "create-pair"
)

var validModes = map[string]bool{
	ModeWatch:      true,
	ModeStatus:     true,
	ModeVote:       true,
	ModeDownvote:   true,
	ModeLock:       true,
	ModeClaim:      true,
	ModeCreatePair: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// IsActionMode reports whether mode signs and submits a transaction.
func IsActionMode(mode string) bool {
	switch mode {
	case ModeVote, ModeDownvote, ModeLock, ModeClaim, ModeCreatePair:
		return true
	}
	return false
}

// HasSigningKey reports whether a signing key source is configured.
func (c *Config) HasSigningKey() bool {
	return c.Account.SecretSeed != "" || c.Account.EncryptedKeyPath != ""
}

// Validate checks Config for invalid or missing values and returns one error
// listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, status, vote, downvote, lock, claim, create-pair)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Stellar
	if c.Stellar.HorizonURL == "" {
		errs = append(errs, "stellar: horizon_url must not be empty")
	}
	if c.Stellar.NetworkPassphrase == "" {
		errs = append(errs, "stellar: network_passphrase must not be empty")
	}
	if c.Stellar.BaseFee < 100 {
		errs = append(errs, "stellar: base_fee must be >= 100 stroops")
	}
	if c.Stellar.PollAttempts < 1 {
		errs = append(errs, "stellar: poll_attempts must be >= 1")
	}

	// Account
	if c.Account.AccountID != "" && !strkey.IsValidEd25519PublicKey(c.Account.AccountID) {
		errs = append(errs, "account: account_id is not a valid account address")
	}
	if c.Account.SecretSeed != "" {
		kp, err := keypair.ParseFull(c.Account.SecretSeed)
		switch {
		case err != nil:
			errs = append(errs, "account: secret_seed is not a valid secret seed")
		case c.Account.AccountID != "" && kp.Address() != c.Account.AccountID:
			errs = append(errs, "account: secret_seed does not belong to account_id")
		}
	}
	if c.Account.EncryptedKeyPath != "" && c.Account.KeyPassword == "" {
		errs = append(errs, "account: key_password is required when encrypted_key_path is set")
	}
	if IsActionMode(c.Mode) && !c.HasSigningKey() {
		errs = append(errs, "account: secret_seed or encrypted_key_path must be set for mode "+c.Mode)
	}
	if IsActionMode(c.Mode) && len(c.Assets.Restricted) > 0 && strings.TrimSpace(c.Approval.Endpoint) == "" {
		errs = append(errs, "approval: endpoint must be set when assets.restricted is not empty")
	}
	if !IsActionMode(c.Mode) && c.Account.AccountID == "" && !c.HasSigningKey() {
		errs = append(errs, "account: account_id (or a signing key) must be set")
	}

	// Assets
	if !strkey.IsValidEd25519PublicKey(c.Assets.AquaIssuer) {
		errs = append(errs, "assets: aqua_issuer is not a valid account address")
	}
	if !strkey.IsValidEd25519PublicKey(c.Assets.IceIssuer) {
		errs = append(errs, "assets: ice_issuer is not a valid account address")
	}

	// Governance
	if c.Governance.MarketDirectoryURL == "" {
		errs = append(errs, "governance: market_directory_url must not be empty")
	}
	for _, b := range c.Governance.BribeAddresses {
		if !strkey.IsValidEd25519PublicKey(b) {
			errs = append(errs, fmt.Sprintf("governance: bribe address %q is not a valid account address", b))
		}
	}
	if c.Governance.MaxLockPeriod.Duration <= 0 {
		errs = append(errs, "governance: max_lock_period must be > 0")
	}
	if !c.Governance.MaxBoost.IsPositive() {
		errs = append(errs, "governance: max_boost must be > 0")
	}
	if c.Governance.MaxPages < 1 {
		errs = append(errs, "governance: max_pages must be >= 1")
	}

	// Supabase
	if c.Supabase.Enabled {
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
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
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

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Journal
	if !c.Supabase.Enabled && c.Journal.Dir == "" {
		errs = append(errs, "journal: dir must be set when supabase is disabled")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
