package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Account.AccountID = keypair.MustRandom().Address()
	cfg.Assets.AquaIssuer = keypair.MustRandom().Address()
	cfg.Assets.IceIssuer = keypair.MustRandom().Address()
	cfg.Governance.MarketDirectoryURL = "https://directory.example/api/markets/"
	return cfg
}

func TestDefaultsValidateOnceRequiredFieldsSet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3*year, cfg.Governance.MaxLockPeriod.Duration)
	assert.Equal(t, "2.5", cfg.Governance.MaxBoost.String())
}

func TestValidate(t *testing.T) {
	kp := keypair.MustRandom()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"bad account", func(c *Config) { c.Account.AccountID = "GNOPE" }, "account_id is not a valid"},
		{"action without key", func(c *Config) { c.Mode = ModeVote }, "secret_seed or encrypted_key_path"},
		{"restricted assets without approval", func(c *Config) { c.Mode = ModeVote }, "approval: endpoint"},
		{"seed for other account", func(c *Config) { c.Account.SecretSeed = kp.Seed() }, "does not belong"},
		{"encrypted key without password", func(c *Config) { c.Account.EncryptedKeyPath = "/k.json" }, "key_password"},
		{"no account at all", func(c *Config) { c.Account.AccountID = "" }, "account_id (or a signing key)"},
		{"bad issuer", func(c *Config) { c.Assets.IceIssuer = "" }, "ice_issuer"},
		{"bad bribe", func(c *Config) { c.Governance.BribeAddresses = []string{"x"} }, "bribe address"},
		{"low fee", func(c *Config) { c.Stellar.BaseFee = 10 }, "base_fee"},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis: addr"},
		{"journal missing", func(c *Config) { c.Journal.Dir = "" }, "journal: dir"},
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ActionWithSeed(t *testing.T) {
	kp := keypair.MustRandom()
	cfg := validConfig()
	cfg.Mode = ModeLock
	cfg.Account.AccountID = kp.Address()
	cfg.Account.SecretSeed = kp.Seed()
	cfg.Approval.Endpoint = "https://approval.example/tx"
	assert.NoError(t, cfg.Validate())
	assert.True(t, IsActionMode(cfg.Mode))
	assert.False(t, IsActionMode(ModeWatch))

	cfg.Assets.Restricted = nil
	cfg.Approval.Endpoint = ""
	assert.NoError(t, cfg.Validate(), "nothing restricted, nothing to approve")
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "govledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "status"

[stellar]
horizon_url = "https://horizon.example"
tx_timeout = "2m"

[governance]
max_boost = "3"
bribe_addresses = ["GA", "GB"]

[redis]
enabled = true
`), 0o600))

	t.Setenv("GOVLEDGER_REDIS_ADDR", "redis:6380")
	t.Setenv("GOVLEDGER_GOVERNANCE_MAX_PAGES", "5")
	t.Setenv("GOVLEDGER_NOTIFY_EVENTS", "claimable, submission_failed,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "status", cfg.Mode)
	assert.Equal(t, "https://horizon.example", cfg.Stellar.HorizonURL)
	assert.Equal(t, 2*time.Minute, cfg.Stellar.TxTimeout.Duration)
	assert.Equal(t, "3", cfg.Governance.MaxBoost.String())
	assert.Equal(t, []string{"GA", "GB"}, cfg.Governance.BribeAddresses)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Governance.MaxPages)
	assert.Equal(t, []string{"claimable", "submission_failed"}, cfg.Notify.Events)
	// untouched defaults survive
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Account.SecretSeed = "SSECRET"
	cfg.Redis.Password = "pw"
	cfg.Server.APIKey = "key"
	cfg.Notify.Events = []string{"claimable"}

	red := RedactedConfig(&cfg)
	assert.Equal(t, redacted, red.Account.SecretSeed)
	assert.Equal(t, redacted, red.Redis.Password)
	assert.Equal(t, redacted, red.Server.APIKey)
	assert.Empty(t, red.Account.KeyPassword)
	assert.Equal(t, cfg.Account.AccountID, red.Account.AccountID)

	red.Notify.Events[0] = "changed"
	assert.Equal(t, "claimable", cfg.Notify.Events[0])
	assert.Equal(t, "SSECRET", cfg.Account.SecretSeed)
}
