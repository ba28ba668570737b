package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	pbkdf2Iterations = 1000
}

func TestEncryptDecryptSeed(t *testing.T) {
	kp := keypair.MustRandom()

	blob, err := EncryptSeed(kp.Seed(), "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), kp.Seed())

	var stored encryptedSeedJSON
	require.NoError(t, json.Unmarshal(blob, &stored))
	assert.Equal(t, kp.Address(), stored.Account)
	assert.Equal(t, 1000, stored.Iterations)

	got, err := DecryptSeed(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), got.Address())

	_, err = DecryptSeed(blob, "wrong")
	assert.Error(t, err)
}

func TestDecryptSeed_RelabelledAccountFails(t *testing.T) {
	kp := keypair.MustRandom()
	blob, err := EncryptSeed(kp.Seed(), "pw")
	require.NoError(t, err)

	var stored encryptedSeedJSON
	require.NoError(t, json.Unmarshal(blob, &stored))
	stored.Account = keypair.MustRandom().Address()
	tampered, err := json.Marshal(stored)
	require.NoError(t, err)

	_, err = DecryptSeed(tampered, "pw")
	assert.Error(t, err)
}

func TestEncryptSeed_Invalid(t *testing.T) {
	_, err := EncryptSeed("not-a-seed", "pw")
	assert.Error(t, err)
	_, err = EncryptSeed(keypair.MustRandom().Seed(), "")
	assert.Error(t, err)
}

func TestLoadKeypair(t *testing.T) {
	kp := keypair.MustRandom()
	dir := t.TempDir()
	path := filepath.Join(dir, "key.json")
	blob, err := EncryptSeed(kp.Seed(), "pw")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	tests := []struct {
		name    string
		cfg     KeyConfig
		want    string
		wantErr bool
	}{
		{name: "plain seed", cfg: KeyConfig{SecretSeed: " " + kp.Seed() + "\n"}, want: kp.Address()},
		{name: "encrypted file", cfg: KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"}, want: kp.Address()},
		{name: "bad seed", cfg: KeyConfig{SecretSeed: "SXXX"}, wantErr: true},
		{name: "missing file", cfg: KeyConfig{EncryptedKeyPath: filepath.Join(dir, "nope"), KeyPassword: "pw"}, wantErr: true},
		{name: "nothing configured", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadKeypair(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Address())
		})
	}
}
