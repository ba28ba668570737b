// Package crypto keeps the Stellar secret seed used to sign governance
// transactions, either in plain config or in a password-encrypted file.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stellar/go/keypair"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen        = 16
	aesKeyLen      = 32
	currentVersion = 1
)

// pbkdf2Iterations is the OWASP minimum for HMAC-SHA256. Tests lower it.
var pbkdf2Iterations = 480_000

// encryptedSeedJSON is the on-disk format for an encrypted secret seed.
type encryptedSeedJSON struct {
	Version    int    `json:"version"`
	Account    string `json:"account"`    // public address, stored in clear for identification
	Iterations int    `json:"iterations"` // pbkdf2 rounds used
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig says where LoadKeypair finds the signing seed.
type KeyConfig struct {
	// SecretSeed is an "S..." seed. It wins over EncryptedKeyPath.
	SecretSeed string

	// EncryptedKeyPath is a file produced by EncryptSeed.
	EncryptedKeyPath string
	KeyPassword      string
}

// EncryptSeed encrypts a Stellar secret seed with PBKDF2-HMAC-SHA256 and
// AES-256-GCM. The account address is bound as additional data so a file
// cannot be relabelled.
func EncryptSeed(seed, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	kp, err := keypair.ParseFull(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid secret seed: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt, pbkdf2Iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := encryptedSeedJSON{
		Version:    currentVersion,
		Account:    kp.Address(),
		Iterations: pbkdf2Iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(kp.Seed()), []byte(kp.Address()))),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptSeed reverses EncryptSeed and returns the keypair.
func DecryptSeed(encrypted []byte, password string) (*keypair.Full, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var stored encryptedSeedJSON
	if err := json.Unmarshal(encrypted, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing encrypted seed: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}
	if stored.Iterations <= 0 {
		return nil, errors.New("crypto: missing iteration count")
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt, stored.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("crypto: bad nonce length")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(stored.Account))
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}

	kp, err := keypair.ParseFull(string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypted seed invalid: %w", err)
	}
	if kp.Address() != stored.Account {
		return nil, fmt.Errorf("crypto: seed does not match account %s", stored.Account)
	}
	return kp, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// LoadKeypair resolves the signing keypair: the plain seed first, then the
// encrypted file.
func LoadKeypair(cfg KeyConfig) (*keypair.Full, error) {
	if seed := strings.TrimSpace(cfg.SecretSeed); seed != "" {
		kp, err := keypair.ParseFull(seed)
		if err != nil {
			return nil, fmt.Errorf("crypto: secret seed: %w", err)
		}
		return kp, nil
	}
	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		return DecryptSeed(data, cfg.KeyPassword)
	}
	return nil, errors.New("crypto: no signing key configured (set secret_seed or encrypted_key_path)")
}
