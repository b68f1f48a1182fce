// Package crypto provides encrypted key storage, transaction signing, and
// HMAC request authentication for the operator API.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// keystoreKDF names the only derivation scheme this keystore writes. Stored
// in the file so a future scheme can coexist with old keystores.
const keystoreKDF = "pbkdf2-sha256"

const (
	kdfIterations = 480_000 // OWASP floor for PBKDF2-HMAC-SHA256
	kdfSaltLen    = 16
	kdfKeyLen     = 32 // AES-256
)

// keystoreFile is the on-disk envelope for an encrypted signing key. Sealed
// holds nonce||ciphertext from AES-256-GCM, base64 encoded.
type keystoreFile struct {
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Sealed     string `json:"sealed"`
}

// KeyConfig names the places a signing key may come from. Populate it from
// the wallet section of the config.
type KeyConfig struct {
	// RawPrivateKey short-circuits the keystore: hex, optional 0x prefix.
	RawPrivateKey string

	// EncryptedKeyPath points at a keystore file written by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword unlocks EncryptedKeyPath.
	KeyPassword string
}

// normalizeKeyHex strips an optional 0x prefix and checks the key decodes to
// exactly 32 bytes.
func normalizeKeyHex(privateKeyHex string) ([]byte, string, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, "", fmt.Errorf("crypto: private key is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, "", fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(keyBytes))
	}
	return keyBytes, keyHex, nil
}

// sealerFor derives the AES-256-GCM cipher for a password and salt.
func sealerFor(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, iterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm init: %w", err)
	}
	return gcm, nil
}

// EncryptKey seals a hex-encoded private key under a password and returns
// keystore JSON suitable for writing to disk.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	keyBytes, _, err := normalizeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := sealerFor(password, salt, kdfIterations)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, keyBytes, nil)

	return json.MarshalIndent(keystoreFile{
		KDF:        keystoreKDF,
		Iterations: kdfIterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Sealed:     base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
}

// DecryptKey opens keystore JSON produced by EncryptKey and returns the
// hex-encoded private key without the 0x prefix.
func DecryptKey(keystoreJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var stored keystoreFile
	if err := json.Unmarshal(keystoreJSON, &stored); err != nil {
		return "", fmt.Errorf("crypto: parsing keystore: %w", err)
	}
	if stored.KDF != keystoreKDF {
		return "", fmt.Errorf("crypto: unsupported kdf %q", stored.KDF)
	}
	if stored.Iterations <= 0 {
		return "", fmt.Errorf("crypto: invalid iteration count %d", stored.Iterations)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(stored.Sealed)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding sealed key: %w", err)
	}

	gcm, err := sealerFor(password, salt, stored.Iterations)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("crypto: sealed key too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: unseal failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadKey resolves the signing key. A raw key wins; otherwise the keystore at
// EncryptedKeyPath is opened with KeyPassword.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		_, keyHex, err := normalizeKeyHex(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return keyHex, nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading keystore: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no signing key configured (set wallet.private_key or wallet.encrypted_key_path)")
}
