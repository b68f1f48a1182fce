package crypto

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat's default account #0 key. Published everywhere, holds nothing.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestEncryptDecryptKey_RoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	var stored keystoreFile
	require.NoError(t, json.Unmarshal(blob, &stored))
	assert.Equal(t, "pbkdf2-sha256", stored.KDF)
	assert.Equal(t, 480_000, stored.Iterations)

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	require.NoError(t, err)
	assert.Len(t, salt, 16)

	sealed, err := base64.StdEncoding.DecodeString(stored.Sealed)
	require.NoError(t, err)
	assert.Len(t, sealed, 60, "12-byte nonce, 32-byte key, 16-byte GCM tag")

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got, "0x prefix is stripped on the way through")

	_, err = DecryptKey(blob, "wrong-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unseal failed")
}

func TestDecryptKey_RejectsTampering(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)

	var stored keystoreFile
	require.NoError(t, json.Unmarshal(blob, &stored))
	sealed, err := base64.StdEncoding.DecodeString(stored.Sealed)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	stored.Sealed = base64.StdEncoding.EncodeToString(sealed)
	tampered, err := json.Marshal(stored)
	require.NoError(t, err)

	_, err = DecryptKey(tampered, "pw")
	assert.ErrorContains(t, err, "unseal failed")
}

func TestEncryptKey_Validation(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	assert.ErrorContains(t, err, "password must not be empty")

	_, err = EncryptKey("not-hex", "pw")
	assert.ErrorContains(t, err, "not valid hex")

	_, err = EncryptKey("deadbeefdeadbeefdeadbeefdeadbeef", "pw")
	assert.ErrorContains(t, err, "must be 32 bytes, got 16")
}

func TestDecryptKey_Validation(t *testing.T) {
	_, err := DecryptKey([]byte("{}"), "")
	assert.ErrorContains(t, err, "password must not be empty")

	_, err = DecryptKey([]byte("not json"), "pw")
	assert.ErrorContains(t, err, "parsing keystore")

	_, err = DecryptKey([]byte(`{"kdf":"scrypt"}`), "pw")
	assert.ErrorContains(t, err, `unsupported kdf "scrypt"`)

	_, err = DecryptKey([]byte(`{"kdf":"pbkdf2-sha256","iterations":0}`), "pw")
	assert.ErrorContains(t, err, "invalid iteration count")

	short := keystoreFile{
		KDF:        "pbkdf2-sha256",
		Iterations: 1000,
		Salt:       base64.StdEncoding.EncodeToString(make([]byte, 16)),
		Sealed:     base64.StdEncoding.EncodeToString([]byte("tiny")),
	}
	blob, err := json.Marshal(short)
	require.NoError(t, err)
	_, err = DecryptKey(blob, "pw")
	assert.ErrorContains(t, err, "sealed key too short")
}

func TestLoadKey(t *testing.T) {
	t.Run("raw key takes precedence", func(t *testing.T) {
		got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/does/not/matter"})
		require.NoError(t, err)
		assert.Equal(t, testKeyHex, got)
	})

	t.Run("raw key must be hex", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{RawPrivateKey: "zzzz"})
		assert.ErrorContains(t, err, "not valid hex")
	})

	t.Run("raw key must be full length", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{RawPrivateKey: "deadbeef"})
		assert.ErrorContains(t, err, "must be 32 bytes")
	})

	t.Run("encrypted key file", func(t *testing.T) {
		blob, err := EncryptKey(testKeyHex, "pw")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "key.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
		require.NoError(t, err)
		assert.Equal(t, testKeyHex, got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{EncryptedKeyPath: filepath.Join(t.TempDir(), "absent.json"), KeyPassword: "pw"})
		assert.ErrorContains(t, err, "reading keystore")
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{})
		assert.ErrorContains(t, err, "no signing key configured")
	})
}
