package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ciphertext, err := Encrypt([]byte("provider-access-token"), testKey)
	require.NoError(t, err)
	assert.NotEqual(t, "provider-access-token", ciphertext)

	plaintext, err := Decrypt(ciphertext, testKey)
	require.NoError(t, err)
	assert.Equal(t, "provider-access-token", plaintext)
}

func TestEncryptIsNotDeterministic(t *testing.T) {
	first, err := Encrypt([]byte("same input"), testKey)
	require.NoError(t, err)
	second, err := Encrypt([]byte("same input"), testKey)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	ciphertext, err := Encrypt([]byte("secret"), testKey)
	require.NoError(t, err)

	otherKey := []byte("fedcba9876543210fedcba9876543210")
	_, err = Decrypt(ciphertext, otherKey)
	assert.Error(t, err)
}

func TestDecryptRejectsTamperedData(t *testing.T) {
	_, err := Decrypt("bm90IHJlYWwgY2lwaGVydGV4dA", testKey)
	assert.Error(t, err)

	_, err = Decrypt("dG9vc2hvcnQ", testKey)
	assert.Error(t, err)
}

func TestGeneratePKCE(t *testing.T) {
	verifier, challenge, err := GeneratePKCE()
	require.NoError(t, err)
	require.NotEmpty(t, verifier)

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)

	_, secondChallenge, err := GeneratePKCE()
	require.NoError(t, err)
	assert.NotEqual(t, challenge, secondChallenge)
}

func TestGenerateRandomKeyLength(t *testing.T) {
	key, err := GenerateRandomKey(32)
	require.NoError(t, err)

	decoded, err := base64.RawURLEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)
}
