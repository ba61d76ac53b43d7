package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	sealed, err := Encrypt([]byte("tiktok-access-token"), key)
	require.NoError(t, err)
	assert.NotEqual(t, "tiktok-access-token", sealed)

	opened, err := Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "tiktok-access-token", opened)
}

func TestDecryptWrongKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	other := []byte("fedcba9876543210fedcba9876543210")

	sealed, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	_, err = Decrypt(sealed, other)
	assert.Error(t, err)
}

func TestDecryptGarbage(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	_, err := Decrypt("not-base64!!", key)
	assert.Error(t, err)

	_, err = Decrypt("c2hvcnQ=", key)
	assert.Error(t, err)
}

func TestEncryptBadKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("data"), []byte("short-key"))
	assert.Error(t, err)
}
