package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptFile(t *testing.T) {
	plain := []byte("this is some test data")

	key, err := GenerateFileKey()
	require.NoError(t, err)
	require.Len(t, key, 64)

	blob, err := EncryptFile(plain, key)
	require.NoError(t, err)
	require.False(t, bytes.Contains(blob, plain))
	require.Len(t, blob, fileSaltSize+fileIVSize+len(plain)+16)

	decrypted, err := DecryptFile(blob, key)
	require.NoError(t, err)
	require.Equal(t, plain, decrypted)
}

func TestDecryptFileWrongPassword(t *testing.T) {
	blob, err := EncryptFile([]byte("secret"), "right")
	require.NoError(t, err)

	_, err = DecryptFile(blob, "wrong")
	require.Error(t, err)

	_, err = DecryptFile(blob[:10], "right")
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := MustRandom(32)
	blob, err := EncryptAESGCM(key, []byte(`{"private_key":"0xabc"}`))
	require.NoError(t, err)

	plain, err := DecryptAESGCM(key, blob)
	require.NoError(t, err)
	require.Equal(t, `{"private_key":"0xabc"}`, string(plain))

	_, err = EncryptAESGCM(key[:16], []byte("x"))
	require.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = DecryptAESGCM(key, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}
