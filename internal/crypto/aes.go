package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	// ErrInvalidKeyLength is returned when the provided key length is invalid.
	ErrInvalidKeyLength = errors.New("invalid key length")
	// ErrCiphertextTooShort is returned when a blob cannot hold its header.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// EncryptAESGCM seals plaintext with a 32-byte key. The output is nonce || ciphertext.
func EncryptAESGCM(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

// DecryptAESGCM opens a blob produced by EncryptAESGCM.
func DecryptAESGCM(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(blob) < ns {
		return nil, ErrCiphertextTooShort
	}
	return gcm.Open(nil, blob[:ns], blob[ns:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// randomBytes generates a slice of random bytes of the given length.
func randomBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustRandom returns n random bytes or panics.
func MustRandom(n int) []byte {
	b, err := randomBytes(n)
	if err != nil {
		panic(err)
	}
	return b
}
