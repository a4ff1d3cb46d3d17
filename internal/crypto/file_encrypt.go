package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// File encryption layout used by the storage network's clients:
// salt(16) || iv(12) || AES-256-GCM ciphertext, with the AES key derived
// from the file password by PBKDF2-SHA256.
const (
	fileSaltSize   = 16
	fileIVSize     = 12
	fileIterations = 250000
	fileKeySize    = 32
)

// GenerateFileKey returns a fresh random file password as 64 hex chars.
func GenerateFileKey() (string, error) {
	b, err := randomBytes(32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func deriveFileKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, fileIterations, fileKeySize, sha256.New)
}

// EncryptFile encrypts plain with a key derived from password.
func EncryptFile(plain []byte, password string) ([]byte, error) {
	salt, err := randomBytes(fileSaltSize)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(deriveFileKey(password, salt))
	if err != nil {
		return nil, err
	}
	iv, err := randomBytes(fileIVSize)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, fileSaltSize+fileIVSize+len(plain)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, iv...)
	return gcm.Seal(out, iv, plain, nil), nil
}

// DecryptFile reverses EncryptFile.
func DecryptFile(blob []byte, password string) ([]byte, error) {
	if len(blob) < fileSaltSize+fileIVSize {
		return nil, ErrCiphertextTooShort
	}
	salt := blob[:fileSaltSize]
	iv := blob[fileSaltSize : fileSaltSize+fileIVSize]
	gcm, err := newGCM(deriveFileKey(password, salt))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, blob[fileSaltSize+fileIVSize:], nil)
}
