package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// Channel-manager credentials (API keys, webhook secrets) are stored
// encrypted at rest. The AES-256-GCM key is derived from
// CREDENTIALS_MASTER_KEY; the salt is static per deployment so every
// instance derives the same key.

var credentialSalt = []byte("hotel-backend-credentials-v1")

func credentialKey() ([]byte, error) {
	master := os.Getenv("CREDENTIALS_MASTER_KEY")
	if master == "" {
		return nil, errors.New("CREDENTIALS_MASTER_KEY is not set")
	}
	return pbkdf2.Key([]byte(master), credentialSalt, 4096, 32, sha256.New), nil
}

func EncryptCredential(plaintext string) (string, error) {
	key, err := credentialKey()
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func DecryptCredential(encoded string) (string, error) {
	key, err := credentialKey()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
