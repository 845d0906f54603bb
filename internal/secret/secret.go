package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/99designs/keyring"
)

const (
	encPrefix     = "enc:"
	keyringPrefix = "keyring:"
	serviceName   = "mailwatch"
)

// Encrypt encrypts a secret using AES-256-GCM and returns an "enc:" value
func Encrypt(key, plaintext string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a value produced by Encrypt; the "enc:" prefix is optional
func Decrypt(key, encrypted string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encrypted, encPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(key string) (cipher.AEAD, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Lookup returns a secret stored in the system keyring
type Lookup func(key string) (string, error)

// Resolver turns configured secret values into plaintext.
// Values prefixed with "enc:" are decrypted with the encryption key,
// values prefixed with "keyring:" are read from the keyring,
// anything else is returned unchanged.
type Resolver struct {
	EncryptionKey string
	Keyring       Lookup
}

// NewResolver creates a resolver backed by the system keyring
func NewResolver(encryptionKey string) *Resolver {
	return &Resolver{
		EncryptionKey: encryptionKey,
		Keyring:       KeyringGet,
	}
}

// Resolve returns the plaintext for a configured secret value
func (r *Resolver) Resolve(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, encPrefix):
		if r.EncryptionKey == "" {
			return "", fmt.Errorf("encrypted secret requires ENCRYPTION_KEY")
		}
		return Decrypt(r.EncryptionKey, value)
	case strings.HasPrefix(value, keyringPrefix):
		if r.Keyring == nil {
			return "", fmt.Errorf("keyring lookup is not available")
		}
		return r.Keyring(strings.TrimPrefix(value, keyringPrefix))
	default:
		return value, nil
	}
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailwatch/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailwatch-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, nil
}

// KeyringGet retrieves a secret by key from the system keyring
func KeyringGet(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", key, err)
	}

	return string(item.Data), nil
}

// KeyringSet stores a secret by key in the system keyring
func KeyringSet(key, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("failed to set secret %q: %w", key, err)
	}
	return nil
}
