package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrDecryption is returned when ciphertext cannot be decrypted: corrupt
// input, or input produced under a different key. Callers must never treat
// it as an empty value.
var ErrDecryption = errors.New("vault: decryption failed")

// KeySize is the required key length for AES-256.
const KeySize = 32

// Vault encrypts and decrypts credential fields with a single process-wide
// symmetric key. With an empty key it degrades to pass-through and logs at
// Error level on every call; that mode exists for development only and
// config refuses it in production.
type Vault struct {
	key    []byte
	logger *slog.Logger
}

// New creates a Vault. An empty key yields a pass-through vault; any other
// key must be exactly KeySize bytes.
func New(key string, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		logger.Error("field encryption key is not set; credentials will be stored in PLAINTEXT")
		return &Vault{logger: logger}, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: key must be exactly %d bytes, got %d", KeySize, len(key))
	}
	return &Vault{key: []byte(key), logger: logger}, nil
}

// Passthrough reports whether the vault operates without encryption.
func (v *Vault) Passthrough() bool {
	return v.key == nil
}

// EncryptString encrypts a credential field and returns it base64-encoded.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	if v.Passthrough() {
		v.logger.Error("encrypting credential field without a key; storing PLAINTEXT")
		return plaintext, nil
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString decrypts a field previously produced by EncryptString.
// Malformed input or a key mismatch yields ErrDecryption, never garbage.
func (v *Vault) DecryptString(ciphertext string) (string, error) {
	if v.Passthrough() {
		v.logger.Error("decrypting credential field without a key; assuming PLAINTEXT storage")
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding: %v", ErrDecryption, err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: failed to create GCM: %w", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}
