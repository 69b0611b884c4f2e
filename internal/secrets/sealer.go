// Package secrets seals verification credential fields at rest using age encryption.
package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"filippo.io/age"
)

var (
	// ErrNoPrivateKey is returned when sealed data is opened without a private key.
	ErrNoPrivateKey = errors.New("no private key configured for decryption")
	// ErrDecryptionFailed is returned when decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrEncryptionFailed is returned when encryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrInvalidKey is returned when a key is invalid.
	ErrInvalidKey = errors.New("invalid key format")
)

// Credentials are the free-form fields a doctor or facility submits for
// verification, such as licence numbers and registration bodies.
type Credentials map[string]string

// Config holds the age keys used for sealing.
type Config struct {
	// AgePublicKey is the age public key for encryption.
	// Format: age1... (Bech32 encoded)
	AgePublicKey string
	// AgePrivateKey is the age private key for decryption.
	// Format: AGE-SECRET-KEY-1... (Bech32 encoded)
	AgePrivateKey string
}

// Sealer encrypts credentials with a configured age recipient.
// Without a public key it stores credentials as plain JSON.
type Sealer struct {
	publicKey  *age.X25519Recipient
	privateKey *age.X25519Identity
	logger     *slog.Logger
}

// NewSealer creates a sealer from the given configuration.
func NewSealer(cfg *Config, logger *slog.Logger) (*Sealer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sealer{logger: logger}

	if cfg != nil && cfg.AgePublicKey != "" {
		recipient, err := age.ParseX25519Recipient(cfg.AgePublicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid public key: %v", ErrInvalidKey, err)
		}
		s.publicKey = recipient
	}

	if cfg != nil && cfg.AgePrivateKey != "" {
		identity, err := age.ParseX25519Identity(cfg.AgePrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid private key: %v", ErrInvalidKey, err)
		}
		s.privateKey = identity
	}

	if s.publicKey == nil {
		logger.Warn("no credentials encryption key configured, verification credentials will be stored unencrypted")
	}

	return s, nil
}

// CanEncrypt returns true if the sealer is configured for encryption.
func (s *Sealer) CanEncrypt() bool {
	return s.publicKey != nil
}

// Seal serialises creds and encrypts them when a public key is configured.
// The returned flag reports whether the bytes are age ciphertext.
func (s *Sealer) Seal(ctx context.Context, creds Credentials) ([]byte, bool, error) {
	if creds == nil {
		creds = Credentials{}
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling credentials: %w", err)
	}
	if s.publicKey == nil {
		return plaintext, false, nil
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.publicKey)
	if err != nil {
		s.logger.Error("failed to create age encryptor", "error", err)
		return nil, false, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	if _, err := w.Write(plaintext); err != nil {
		s.logger.Error("failed to write plaintext to encryptor", "error", err)
		return nil, false, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	if err := w.Close(); err != nil {
		s.logger.Error("failed to close encryptor", "error", err)
		return nil, false, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	return buf.Bytes(), true, nil
}

// Open reverses Seal.
func (s *Sealer) Open(ctx context.Context, data []byte, encrypted bool) (Credentials, error) {
	plaintext := data
	if encrypted {
		if s.privateKey == nil {
			return nil, ErrNoPrivateKey
		}

		r, err := age.Decrypt(bytes.NewReader(data), s.privateKey)
		if err != nil {
			s.logger.Error("failed to create age decryptor", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}

		plaintext, err = io.ReadAll(r)
		if err != nil {
			s.logger.Error("failed to read decrypted data", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
	}

	creds := Credentials{}
	if len(plaintext) == 0 {
		return creds, nil
	}
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("unmarshaling credentials: %w", err)
	}
	return creds, nil
}

// GenerateKeyPair generates a new age key pair.
func GenerateKeyPair() (publicKey, privateKey string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate age key pair: %w", err)
	}

	return identity.Recipient().String(), identity.String(), nil
}
