package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kbukum/speechgate/errors"
)

// Codec encrypts and decrypts credential strings.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Algorithm represents supported encryption algorithms.
type Algorithm string

const (
	// AlgorithmAESGCM is AES-256-GCM (default).
	AlgorithmAESGCM Algorithm = "aes-256-gcm"

	// AlgorithmChaCha20 is ChaCha20-Poly1305, faster on CPUs without AES-NI.
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
)

// Config selects the credential key and cipher.
type Config struct {
	Key       string    `mapstructure:"key"`
	Algorithm Algorithm `mapstructure:"algorithm"`
}

// ApplyDefaults sets the default algorithm.
func (c *Config) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmAESGCM
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("encryption.key is required")
	}
	switch c.Algorithm {
	case AlgorithmAESGCM, AlgorithmChaCha20:
		return nil
	default:
		return fmt.Errorf("encryption.algorithm must be %s or %s, got %q", AlgorithmAESGCM, AlgorithmChaCha20, c.Algorithm)
	}
}

type aeadCodec struct {
	aead cipher.AEAD
}

// New creates a Codec. The key is hashed with SHA-256 to the 32 bytes both
// ciphers need.
func New(cfg Config) (Codec, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(cfg.Key))

	var (
		aead cipher.AEAD
		err  error
	)
	switch cfg.Algorithm {
	case AlgorithmChaCha20:
		aead, err = chacha20poly1305.New(sum[:])
		if err != nil {
			return nil, fmt.Errorf("create chacha20: %w", err)
		}
	default:
		block, berr := aes.NewCipher(sum[:])
		if berr != nil {
			return nil, fmt.Errorf("create cipher: %w", berr)
		}
		aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create GCM: %w", err)
		}
	}
	return &aeadCodec{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (c *aeadCodec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Every failure is reported as a
// CREDENTIAL_DECRYPT_FAILURE AppError.
func (c *aeadCodec) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.CredentialDecrypt(fmt.Errorf("decode base64: %w", err))
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.CredentialDecrypt(fmt.Errorf("ciphertext too short"))
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", errors.CredentialDecrypt(err)
	}
	return string(plaintext), nil
}
