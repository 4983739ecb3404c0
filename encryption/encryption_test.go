package encryption

import (
	"encoding/base64"
	"testing"

	"github.com/kbukum/speechgate/errors"
)

func newCodec(t *testing.T, alg Algorithm) Codec {
	t.Helper()
	c, err := New(Config{Key: "credential-key", Algorithm: alg})
	if err != nil {
		t.Fatalf("New(%s) failed: %v", alg, err)
	}
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmAESGCM, AlgorithmChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			c := newCodec(t, alg)
			for _, key := range []string{"", "0123456789abcdef0123456789abcdef", "키-값"} {
				sealed, err := c.Encrypt(key)
				if err != nil {
					t.Fatalf("Encrypt failed: %v", err)
				}
				if key != "" && sealed == key {
					t.Error("ciphertext should differ from plaintext")
				}
				got, err := c.Decrypt(sealed)
				if err != nil {
					t.Fatalf("Decrypt failed: %v", err)
				}
				if got != key {
					t.Errorf("round trip = %q, want %q", got, key)
				}
			}
		})
	}
}

func TestCodecNonceIsRandom(t *testing.T) {
	c := newCodec(t, AlgorithmAESGCM)
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	if a == b {
		t.Error("expected different ciphertexts for the same plaintext")
	}
}

func TestCodecDecryptFailures(t *testing.T) {
	c := newCodec(t, AlgorithmAESGCM)
	other, err := New(Config{Key: "another-key"})
	if err != nil {
		t.Fatal(err)
	}
	sealedByOther, _ := other.Encrypt("secret")

	tests := []struct {
		name  string
		input string
	}{
		{"not base64", "%%%"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("abc"))},
		{"wrong key", sealedByOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.input)
			appErr, ok := errors.AsAppError(err)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != errors.ErrCodeCredentialDecrypt {
				t.Errorf("expected CREDENTIAL_DECRYPT_FAILURE, got %s", appErr.Code)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{Key: "k"}, false},
		{"chacha", Config{Key: "k", Algorithm: AlgorithmChaCha20}, false},
		{"missing key", Config{}, true},
		{"unknown algorithm", Config{Key: "k", Algorithm: "rot13"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
