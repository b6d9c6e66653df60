// Package privacy provides the encrypt/decrypt capability used for memory
// snapshots at rest.
package privacy

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"vtuber/internal/logging"
)

// KeySize is the length in bytes of a SecretBox key.
const KeySize = chacha20poly1305.KeySize

// DefaultKeyFile is the key file name used inside a storage directory.
const DefaultKeyFile = ".encryption_key"

var (
	// ErrDecrypt is returned when a ciphertext cannot be authenticated.
	ErrDecrypt = errors.New("privacy: decryption failed")
	// ErrBadKey is returned for keys that are not KeySize bytes of base64.
	ErrBadKey = errors.New("privacy: invalid key")
)

// Cipher encrypts and decrypts opaque byte blobs.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SecretBox is an XChaCha20-Poly1305 Cipher. Output is nonce || sealed.
type SecretBox struct {
	key []byte
}

// NewSecretBox creates a SecretBox from a raw key of KeySize bytes.
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrBadKey, KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &SecretBox{key: k}, nil
}

// NewSecretBoxFromBase64 decodes a standard or URL-safe base64 key.
func NewSecretBoxFromBase64(encoded string) (*SecretBox, error) {
	key, err := DecodeKey(encoded)
	if err != nil {
		return nil, err
	}
	return NewSecretBox(key)
}

// Encrypt seals plaintext under a fresh random nonce.
func (s *SecretBox) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("privacy: generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt.
func (s *SecretBox) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plain, nil
}

// GenerateKey returns a new random key encoded as URL-safe base64.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

// DecodeKey parses a base64 key in either standard or URL-safe alphabet.
func DecodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrBadKey, KeySize, len(key))
	}
	return key, nil
}

// LoadOrCreateKeyFile reads the key stored at path, generating and saving a
// new one (mode 0600) when the file does not exist.
func LoadOrCreateKeyFile(path string) (*SecretBox, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		logging.MemoryDebug("loaded encryption key from %s", path)
		return NewSecretBoxFromBase64(string(data))
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("privacy: reading key file: %w", err)
	}

	encoded, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("privacy: generating key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("privacy: creating key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("privacy: writing key file: %w", err)
	}
	logging.Memory("generated new encryption key at %s", path)
	return NewSecretBoxFromBase64(encoded)
}
