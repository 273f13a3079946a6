package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrEnvelopeFormat = errors.New("invalid envelope format")

const (
	envelopeSeparator = "::"
	dataKeyLength     = 32
	randomKeyChars    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// KeyGenerator produces the per-value random key string.
type KeyGenerator func() (string, error)

// Envelope encrypts short strings under a per-value random key which is
// itself encrypted under a fixed master key. Both blobs travel together, so
// no key storage is needed.
type Envelope struct {
	masterKey []byte
	newKey    KeyGenerator
}

// NewEnvelope derives the master key from masterSecret.
func NewEnvelope(masterSecret string) (*Envelope, error) {
	if masterSecret == "" {
		return nil, errors.New("envelope master secret is required")
	}
	key, err := DeriveKey(masterSecret, dataKeyLength)
	if err != nil {
		return nil, err
	}
	return &Envelope{masterKey: key, newKey: RandomKeyString}, nil
}

// WithKeyGenerator swaps the random key source; tests use it to pin keys.
func (e *Envelope) WithKeyGenerator(gen KeyGenerator) *Envelope {
	return &Envelope{masterKey: e.masterKey, newKey: gen}
}

// Seal returns base64(wrapKey || "::" || wrapData). Empty input stays empty.
func (e *Envelope) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	randomKey, err := e.newKey()
	if err != nil {
		return "", fmt.Errorf("generate data key: %w", err)
	}
	wrappedKey, err := WrapKey(randomKey, e.masterKey)
	if err != nil {
		return "", err
	}
	wrappedData, err := WrapData(plaintext, randomKey)
	if err != nil {
		return "", err
	}
	joined := wrappedKey + envelopeSeparator + wrappedData
	return base64.StdEncoding.EncodeToString([]byte(joined)), nil
}

// Open reverses Seal. Empty input yields an empty string.
func (e *Envelope) Open(wrapped string) (string, error) {
	if wrapped == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnvelopeFormat, err)
	}
	wrappedKey, wrappedData, ok := strings.Cut(string(decoded), envelopeSeparator)
	if !ok {
		return "", fmt.Errorf("%w: missing separator", ErrEnvelopeFormat)
	}
	randomKey, err := UnwrapKey(wrappedKey, e.masterKey)
	if err != nil {
		return "", err
	}
	return UnwrapData(wrappedData, randomKey)
}

// WrapKey encrypts the random key string under the master key.
func WrapKey(randomKey string, masterKey []byte) (string, error) {
	return Encrypt(randomKey, masterKey)
}

// UnwrapKey decrypts a key wrapped by WrapKey.
func UnwrapKey(wrappedKey string, masterKey []byte) (string, error) {
	return Decrypt(wrappedKey, masterKey)
}

// WrapData encrypts plaintext under a key derived from randomKey.
func WrapData(plaintext, randomKey string) (string, error) {
	key, err := DeriveKey(randomKey, dataKeyLength)
	if err != nil {
		return "", err
	}
	return Encrypt(plaintext, key)
}

// UnwrapData decrypts data wrapped by WrapData.
func UnwrapData(wrappedData, randomKey string) (string, error) {
	key, err := DeriveKey(randomKey, dataKeyLength)
	if err != nil {
		return "", err
	}
	return Decrypt(wrappedData, key)
}

// RandomKeyString returns 32 random alphanumeric characters.
func RandomKeyString() (string, error) {
	var sb strings.Builder
	sb.Grow(32)
	max := big.NewInt(int64(len(randomKeyChars)))
	for i := 0; i < 32; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(randomKeyChars[n.Int64()])
	}
	return sb.String(), nil
}
