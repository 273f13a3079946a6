package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var (
	ErrInvalidKeyLength = errors.New("invalid aes key length")
	ErrDecryption       = errors.New("decryption failed")
)

// Plaintext is encoded as UTF-16LE before padding.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DeriveKey reduces an arbitrary secret to a key of length bytes (16, 24 or 32)
// by truncating its SHA-256 digest.
func DeriveKey(secret string, length int) ([]byte, error) {
	if !validKeyLength(length) {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKeyLength, length)
	}
	sum := sha256.Sum256([]byte(secret))
	key := make([]byte, length)
	copy(key, sum[:length])
	return key, nil
}

// Encrypt encrypts plaintext under key with AES-CBC and a fresh random IV.
// The result is base64(IV || ciphertext).
func Encrypt(plaintext string, key []byte) (string, error) {
	if !validKeyLength(len(key)) {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	encoded, err := utf16le.NewEncoder().Bytes([]byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("encode plaintext: %w", err)
	}
	padded := pkcs7Pad(encoded, aes.BlockSize)

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func Decrypt(encoded string, key []byte) (string, error) {
	if !validKeyLength(len(key)) {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidKeyLength, len(key))
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrDecryption, len(raw))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if len(plain)%2 != 0 {
		return "", fmt.Errorf("%w: odd utf-16 length", ErrDecryption)
	}
	decoded, err := utf16le.NewDecoder().Bytes(plain)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(decoded), nil
}

func validKeyLength(n int) bool {
	return n == 16 || n == 24 || n == 32
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length", ErrDecryption)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}
