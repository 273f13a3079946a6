package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestDeriveKeyDeterministicLengths(t *testing.T) {
	for _, n := range []int{16, 24, 32} {
		a, err := DeriveKey("some secret", n)
		if err != nil {
			t.Fatalf("derive %d: %v", n, err)
		}
		b, _ := DeriveKey("some secret", n)
		if len(a) != n {
			t.Fatalf("expected %d bytes, got %d", n, len(a))
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("derive %d not deterministic", n)
		}
	}
	other, _ := DeriveKey("other secret", 32)
	same, _ := DeriveKey("some secret", 32)
	if bytes.Equal(other, same) {
		t.Fatal("different secrets produced the same key")
	}
}

func TestDeriveKeyRejectsBadLength(t *testing.T) {
	if _, err := DeriveKey("s", 20); !errors.Is(err, ErrInvalidKeyLength) {
		t.Fatalf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, _ := DeriveKey("k", 24)
	for _, s := range []string{"a", "hello world", "ünïcødé ✓", strings.Repeat("x", 15), strings.Repeat("y", 16)} {
		enc, err := Encrypt(s, key)
		if err != nil {
			t.Fatalf("encrypt %q: %v", s, err)
		}
		dec, err := Decrypt(enc, key)
		if err != nil {
			t.Fatalf("decrypt %q: %v", s, err)
		}
		if dec != s {
			t.Fatalf("round trip mismatch: got %q want %q", dec, s)
		}
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	key, _ := DeriveKey("k", 32)
	a, _ := Encrypt("same", key)
	b, _ := Encrypt("same", key)
	if a == b {
		t.Fatal("expected distinct ciphertexts for the same plaintext")
	}
}

func TestEncryptRejectsBadKey(t *testing.T) {
	if _, err := Encrypt("x", []byte("short")); !errors.Is(err, ErrInvalidKeyLength) {
		t.Fatalf("expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := Decrypt("x", []byte("short")); !errors.Is(err, ErrInvalidKeyLength) {
		t.Fatalf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestDecryptWrongKeyOrGarbage(t *testing.T) {
	key, _ := DeriveKey("right", 32)
	enc, _ := Encrypt("payload that is long enough", key)

	wrong, _ := DeriveKey("wrong", 32)
	if dec, err := Decrypt(enc, wrong); err == nil && dec == "payload that is long enough" {
		t.Fatal("decrypt with wrong key returned the plaintext")
	}

	cases := []string{
		"%%%not-base64",
		base64.StdEncoding.EncodeToString([]byte("too short")),
		base64.StdEncoding.EncodeToString(make([]byte, 33)),
	}
	for _, c := range cases {
		if _, err := Decrypt(c, key); !errors.Is(err, ErrDecryption) {
			t.Fatalf("decrypt %q: expected ErrDecryption, got %v", c, err)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope("master secret")
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	inputs := []string{
		"",
		"a",
		"user@example.com",
		"4c2b8f5e-3f1a-4e7c-9d7b-2a1f0b3c4d5e#2026-10-15 09:00:00",
		"with :: separator inside",
		strings.Repeat("0123456789", 1000),
	}
	for _, s := range inputs {
		sealed, err := env.Seal(s)
		if err != nil {
			t.Fatalf("seal %d chars: %v", len(s), err)
		}
		opened, err := env.Open(sealed)
		if err != nil {
			t.Fatalf("open %d chars: %v", len(s), err)
		}
		if opened != s {
			t.Fatalf("round trip mismatch for %d chars", len(s))
		}
	}
}

func TestEnvelopeEmptySkipsCipher(t *testing.T) {
	called := false
	env, _ := NewEnvelope("master")
	env = env.WithKeyGenerator(func() (string, error) {
		called = true
		return "", nil
	})
	sealed, err := env.Seal("")
	if err != nil || sealed != "" {
		t.Fatalf("expected empty seal, got %q, %v", sealed, err)
	}
	if called {
		t.Fatal("key generator invoked for empty plaintext")
	}
	opened, err := env.Open("")
	if err != nil || opened != "" {
		t.Fatalf("expected empty open, got %q, %v", opened, err)
	}
}

func TestEnvelopeComposesWrapFunctions(t *testing.T) {
	const fixed = "ABCDEFGHIJKLMNOPQRSTUVWXYZ012345"
	env, _ := NewEnvelope("master")
	env = env.WithKeyGenerator(func() (string, error) { return fixed, nil })

	sealed, err := env.Seal("hello")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("outer base64: %v", err)
	}
	wrappedKey, wrappedData, ok := strings.Cut(string(raw), "::")
	if !ok {
		t.Fatal("sealed value missing separator")
	}

	master, _ := DeriveKey("master", 32)
	key, err := UnwrapKey(wrappedKey, master)
	if err != nil || key != fixed {
		t.Fatalf("unwrap key: %q, %v", key, err)
	}
	data, err := UnwrapData(wrappedData, key)
	if err != nil || data != "hello" {
		t.Fatalf("unwrap data: %q, %v", data, err)
	}
}

func TestEnvelopeFormatErrors(t *testing.T) {
	env, _ := NewEnvelope("master")
	noSep := base64.StdEncoding.EncodeToString([]byte("nodelimiterhere"))
	if _, err := env.Open(noSep); !errors.Is(err, ErrEnvelopeFormat) {
		t.Fatalf("expected ErrEnvelopeFormat, got %v", err)
	}
	if _, err := env.Open("***"); !errors.Is(err, ErrEnvelopeFormat) {
		t.Fatalf("expected ErrEnvelopeFormat for bad base64, got %v", err)
	}
}

func TestEnvelopeDifferentMasterCannotOpen(t *testing.T) {
	a, _ := NewEnvelope("master-a")
	b, _ := NewEnvelope("master-b")
	sealed, _ := a.Seal("secret value")
	if got, err := b.Open(sealed); err == nil && got == "secret value" {
		t.Fatal("foreign master key opened the envelope")
	}
}

func TestRandomKeyString(t *testing.T) {
	k, err := RandomKeyString()
	if err != nil {
		t.Fatalf("random key: %v", err)
	}
	if len(k) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(k))
	}
	for _, c := range k {
		if !strings.ContainsRune(randomKeyChars, c) {
			t.Fatalf("unexpected char %q", c)
		}
	}
}

func TestSHA1Hex(t *testing.T) {
	if got := SHA1Hex("abc"); got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Fatalf("unexpected digest %s", got)
	}
}
