package securestore

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("abandon ability able about above absent absorb abstract absurd abuse access accident")

	sealed, err := Encrypt("correct horse", plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("envelope leaks plaintext")
	}

	opened, err := Decrypt("correct horse", sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatal("round trip mismatch")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	sealed, err := Encrypt("right", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt("wrong", sealed); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	sealed, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	sealed[len(sealed)-10] ^= 0x01
	if _, err := Decrypt("pass", sealed); err == nil {
		t.Fatal("tampered envelope must not decrypt")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("short"), []byte("FCENC1\nnot-json")} {
		if _, err := Decrypt("pass", data); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", data, err)
		}
	}
}
