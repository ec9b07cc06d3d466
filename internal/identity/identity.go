package identity

import (
	"crypto/sha256"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// PublicKeySize is the length of a compressed secp256k1 public key.
const PublicKeySize = 33

var (
	ErrInvalidKey       = errors.New("invalid identity key")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Identity wraps a secp256k1 keypair. The private key never leaves this
// package; callers get signing and key-agreement capabilities only.
type Identity struct {
	priv *secp256k1.PrivateKey
}

func Generate() (*Identity, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv}, nil
}

// FromPrivateKeyBytes restores an identity from 32 raw scalar bytes.
func FromPrivateKeyBytes(b []byte) (*Identity, error) {
	if len(b) != 32 {
		return nil, ErrInvalidKey
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, ErrInvalidKey
	}
	return &Identity{priv: priv}, nil
}

// PublicKey returns the compressed 33-byte public key.
func (id *Identity) PublicKey() []byte {
	return id.priv.PubKey().SerializeCompressed()
}

// Sign produces a DER-encoded ECDSA signature over SHA-256(message).
func (id *Identity) Sign(message []byte) ([]byte, error) {
	if id == nil || id.priv == nil || id.priv.Key.IsZero() {
		return nil, ErrInvalidKey
	}
	digest := sha256.Sum256(message)
	return ecdsa.Sign(id.priv, digest[:]).Serialize(), nil
}

// SharedSecret runs ECDH against a compressed counterparty public key.
// The result is identical on both sides of the exchange.
func (id *Identity) SharedSecret(counterpartyPub []byte) ([]byte, error) {
	if id == nil || id.priv == nil || id.priv.Key.IsZero() {
		return nil, ErrInvalidKey
	}
	pub, err := ParsePublicKey(counterpartyPub)
	if err != nil {
		return nil, err
	}
	return secp256k1.GenerateSharedSecret(id.priv, pub), nil
}

// ParsePublicKey validates and parses a compressed public key.
func ParsePublicKey(b []byte) (*secp256k1.PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// Verify checks a DER signature over SHA-256(message) against a
// compressed public key.
func Verify(publicKey, message, sig []byte) error {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return err
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	digest := sha256.Sum256(message)
	if !parsed.Verify(digest[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}

// Fingerprint derives a short printable handle for a public key, used in
// logs and store listings instead of raw key material.
func Fingerprint(publicKey []byte) string {
	h := blake2b.Sum256(publicKey)
	return "fc1" + base58.Encode(h[:16])
}
