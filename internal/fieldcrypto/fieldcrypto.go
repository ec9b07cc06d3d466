// Package fieldcrypto implements the per-field key schedule shared by the
// certifier and the subject. Both sides derive the same symmetric key from
// an ECDH secret and the field label, so a field encrypted at issuance can
// be re-opened later by either party without the key ever crossing the
// wire in the clear.
package fieldcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"fieldcert/go-certifier/internal/identity"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	fieldKeyInfoPrefix = "fieldcert/fieldkey/v1|"
	keyringInfo        = "fieldcert/keyring/v1"

	// KeySize is the symmetric key length for field encryption.
	KeySize = chacha20poly1305.KeySize
)

var (
	ErrInvalidCounterpartyKey = errors.New("invalid counterparty key")
	ErrMalformedCiphertext    = errors.New("malformed ciphertext")
	ErrDecryptFailed          = errors.New("decryption failed")
)

// DeriveFieldKey computes the symmetric key for one certificate field.
// The label is folded into the HKDF info string so distinct fields never
// share a key even under the same ECDH secret. Deterministic: the same
// identity pair and label always yield the same key, on either side.
func DeriveFieldKey(self *identity.Identity, counterpartyPub []byte, fieldLabel string) ([]byte, error) {
	secret, err := self.SharedSecret(counterpartyPub)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidPublicKey) {
			return nil, ErrInvalidCounterpartyKey
		}
		return nil, err
	}
	return kdf(secret, fieldKeyInfoPrefix+fieldLabel), nil
}

// SealField encrypts a field value under a derived key. Output layout is
// nonce(24) followed by the AEAD box.
func SealField(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenField reverses SealField. Authentication failure is reported as
// ErrDecryptFailed; no partial plaintext is ever returned.
func OpenField(key, data []byte) ([]byte, error) {
	if len(data) < chacha20poly1305.NonceSizeX {
		return nil, ErrMalformedCiphertext
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, box := data[:chacha20poly1305.NonceSizeX], data[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// WrapKeyToSubject encrypts a field key to the subject's public key so
// only the subject can recover it from the certificate keyring. Layout is
// ephemeralPub(33) then nonce(24) then the AEAD box.
func WrapKeyToSubject(subjectPub, fieldKey []byte) ([]byte, error) {
	if _, err := identity.ParsePublicKey(subjectPub); err != nil {
		return nil, ErrInvalidCounterpartyKey
	}
	eph, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	secret, err := eph.SharedSecret(subjectPub)
	if err != nil {
		return nil, err
	}
	box, err := SealField(kdf(secret, keyringInfo), fieldKey)
	if err != nil {
		return nil, err
	}
	return append(eph.PublicKey(), box...), nil
}

// UnwrapKey recovers a field key from a keyring entry using the subject's
// private key.
func UnwrapKey(subject *identity.Identity, entry []byte) ([]byte, error) {
	if len(entry) < identity.PublicKeySize+chacha20poly1305.NonceSizeX {
		return nil, ErrMalformedCiphertext
	}
	ephPub := entry[:identity.PublicKeySize]
	secret, err := subject.SharedSecret(ephPub)
	if err != nil {
		return nil, err
	}
	return OpenField(kdf(secret, keyringInfo), entry[identity.PublicKeySize:])
}

func kdf(secret []byte, info string) []byte {
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, KeySize)
	_, _ = io.ReadFull(reader, out)
	return out
}
