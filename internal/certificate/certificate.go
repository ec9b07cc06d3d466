// Package certificate holds the signed, field-encrypted certificate data
// model plus the issuing and verifying sides of its lifecycle.
package certificate

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"fieldcert/go-certifier/internal/identity"
	"fieldcert/go-certifier/internal/revocation"
)

var (
	ErrKeyringMismatch    = errors.New("fields and keyring key sets differ")
	ErrMalformedSubject   = errors.New("malformed subject key")
	ErrMalformedCertifier = errors.New("malformed certifier key")
	ErrMissingSerial      = errors.New("missing serial number")
	ErrMissingType        = errors.New("missing certificate type")
)

// Certificate is an immutable signed bundle of encrypted attributes bound
// to a subject key and a certifier key. Any mutation after issuance
// invalidates Signature.
type Certificate struct {
	Type          string            `json:"type" cbor:"type"`
	SerialNumber  string            `json:"serialNumber" cbor:"serialNumber"`
	SubjectKey    []byte            `json:"subjectKey" cbor:"subjectKey"`
	CertifierKey  []byte            `json:"certifierKey" cbor:"certifierKey"`
	Fields        map[string][]byte `json:"fields" cbor:"fields"`
	Keyring       map[string][]byte `json:"keyring" cbor:"keyring"`
	RevocationRef string            `json:"revocationRef" cbor:"revocationRef"`
	Signature     []byte            `json:"signature,omitempty" cbor:"signature,omitempty"`
}

// Key is the certificate's identity: (type, serial, certifier) is
// globally unique.
type Key struct {
	Type         string
	SerialNumber string
	Certifier    string
}

func (c *Certificate) Key() Key {
	return Key{
		Type:         c.Type,
		SerialNumber: c.SerialNumber,
		Certifier:    hex.EncodeToString(c.CertifierKey),
	}
}

// SigningBytes returns the canonical serialization of the certificate
// minus its signature. Both issuance and verification hash exactly these
// bytes.
func (c *Certificate) SigningBytes() ([]byte, error) {
	unsigned := *c
	unsigned.Signature = nil
	return Marshal(&unsigned)
}

// ValidateShape checks the structural invariants that hold for every
// well-formed certificate, signed or not.
func (c *Certificate) ValidateShape() error {
	if c.Type == "" {
		return ErrMissingType
	}
	if c.SerialNumber == "" {
		return ErrMissingSerial
	}
	if _, err := identity.ParsePublicKey(c.SubjectKey); err != nil {
		return ErrMalformedSubject
	}
	if _, err := identity.ParsePublicKey(c.CertifierKey); err != nil {
		return ErrMalformedCertifier
	}
	if len(c.Fields) != len(c.Keyring) {
		return ErrKeyringMismatch
	}
	for name := range c.Fields {
		if _, ok := c.Keyring[name]; !ok {
			return ErrKeyringMismatch
		}
	}
	if !revocation.ValidRef(c.RevocationRef) {
		return revocation.ErrMalformedRef
	}
	return nil
}

// VerifySignature validates Signature over the canonical bytes under
// CertifierKey.
func (c *Certificate) VerifySignature() error {
	payload, err := c.SigningBytes()
	if err != nil {
		return err
	}
	return identity.Verify(c.CertifierKey, payload, c.Signature)
}

// FieldNames returns the certificate's attribute names, order unspecified.
func (c *Certificate) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	return names
}

// NewSerialNumber mints a 256-bit random serial. Collisions across any
// realistic number of issuances are negligible.
func NewSerialNumber() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("serial generation: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}
