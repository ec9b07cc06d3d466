package certificate

import (
	"errors"
	"fmt"

	"fieldcert/go-certifier/internal/fieldcrypto"
	"fieldcert/go-certifier/internal/identity"
	"fieldcert/go-certifier/internal/revocation"
)

var (
	ErrRevocationRefUnavailable = errors.New("revocation ref provider failed")
	ErrEncryptionFailure        = errors.New("field encryption failed")
)

// Issuer builds signed, field-encrypted certificates for subjects.
// Issuance is pure computation: it needs no reachability to the subject,
// only their public key.
type Issuer struct {
	certifier *identity.Identity
	certType  string
	anchors   revocation.Provider
}

func NewIssuer(certifier *identity.Identity, certType string, anchors revocation.Provider) *Issuer {
	if anchors == nil {
		anchors = revocation.NoneProvider{}
	}
	return &Issuer{certifier: certifier, certType: certType, anchors: anchors}
}

// Issue encrypts each field under its derived key, wraps the key to the
// subject for the keyring, mints a serial and an anchor, and signs the
// canonical bytes. The result is decryptable by the subject (private key
// plus keyring) and by the certifier (direct re-derivation, no keyring).
func (i *Issuer) Issue(subjectKey []byte, fieldValues map[string][]byte) (*Certificate, error) {
	if _, err := identity.ParsePublicKey(subjectKey); err != nil {
		return nil, ErrMalformedSubject
	}

	fields := make(map[string][]byte, len(fieldValues))
	keyring := make(map[string][]byte, len(fieldValues))
	for name, value := range fieldValues {
		fieldKey, err := fieldcrypto.DeriveFieldKey(i.certifier, subjectKey, name)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrEncryptionFailure, name, err)
		}
		ciphertext, err := fieldcrypto.SealField(fieldKey, value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrEncryptionFailure, name, err)
		}
		wrapped, err := fieldcrypto.WrapKeyToSubject(subjectKey, fieldKey)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrEncryptionFailure, name, err)
		}
		fields[name] = ciphertext
		keyring[name] = wrapped
	}

	serial, err := NewSerialNumber()
	if err != nil {
		return nil, err
	}
	ref, err := i.anchors.NextRef()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRevocationRefUnavailable, err)
	}

	cert := &Certificate{
		Type:          i.certType,
		SerialNumber:  serial,
		SubjectKey:    append([]byte(nil), subjectKey...),
		CertifierKey:  i.certifier.PublicKey(),
		Fields:        fields,
		Keyring:       keyring,
		RevocationRef: ref,
	}
	payload, err := cert.SigningBytes()
	if err != nil {
		return nil, err
	}
	cert.Signature, err = i.certifier.Sign(payload)
	if err != nil {
		return nil, err
	}
	return cert, nil
}
