package certificate

import (
	"bytes"
	"errors"
	"fmt"

	"fieldcert/go-certifier/internal/fieldcrypto"
	"fieldcert/go-certifier/internal/identity"
)

var ErrCertifierMismatch = errors.New("certificate names a different certifier")

// FieldDecryptionError identifies which field failed AEAD authentication.
// The field name is safe to log server-side; it never reaches callers.
type FieldDecryptionError struct {
	Field string
	Err   error
}

func (e *FieldDecryptionError) Error() string {
	return fmt.Sprintf("field %q decryption failed: %v", e.Field, e.Err)
}

func (e *FieldDecryptionError) Unwrap() error { return e.Err }

// DecryptFields opens every field of a certificate using the certifier's
// own key material. The certifier re-derives each field key directly from
// ECDH with the subject key; the keyring is not consulted.
//
// The signature and the certifier binding are checked before any
// decryption is attempted.
func DecryptFields(cert *Certificate, certifier *identity.Identity) (map[string][]byte, error) {
	if !bytes.Equal(cert.CertifierKey, certifier.PublicKey()) {
		return nil, ErrCertifierMismatch
	}
	if err := cert.VerifySignature(); err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(cert.Fields))
	for name, ciphertext := range cert.Fields {
		fieldKey, err := fieldcrypto.DeriveFieldKey(certifier, cert.SubjectKey, name)
		if err != nil {
			return nil, &FieldDecryptionError{Field: name, Err: err}
		}
		plaintext, err := fieldcrypto.OpenField(fieldKey, ciphertext)
		if err != nil {
			return nil, &FieldDecryptionError{Field: name, Err: err}
		}
		out[name] = plaintext
	}
	return out, nil
}

// DecryptFieldsAsSubject opens every field from the subject's side: each
// field key is unwrapped from the keyring with the subject's private key.
func DecryptFieldsAsSubject(cert *Certificate, subject *identity.Identity) (map[string][]byte, error) {
	if !bytes.Equal(cert.SubjectKey, subject.PublicKey()) {
		return nil, ErrMalformedSubject
	}
	if err := cert.ValidateShape(); err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(cert.Fields))
	for name, ciphertext := range cert.Fields {
		fieldKey, err := fieldcrypto.UnwrapKey(subject, cert.Keyring[name])
		if err != nil {
			return nil, &FieldDecryptionError{Field: name, Err: err}
		}
		plaintext, err := fieldcrypto.OpenField(fieldKey, ciphertext)
		if err != nil {
			return nil, &FieldDecryptionError{Field: name, Err: err}
		}
		out[name] = plaintext
	}
	return out, nil
}
