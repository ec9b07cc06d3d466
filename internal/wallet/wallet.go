// Package wallet is the subject side of the system: it owns the subject
// identity, holds acquired certificates, and answers authentication
// challenges. A production deployment may keep the private key in an
// external signer; everything here goes through the identity's
// sign/ecdh capabilities and never touches raw key material.
package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"

	"fieldcert/go-certifier/internal/certificate"
	"fieldcert/go-certifier/internal/certstore"
	"fieldcert/go-certifier/internal/identity"
)

var ErrNotSubject = errors.New("certificate was not issued to this wallet")

// ChallengeResponse is the second leg of the auth exchange, assembled by
// the wallet from a server challenge.
type ChallengeResponse struct {
	IdentityKey  []byte
	Nonce        string
	Signature    []byte
	Certificates []*certificate.Certificate
}

type Wallet struct {
	id    *identity.Identity
	store certstore.Store
}

func New(id *identity.Identity, store certstore.Store) *Wallet {
	return &Wallet{id: id, store: store}
}

func (w *Wallet) IdentityKey() []byte {
	return w.id.PublicKey()
}

// Acquire stores a certificate issued to this wallet. The store performs
// the signature check; the wallet only refuses certificates bound to a
// different subject.
func (w *Wallet) Acquire(cert *certificate.Certificate) error {
	if !bytes.Equal(cert.SubjectKey, w.id.PublicKey()) {
		return ErrNotSubject
	}
	return w.store.AcquireDirect(cert)
}

func (w *Wallet) List(filter certstore.Filter) ([]certstore.Summary, error) {
	return w.store.List(filter)
}

// Remove drops a certificate from the wallet. Idempotent.
func (w *Wallet) Remove(key certificate.Key) error {
	return w.store.Remove(key)
}

// DecryptFields opens a held certificate's fields using the wallet's
// private key and the certificate keyring.
func (w *Wallet) DecryptFields(key certificate.Key) (map[string][]byte, error) {
	cert, ok, err := w.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("certificate not held")
	}
	return certificate.DecryptFieldsAsSubject(cert, w.id)
}

// Respond answers a challenge: it signs the nonce and attaches every held
// certificate matching the filter (typically the server's certifier key
// and accepted type from discovery).
func (w *Wallet) Respond(nonce string, filter certstore.Filter) (*ChallengeResponse, error) {
	signature, err := w.id.Sign([]byte(nonce))
	if err != nil {
		return nil, err
	}
	summaries, err := w.store.List(filter)
	if err != nil {
		return nil, err
	}
	certs := make([]*certificate.Certificate, 0, len(summaries))
	for _, s := range summaries {
		key := certificate.Key{
			Type:         s.Type,
			SerialNumber: s.SerialNumber,
			Certifier:    hex.EncodeToString(s.CertifierKey),
		}
		cert, ok, err := w.store.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			certs = append(certs, cert)
		}
	}
	return &ChallengeResponse{
		IdentityKey:  w.id.PublicKey(),
		Nonce:        nonce,
		Signature:    signature,
		Certificates: certs,
	}, nil
}
