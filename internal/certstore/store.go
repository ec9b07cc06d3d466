// Package certstore is the subject-side holder of acquired certificates.
// A store never keeps a certificate whose signature does not validate;
// that is the one integrity check it performs independently of the
// issuer's honesty.
package certstore

import (
	"bytes"
	"sync"

	"fieldcert/go-certifier/internal/certificate"
)

// Summary is the listing view of a stored certificate. Field values stay
// encrypted; only names are exposed.
type Summary struct {
	Type          string   `json:"type"`
	SerialNumber  string   `json:"serialNumber"`
	CertifierKey  []byte   `json:"certifierKey"`
	FieldNames    []string `json:"fieldNames"`
	RevocationRef string   `json:"revocationRef"`
}

// Filter narrows List results. Empty slices match everything.
type Filter struct {
	Certifiers [][]byte
	Types      []string
}

func (f Filter) matches(cert *certificate.Certificate) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == cert.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Certifiers) > 0 {
		found := false
		for _, c := range f.Certifiers {
			if bytes.Equal(c, cert.CertifierKey) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Store holds certificates keyed by (type, serial, certifier).
type Store interface {
	// AcquireDirect validates and inserts a pre-built certificate.
	// A prior entry under the same key is replaced, which is what makes
	// re-certification flows work.
	AcquireDirect(cert *certificate.Certificate) error
	// Get returns the certificate stored under key, if any.
	Get(key certificate.Key) (*certificate.Certificate, bool, error)
	// List returns summaries of stored certificates matching the filter.
	List(filter Filter) ([]Summary, error)
	// Remove deletes the entry under key. Removing an absent entry is
	// not an error.
	Remove(key certificate.Key) error
}

func validate(cert *certificate.Certificate) error {
	if err := cert.ValidateShape(); err != nil {
		return err
	}
	return cert.VerifySignature()
}

func summarize(cert *certificate.Certificate) Summary {
	return Summary{
		Type:          cert.Type,
		SerialNumber:  cert.SerialNumber,
		CertifierKey:  append([]byte(nil), cert.CertifierKey...),
		FieldNames:    cert.FieldNames(),
		RevocationRef: cert.RevocationRef,
	}
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu    sync.RWMutex
	certs map[certificate.Key]*certificate.Certificate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{certs: make(map[certificate.Key]*certificate.Certificate)}
}

func (s *MemoryStore) AcquireDirect(cert *certificate.Certificate) error {
	if err := validate(cert); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.certs, cert.Key())
	s.certs[cert.Key()] = cert
	return nil
}

func (s *MemoryStore) Get(key certificate.Key) (*certificate.Certificate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[key]
	return cert, ok, nil
}

func (s *MemoryStore) List(filter Filter) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.certs))
	for _, cert := range s.certs {
		if filter.matches(cert) {
			out = append(out, summarize(cert))
		}
	}
	return out, nil
}

func (s *MemoryStore) Remove(key certificate.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.certs, key)
	return nil
}
