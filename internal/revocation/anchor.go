// Package revocation defines the revocation anchor attached to every
// certificate: an external reference that can be independently checked as
// spent or unspent. Consuming the anchor permanently invalidates the
// certificate, independent of who still holds a copy.
package revocation

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// RefNone is the explicit sentinel for certificates issued without an
// anchor. A certificate carries either a well-formed ref or this value,
// never anything in between.
const RefNone = "none"

var (
	ErrRefUnavailable = errors.New("revocation ref unavailable")
	ErrMalformedRef   = errors.New("malformed revocation ref")
	ErrUnknownRef     = errors.New("unknown revocation ref")
)

// Provider mints a fresh anchor for a certificate being issued.
type Provider interface {
	NextRef() (string, error)
}

// SpentChecker reports whether an anchor has been consumed.
type SpentChecker interface {
	Spent(ref string) (bool, error)
}

// ValidRef reports whether ref is RefNone or an anchor-shaped pointer,
// a 64-hex transaction id followed by "." and an output index.
func ValidRef(ref string) bool {
	if ref == RefNone {
		return true
	}
	txid, vout, ok := strings.Cut(ref, ".")
	if !ok || len(txid) != 64 || vout == "" {
		return false
	}
	if _, err := hex.DecodeString(txid); err != nil {
		return false
	}
	for _, r := range vout {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NoneProvider issues certificates without a revocation anchor.
type NoneProvider struct{}

func (NoneProvider) NextRef() (string, error) { return RefNone, nil }

// MemoryAnchors is an in-process anchor ledger: it mints unique refs and
// tracks consumption. Suitable for development and tests; production
// deployments implement Provider/SpentChecker against a real ledger.
type MemoryAnchors struct {
	mu    sync.Mutex
	spent map[string]bool
}

func NewMemoryAnchors() *MemoryAnchors {
	return &MemoryAnchors{spent: make(map[string]bool)}
}

func (m *MemoryAnchors) NextRef() (string, error) {
	var txid [32]byte
	if _, err := rand.Read(txid[:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefUnavailable, err)
	}
	ref := hex.EncodeToString(txid[:]) + ".0"
	m.mu.Lock()
	m.spent[ref] = false
	m.mu.Unlock()
	return ref, nil
}

// Consume marks an anchor as spent. Consuming an already spent anchor is
// not an error; the end state is the same.
func (m *MemoryAnchors) Consume(ref string) error {
	if !ValidRef(ref) {
		return ErrMalformedRef
	}
	if ref == RefNone {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.spent[ref]; !ok {
		return ErrUnknownRef
	}
	m.spent[ref] = true
	return nil
}

func (m *MemoryAnchors) Spent(ref string) (bool, error) {
	if !ValidRef(ref) {
		return false, ErrMalformedRef
	}
	if ref == RefNone {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	spent, ok := m.spent[ref]
	if !ok {
		return false, ErrUnknownRef
	}
	return spent, nil
}
