package authsession

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var ErrUnknownNonce = errors.New("unknown or expired nonce")

// NonceStore holds outstanding challenge nonces. A nonce is bound to the
// identity key it was issued for, is single-use, and decays after a short
// TTL; an abandoned challenge costs nothing beyond its map entry.
type NonceStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	byName map[string]pendingChallenge
	issues uint64
	now    func() time.Time
}

type pendingChallenge struct {
	identityKey string
	expiresAt   time.Time
}

func NewNonceStore(ttl time.Duration) *NonceStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &NonceStore{
		ttl:    ttl,
		byName: make(map[string]pendingChallenge),
		now:    time.Now,
	}
}

// Issue mints a nonce bound to the claimed identity key.
func (n *NonceStore) Issue(identityKey []byte) (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	nonce := base64.StdEncoding.EncodeToString(raw[:])

	n.mu.Lock()
	defer n.mu.Unlock()
	n.byName[nonce] = pendingChallenge{
		identityKey: hex.EncodeToString(identityKey),
		expiresAt:   n.now().Add(n.ttl),
	}
	n.issues++
	if n.issues%512 == 0 {
		n.pruneLocked(n.now())
	}
	return nonce, nil
}

// Consume validates and retires a nonce. It fails if the nonce is
// unknown, expired, or was issued for a different identity key.
func (n *NonceStore) Consume(nonce string, identityKey []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	pending, ok := n.byName[nonce]
	if !ok {
		return ErrUnknownNonce
	}
	delete(n.byName, nonce)
	if n.now().After(pending.expiresAt) {
		return ErrUnknownNonce
	}
	if pending.identityKey != hex.EncodeToString(identityKey) {
		return ErrUnknownNonce
	}
	return nil
}

// Prune drops expired nonces and reports how many were removed.
func (n *NonceStore) Prune(now time.Time) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pruneLocked(now)
}

func (n *NonceStore) pruneLocked(now time.Time) int {
	removed := 0
	for nonce, pending := range n.byName {
		if now.After(pending.expiresAt) {
			delete(n.byName, nonce)
			removed++
		}
	}
	return removed
}
