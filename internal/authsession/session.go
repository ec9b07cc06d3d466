// Package authsession implements the challenge-response protocol that
// turns a presented certificate into a time-boxed, revocable session.
package authsession

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is the server-side state granted after a successful
// authentication. A session is live while now-LastAccessedAt stays under
// the configured timeout.
type Session struct {
	IdentityKey     []byte    `json:"identityKey"`
	Token           string    `json:"token"`
	CreatedAt       time.Time `json:"createdAt"`
	LastAccessedAt  time.Time `json:"lastAccessedAt"`
	VerifiedSerials []string  `json:"verifiedSerials"`
}

// SessionStore maps identity keys to live sessions. Implementations must
// be safe for concurrent request handlers; upsert/remove for the same
// identity key are last-writer-wins.
type SessionStore interface {
	Upsert(session Session) error
	Get(identityKey []byte) (Session, bool, error)
	GetByToken(token string) (Session, bool, error)
	Remove(identityKey []byte) error
	// Count reports the number of live sessions.
	Count() (int, error)
	// Sweep removes sessions idle for timeout or longer and reports how
	// many were dropped.
	Sweep(now time.Time, timeout time.Duration) (int, error)
}

// MemorySessionStore is the default in-process store. At most one live
// session exists per identity key; upserting replaces the previous one
// and retires its token.
type MemorySessionStore struct {
	mu      sync.RWMutex
	byKey   map[string]Session
	byToken map[string]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		byKey:   make(map[string]Session),
		byToken: make(map[string]string),
	}
}

func (s *MemorySessionStore) Upsert(session Session) error {
	key := hex.EncodeToString(session.IdentityKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byKey[key]; ok {
		delete(s.byToken, prev.Token)
	}
	s.byKey[key] = session
	s.byToken[session.Token] = key
	return nil
}

func (s *MemorySessionStore) Get(identityKey []byte) (Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byKey[hex.EncodeToString(identityKey)]
	return session, ok, nil
}

func (s *MemorySessionStore) GetByToken(token string) (Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byToken[token]
	if !ok {
		return Session{}, false, nil
	}
	session, ok := s.byKey[key]
	return session, ok, nil
}

func (s *MemorySessionStore) Remove(identityKey []byte) error {
	key := hex.EncodeToString(identityKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byKey[key]; ok {
		delete(s.byToken, prev.Token)
		delete(s.byKey, key)
	}
	return nil
}

func (s *MemorySessionStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey), nil
}

func (s *MemorySessionStore) Sweep(now time.Time, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, session := range s.byKey {
		if now.Sub(session.LastAccessedAt) >= timeout {
			delete(s.byToken, session.Token)
			delete(s.byKey, key)
			removed++
		}
	}
	return removed, nil
}

// NewToken mints an opaque 256-bit session token.
func NewToken() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
