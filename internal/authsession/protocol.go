package authsession

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldcert/go-certifier/internal/certificate"
	"fieldcert/go-certifier/internal/identity"
	"fieldcert/go-certifier/internal/revocation"
)

var (
	ErrInvalidChallengeResponse = errors.New("invalid challenge response")
	ErrNoValidCertificate       = errors.New("no valid certificate presented")
	ErrUntrustedCertifier       = errors.New("certifier is not trusted")
	ErrUnacceptedType           = errors.New("certificate type not accepted")
	ErrSubjectMismatch          = errors.New("certificate subject differs from authenticating key")
	ErrAnchorSpent              = errors.New("revocation anchor consumed")
	ErrPolicyNotSatisfied       = errors.New("certificate fields do not satisfy policy")
)

// Policy decides which decrypted certificates grant a session.
type Policy struct {
	// AcceptedTypes is the set of certificate types the server accepts.
	AcceptedTypes []string
	// RequiredField/RequiredValue, when set, demand that one decrypted
	// field equals an exact value. Empty RequiredField accepts any
	// certificate that decrypts cleanly.
	RequiredField string
	RequiredValue string
}

func (p Policy) acceptsType(t string) bool {
	for _, accepted := range p.AcceptedTypes {
		if accepted == t {
			return true
		}
	}
	return false
}

func (p Policy) satisfiedBy(fields map[string][]byte) bool {
	if p.RequiredField == "" {
		return true
	}
	value, ok := fields[p.RequiredField]
	return ok && string(value) == p.RequiredValue
}

// Challenge is the first leg of the exchange: a nonce the caller must
// sign, plus the server's identity key so the caller can address its
// certificates.
type Challenge struct {
	Nonce     string
	ServerKey []byte
}

// Manager drives the per-identity state machine: no session, challenge
// outstanding, authenticated, then expired or revoked. Expired and
// revoked both collapse back to no session.
type Manager struct {
	server     *identity.Identity
	certifiers map[string]*identity.Identity
	policy     Policy
	sessions   SessionStore
	nonces     *NonceStore
	spent      revocation.SpentChecker
	timeout    time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// Config carries the tunables for a Manager.
type Config struct {
	SessionTimeout time.Duration
	NonceTTL       time.Duration
	Policy         Policy
	// SpentChecker, when set, rejects certificates whose revocation
	// anchor has been consumed.
	SpentChecker revocation.SpentChecker
	Logger       *slog.Logger
}

// NewManager builds the protocol around the server identity, the
// certifier identities whose certificates it can decrypt (the trusted
// allowlist), and a session store.
func NewManager(server *identity.Identity, trusted []*identity.Identity, sessions SessionStore, cfg Config) *Manager {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	certifiers := make(map[string]*identity.Identity, len(trusted))
	for _, c := range trusted {
		certifiers[hex.EncodeToString(c.PublicKey())] = c
	}
	return &Manager{
		server:     server,
		certifiers: certifiers,
		policy:     cfg.Policy,
		sessions:   sessions,
		nonces:     NewNonceStore(cfg.NonceTTL),
		spent:      cfg.SpentChecker,
		timeout:    cfg.SessionTimeout,
		log:        cfg.Logger,
		now:        time.Now,
	}
}

// SessionTimeout exposes the configured idle timeout to the sweeper.
func (m *Manager) SessionTimeout() time.Duration { return m.timeout }

// Challenge opens the exchange for a claimed identity key. The server
// holds nothing for the caller beyond the nonce itself.
func (m *Manager) Challenge(identityKey []byte) (Challenge, error) {
	if _, err := identity.ParsePublicKey(identityKey); err != nil {
		return Challenge{}, ErrInvalidChallengeResponse
	}
	nonce, err := m.nonces.Issue(identityKey)
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{Nonce: nonce, ServerKey: m.server.PublicKey()}, nil
}

// Authenticate completes the exchange. The caller proves possession of
// the identity key by signing the nonce, then presents certificates; any
// single certificate passing all checks grants a session. Failing
// certificates are logged and skipped, never fatal on their own.
func (m *Manager) Authenticate(identityKey []byte, nonce string, signature []byte, certs []*certificate.Certificate) (Session, error) {
	if err := m.nonces.Consume(nonce, identityKey); err != nil {
		return Session{}, ErrInvalidChallengeResponse
	}
	if err := identity.Verify(identityKey, []byte(nonce), signature); err != nil {
		return Session{}, ErrInvalidChallengeResponse
	}

	var verified []string
	for _, cert := range certs {
		if err := m.verifyPresented(cert, identityKey); err != nil {
			m.log.Info("certificate skipped",
				slog.String("serial", cert.SerialNumber),
				slog.String("certifier", identity.Fingerprint(cert.CertifierKey)),
				slog.String("reason", err.Error()))
			continue
		}
		verified = append(verified, cert.SerialNumber)
	}
	if len(verified) == 0 {
		return Session{}, ErrNoValidCertificate
	}

	token, err := NewToken()
	if err != nil {
		return Session{}, err
	}
	now := m.now()
	session := Session{
		IdentityKey:     append([]byte(nil), identityKey...),
		Token:           token,
		CreatedAt:       now,
		LastAccessedAt:  now,
		VerifiedSerials: verified,
	}
	if err := m.sessions.Upsert(session); err != nil {
		return Session{}, err
	}
	m.log.Info("session created",
		slog.String("identity", identity.Fingerprint(identityKey)),
		slog.Int("verified_certificates", len(verified)))
	return session, nil
}

// verifyPresented runs the full acceptance pipeline for one certificate.
// Order matters: trust and binding checks come before any decryption.
func (m *Manager) verifyPresented(cert *certificate.Certificate, identityKey []byte) error {
	certifier, ok := m.certifiers[hex.EncodeToString(cert.CertifierKey)]
	if !ok {
		return ErrUntrustedCertifier
	}
	if !m.policy.acceptsType(cert.Type) {
		return ErrUnacceptedType
	}
	if !bytes.Equal(cert.SubjectKey, identityKey) {
		return ErrSubjectMismatch
	}
	if err := cert.ValidateShape(); err != nil {
		return err
	}
	if m.spent != nil && cert.RevocationRef != revocation.RefNone {
		spent, err := m.spent.Spent(cert.RevocationRef)
		if err != nil {
			return fmt.Errorf("anchor check: %w", err)
		}
		if spent {
			return ErrAnchorSpent
		}
	}
	fields, err := certificate.DecryptFields(cert, certifier)
	if err != nil {
		return err
	}
	if !m.policy.satisfiedBy(fields) {
		return ErrPolicyNotSatisfied
	}
	return nil
}

// Validate checks a session token, refreshes its last access time, and
// returns the session. Expired sessions are removed on sight.
func (m *Manager) Validate(token string) (Session, error) {
	session, ok, err := m.sessions.GetByToken(token)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	now := m.now()
	if now.Sub(session.LastAccessedAt) >= m.timeout {
		_ = m.sessions.Remove(session.IdentityKey)
		return Session{}, ErrSessionExpired
	}
	session.LastAccessedAt = now
	if err := m.sessions.Upsert(session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Revoke drops the identity's session immediately, regardless of
// timeout. Revoking an absent session is not an error.
func (m *Manager) Revoke(identityKey []byte) error {
	return m.sessions.Remove(identityKey)
}

// Sweep removes idle sessions and expired nonces.
func (m *Manager) Sweep(now time.Time) (int, error) {
	m.nonces.Prune(now)
	return m.sessions.Sweep(now, m.timeout)
}

// SessionCount reports the number of live sessions.
func (m *Manager) SessionCount() (int, error) {
	return m.sessions.Count()
}
