package authsession

import (
	"errors"
	"testing"
	"time"

	"fieldcert/go-certifier/internal/certificate"
	"fieldcert/go-certifier/internal/identity"
	"fieldcert/go-certifier/internal/revocation"
)

const testCertType = "fieldcert.test"

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return id
}

type protocolFixture struct {
	certifier *identity.Identity
	subject   *identity.Identity
	anchors   *revocation.MemoryAnchors
	manager   *Manager
}

func newFixture(t *testing.T) *protocolFixture {
	t.Helper()
	certifier := mustIdentity(t)
	anchors := revocation.NewMemoryAnchors()
	manager := NewManager(certifier, []*identity.Identity{certifier}, NewMemorySessionStore(), Config{
		SessionTimeout: 30 * time.Minute,
		Policy: Policy{
			AcceptedTypes: []string{testCertType},
			RequiredField: "status",
			RequiredValue: "ok",
		},
		SpentChecker: anchors,
	})
	return &protocolFixture{
		certifier: certifier,
		subject:   mustIdentity(t),
		anchors:   anchors,
		manager:   manager,
	}
}

func (f *protocolFixture) issue(t *testing.T, fields map[string][]byte) *certificate.Certificate {
	t.Helper()
	issuer := certificate.NewIssuer(f.certifier, testCertType, f.anchors)
	cert, err := issuer.Issue(f.subject.PublicKey(), fields)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return cert
}

func (f *protocolFixture) authenticate(t *testing.T, certs ...*certificate.Certificate) (Session, error) {
	t.Helper()
	challenge, err := f.manager.Challenge(f.subject.PublicKey())
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	sig, err := f.subject.Sign([]byte(challenge.Nonce))
	if err != nil {
		t.Fatalf("sign nonce: %v", err)
	}
	return f.manager.Authenticate(f.subject.PublicKey(), challenge.Nonce, sig, certs)
}

func TestHappyPath(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("ok")})

	session, err := f.authenticate(t, cert)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if session.Token == "" {
		t.Fatal("session token must not be empty")
	}
	if len(session.VerifiedSerials) != 1 || session.VerifiedSerials[0] != cert.SerialNumber {
		t.Fatalf("verified serials wrong: %v", session.VerifiedSerials)
	}

	// The token grants access on subsequent requests.
	validated, err := f.manager.Validate(session.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validated.LastAccessedAt.Before(session.LastAccessedAt) {
		t.Fatal("validation must refresh last access time")
	}
}

func TestChallengeRejectsMalformedKey(t *testing.T) {
	f := newFixture(t)
	if _, err := f.manager.Challenge([]byte("junk")); !errors.Is(err, ErrInvalidChallengeResponse) {
		t.Fatalf("expected ErrInvalidChallengeResponse, got %v", err)
	}
}

func TestAuthenticateRejectsBadNonceSignature(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("ok")})

	challenge, err := f.manager.Challenge(f.subject.PublicKey())
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	// Signed by the wrong key.
	sig, err := mustIdentity(t).Sign([]byte(challenge.Nonce))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := f.manager.Authenticate(f.subject.PublicKey(), challenge.Nonce, sig, []*certificate.Certificate{cert}); !errors.Is(err, ErrInvalidChallengeResponse) {
		t.Fatalf("expected ErrInvalidChallengeResponse, got %v", err)
	}
}

func TestAuthenticateRejectsReplayedNonce(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("ok")})

	challenge, err := f.manager.Challenge(f.subject.PublicKey())
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	sig, _ := f.subject.Sign([]byte(challenge.Nonce))
	if _, err := f.manager.Authenticate(f.subject.PublicKey(), challenge.Nonce, sig, []*certificate.Certificate{cert}); err != nil {
		t.Fatalf("first authenticate: %v", err)
	}
	if _, err := f.manager.Authenticate(f.subject.PublicKey(), challenge.Nonce, sig, []*certificate.Certificate{cert}); !errors.Is(err, ErrInvalidChallengeResponse) {
		t.Fatalf("replay: expected ErrInvalidChallengeResponse, got %v", err)
	}
}

func TestUntrustedCertifierFailsWithNoValidCertificate(t *testing.T) {
	f := newFixture(t)
	// A certificate signed by some other certifier, structurally valid.
	rogue := mustIdentity(t)
	issuer := certificate.NewIssuer(rogue, testCertType, revocation.NoneProvider{})
	cert, err := issuer.Issue(f.subject.PublicKey(), map[string][]byte{"status": []byte("ok")})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := f.authenticate(t, cert); !errors.Is(err, ErrNoValidCertificate) {
		t.Fatalf("expected ErrNoValidCertificate, got %v", err)
	}
}

func TestPolicyRejectsWrongFieldValue(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("suspended")})
	if _, err := f.authenticate(t, cert); !errors.Is(err, ErrNoValidCertificate) {
		t.Fatalf("expected ErrNoValidCertificate, got %v", err)
	}
}

func TestOneGoodCertificateAmongBadOnesSuffices(t *testing.T) {
	f := newFixture(t)
	bad := f.issue(t, map[string][]byte{"status": []byte("suspended")})
	good := f.issue(t, map[string][]byte{"status": []byte("ok")})
	foreign := func() *certificate.Certificate {
		rogue := mustIdentity(t)
		issuer := certificate.NewIssuer(rogue, testCertType, revocation.NoneProvider{})
		c, err := issuer.Issue(f.subject.PublicKey(), map[string][]byte{"status": []byte("ok")})
		if err != nil {
			t.Fatalf("issue foreign: %v", err)
		}
		return c
	}()

	session, err := f.authenticate(t, foreign, bad, good)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if len(session.VerifiedSerials) != 1 || session.VerifiedSerials[0] != good.SerialNumber {
		t.Fatalf("only the good certificate should verify: %v", session.VerifiedSerials)
	}
}

func TestCertificateBoundToOtherSubjectIsSkipped(t *testing.T) {
	f := newFixture(t)
	other := mustIdentity(t)
	issuer := certificate.NewIssuer(f.certifier, testCertType, f.anchors)
	cert, err := issuer.Issue(other.PublicKey(), map[string][]byte{"status": []byte("ok")})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.authenticate(t, cert); !errors.Is(err, ErrNoValidCertificate) {
		t.Fatalf("expected ErrNoValidCertificate, got %v", err)
	}
}

func TestSpentAnchorInvalidatesCertificate(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("ok")})

	if _, err := f.authenticate(t, cert); err != nil {
		t.Fatalf("authenticate before consumption: %v", err)
	}
	if err := f.anchors.Consume(cert.RevocationRef); err != nil {
		t.Fatalf("consume anchor: %v", err)
	}
	// The certificate is permanently invalid even though it is still held.
	if _, err := f.authenticate(t, cert); !errors.Is(err, ErrNoValidCertificate) {
		t.Fatalf("expected ErrNoValidCertificate after anchor consumption, got %v", err)
	}
}

func TestNewSessionSupersedesOld(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("ok")})

	first, err := f.authenticate(t, cert)
	if err != nil {
		t.Fatalf("first authenticate: %v", err)
	}
	second, err := f.authenticate(t, cert)
	if err != nil {
		t.Fatalf("second authenticate: %v", err)
	}
	if first.Token == second.Token {
		t.Fatal("tokens must be unique across sessions")
	}
	if _, err := f.manager.Validate(first.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("old token must be retired, got %v", err)
	}
	if _, err := f.manager.Validate(second.Token); err != nil {
		t.Fatalf("new token must validate: %v", err)
	}
}

func TestExpiredTokenIsRejectedAndRemoved(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("ok")})
	session, err := f.authenticate(t, cert)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	f.manager.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := f.manager.Validate(session.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	// The expired row is gone; the next attempt sees no session at all.
	if _, err := f.manager.Validate(session.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after removal, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("ok")})
	session, err := f.authenticate(t, cert)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if err := f.manager.Revoke(f.subject.PublicKey()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := f.manager.Revoke(f.subject.PublicKey()); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if _, err := f.manager.Validate(session.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("revoked session must be gone, got %v", err)
	}
}

func TestManagerSweepRemovesIdleSessions(t *testing.T) {
	f := newFixture(t)
	cert := f.issue(t, map[string][]byte{"status": []byte("ok")})
	if _, err := f.authenticate(t, cert); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	removed, err := f.manager.Sweep(time.Now().Add(31 * time.Minute))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}
