package api

import (
	"errors"
	"log/slog"
	"net/http"

	"fieldcert/go-certifier/internal/authsession"
	"fieldcert/go-certifier/internal/certificate"
	"fieldcert/go-certifier/internal/identity"
	"fieldcert/go-certifier/pkg/models"
)

// sessionTokenHeader carries the opaque token on authenticated requests.
const sessionTokenHeader = "X-Session-Token"

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, models.InfoResponse{
		CertifierKey:    s.certifier.PublicKey(),
		CertificateType: s.cfg.CertificateType,
	})
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allow(r) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	var req models.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := identity.ParsePublicKey(req.SubjectKey); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Reason: "malformed subject key"})
		return
	}

	fieldValues := make(map[string][]byte, len(s.cfg.IssuedFields))
	for name, value := range s.cfg.IssuedFields {
		fieldValues[name] = []byte(value)
	}
	cert, err := s.issuer.Issue(req.SubjectKey, fieldValues)
	if err != nil {
		// Issuance failures carry their specific reason; there is no
		// secrecy requirement on this path.
		status := http.StatusInternalServerError
		if errors.Is(err, certificate.ErrRevocationRefUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.log.Error("issuance failed", slog.String("error", err.Error()))
		writeJSON(w, status, models.ErrorResponse{Reason: err.Error()})
		return
	}
	if s.archive != nil {
		// Archive failures do not block issuance; the certificate is
		// already signed and the subject gets it either way.
		if err := s.archive.AcquireDirect(cert); err != nil {
			s.log.Warn("issued certificate archive failed", slog.String("error", err.Error()))
		}
	}
	certificatesIssued.Inc()
	s.log.Info("certificate issued",
		slog.String("subject_key", identity.Fingerprint(req.SubjectKey)),
		slog.String("serial", cert.SerialNumber))
	writeJSON(w, http.StatusOK, cert)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allow(r) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	var req models.ChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	challenge, err := s.auth.Challenge(req.IdentityKey)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Reason: "malformed identity key"})
		return
	}
	// 401 by design: the caller is not authenticated until it answers.
	writeJSON(w, http.StatusUnauthorized, models.ChallengeResponse{
		Nonce:     challenge.Nonce,
		ServerKey: challenge.ServerKey,
	})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.AuthRespondRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := s.auth.Authenticate(req.IdentityKey, req.Nonce, req.Signature, req.Certificates)
	if err != nil {
		authAttempts.WithLabelValues(authFailureLabel(err)).Inc()
		// Generic reason only: never reveal which certificate or field
		// failed, to avoid giving an oracle to an attacker.
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Reason: authFailureReason(err)})
		return
	}
	authAttempts.WithLabelValues("success").Inc()
	s.refreshLiveSessions()
	writeJSON(w, http.StatusOK, models.AuthRespondResponse{SessionToken: session.Token})
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := r.Header.Get(sessionTokenHeader)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Reason: "missing session token"})
		return
	}
	session, err := s.auth.Validate(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Reason: authFailureReason(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":  identity.Fingerprint(session.IdentityKey),
		"createdAt": session.CreatedAt,
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.RevokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Idempotent: revoking an absent session still succeeds.
	_ = s.auth.Revoke(req.IdentityKey)
	s.refreshLiveSessions()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) refreshLiveSessions() {
	if count, err := s.auth.SessionCount(); err == nil {
		liveSessions.Set(float64(count))
	}
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, authsession.ErrInvalidChallengeResponse):
		return "invalid challenge response"
	case errors.Is(err, authsession.ErrNoValidCertificate):
		return "no valid certificate presented"
	case errors.Is(err, authsession.ErrSessionExpired):
		return "session expired"
	case errors.Is(err, authsession.ErrSessionNotFound):
		return "session not found"
	default:
		return "authentication failed"
	}
}

func authFailureLabel(err error) string {
	switch {
	case errors.Is(err, authsession.ErrInvalidChallengeResponse):
		return "invalid_response"
	case errors.Is(err, authsession.ErrNoValidCertificate):
		return "no_valid_certificate"
	default:
		return "error"
	}
}
