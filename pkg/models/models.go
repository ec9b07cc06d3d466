// Package models defines the wire-level records exchanged over the
// certifier's HTTP surface.
package models

import "fieldcert/go-certifier/internal/certificate"

// InfoResponse is the discovery record: what this certifier signs with
// and what certificate type it issues.
type InfoResponse struct {
	CertifierKey    []byte `json:"certifierKey"`
	CertificateType string `json:"certificateType"`
}

// IssueRequest asks for a certificate bound to the subject's key.
type IssueRequest struct {
	SubjectKey []byte `json:"subjectKey"`
}

// ChallengeRequest opens the authentication exchange.
type ChallengeRequest struct {
	IdentityKey []byte `json:"identityKey"`
}

// ChallengeResponse carries the nonce to sign and the server's key.
type ChallengeResponse struct {
	Nonce     string `json:"nonce"`
	ServerKey []byte `json:"serverIdentityKey"`
}

// AuthRespondRequest completes the exchange with proof of key possession
// and the presented certificates.
type AuthRespondRequest struct {
	IdentityKey  []byte                     `json:"identityKey"`
	Nonce        string                     `json:"nonce"`
	Signature    []byte                     `json:"signature"`
	Certificates []*certificate.Certificate `json:"certificates"`
}

// AuthRespondResponse returns the opaque session token on success.
type AuthRespondResponse struct {
	SessionToken string `json:"sessionToken"`
}

// RevokeRequest tears down the identity's session.
type RevokeRequest struct {
	IdentityKey []byte `json:"identityKey"`
}

// ErrorResponse is the generic failure record. Authentication failures
// carry a coarse reason only; they never identify which certificate or
// field failed.
type ErrorResponse struct {
	Reason string `json:"reason"`
}
