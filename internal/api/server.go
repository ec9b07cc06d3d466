// Package api exposes the certifier over HTTP: discovery, issuance, the
// challenge-response exchange, session validation, and revocation.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"fieldcert/go-certifier/internal/authsession"
	"fieldcert/go-certifier/internal/certificate"
	"fieldcert/go-certifier/internal/certstore"
	"fieldcert/go-certifier/internal/config"
	"fieldcert/go-certifier/internal/identity"
	"fieldcert/go-certifier/internal/platform/ratelimiter"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes int64 = 1 << 20 // 1 MiB

type Server struct {
	httpServer *http.Server
	cfg        config.Config
	certifier  *identity.Identity
	issuer     *certificate.Issuer
	auth       *authsession.Manager
	sweeper    *authsession.Sweeper
	limiter    *ratelimiter.MapLimiter
	archive    certstore.Store
	log        *slog.Logger
}

func NewServer(cfg config.Config, certifier *identity.Identity, issuer *certificate.Issuer, auth *authsession.Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	var limiter *ratelimiter.MapLimiter
	if cfg.RateLimitEnabled {
		limiter = ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	}
	var archive certstore.Store
	if cfg.CertStorePath != "" {
		if cfg.CertStorePassphrase != "" {
			archive = certstore.NewEncryptedFileStore(cfg.CertStorePath, cfg.CertStorePassphrase)
		} else {
			archive = certstore.NewFileStore(cfg.CertStorePath)
		}
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		cfg:       cfg,
		certifier: certifier,
		issuer:    issuer,
		auth:      auth,
		sweeper: authsession.NewSweeper(auth, cfg.SweepInterval, func(removed int) {
			sessionsSwept.Add(float64(removed))
			if count, err := auth.SessionCount(); err == nil {
				liveSessions.Set(float64(count))
			}
		}),
		limiter:   limiter,
		archive:   archive,
		log:       log,
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/info", s.withRequestLog(s.handleInfo))
	mux.HandleFunc("/v1/certificate", s.withRequestLog(s.handleIssue))
	mux.HandleFunc("/v1/auth/challenge", s.withRequestLog(s.handleChallenge))
	mux.HandleFunc("/v1/auth/respond", s.withRequestLog(s.handleRespond))
	mux.HandleFunc("/v1/auth/revoke", s.withRequestLog(s.handleRevoke))
	mux.HandleFunc("/v1/protected", s.withRequestLog(s.handleProtected))
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
// The expiration sweeper runs for the lifetime of the server.
func (s *Server) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		s.log.Debug("request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		next(w, r)
	}
}

func (s *Server) allow(r *http.Request) bool {
	return s.limiter.Allow(remoteHost(r), time.Now())
}

func remoteHost(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(remote)
	if err != nil || strings.TrimSpace(host) == "" {
		return remote
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}
