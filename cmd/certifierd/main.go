package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fieldcert/go-certifier/internal/authsession"
	"fieldcert/go-certifier/internal/certificate"
	"fieldcert/go-certifier/internal/config"
	"fieldcert/go-certifier/internal/identity"
	"fieldcert/go-certifier/internal/platform/privacylog"
	"fieldcert/go-certifier/internal/revocation"

	"fieldcert/go-certifier/internal/api"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	listenAddr := flag.String("listen-addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("certifierd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	log := slog.New(privacylog.WrapHandler(slog.NewTextHandler(os.Stderr, nil)))
	slog.SetDefault(log)

	cfg := config.LoadFromPath(*configPath)
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	certifier, err := loadCertifierIdentity(cfg)
	if err != nil {
		log.Error("certifier identity initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("certifier identity ready",
		slog.String("certifier_key", identity.Fingerprint(certifier.PublicKey())))

	var anchors revocation.Provider = revocation.NoneProvider{}
	var spent revocation.SpentChecker
	if cfg.AnchorsEnabled {
		mem := revocation.NewMemoryAnchors()
		anchors = mem
		spent = mem
	}

	issuer := certificate.NewIssuer(certifier, cfg.CertificateType, anchors)

	acceptedTypes := cfg.AcceptedTypes
	if len(acceptedTypes) == 0 {
		acceptedTypes = []string{cfg.CertificateType}
	}
	auth := authsession.NewManager(certifier, []*identity.Identity{certifier}, authsession.NewMemorySessionStore(), authsession.Config{
		SessionTimeout: cfg.SessionTimeout,
		NonceTTL:       cfg.NonceTTL,
		Policy: authsession.Policy{
			AcceptedTypes: acceptedTypes,
			RequiredField: cfg.RequiredField,
			RequiredValue: cfg.RequiredValue,
		},
		SpentChecker: spent,
		Logger:       log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(cfg, certifier, issuer, auth, log)
	log.Info("certifierd starting", slog.String("addr", cfg.ListenAddr))
	if err := srv.Run(ctx); err != nil {
		log.Error("certifierd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("certifierd stopped")
}

// loadCertifierIdentity restores the identity from the configured
// mnemonic, or mints an ephemeral one for development.
func loadCertifierIdentity(cfg config.Config) (*identity.Identity, error) {
	if cfg.Mnemonic != "" {
		id, err := identity.DeriveIdentityFromMnemonic(cfg.Mnemonic)
		if err != nil {
			return nil, err
		}
		return id, nil
	}
	slog.Warn("no mnemonic configured; using an ephemeral certifier identity")
	return identity.Generate()
}
