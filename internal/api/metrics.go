package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	certificatesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldcert_certificates_issued_total",
		Help: "Certificates issued since process start.",
	})
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldcert_auth_attempts_total",
		Help: "Authentication attempts by outcome.",
	}, []string{"result"})
	sessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldcert_sessions_swept_total",
		Help: "Sessions removed by the expiration sweeper.",
	})
	liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldcert_live_sessions",
		Help: "Currently live sessions.",
	})
)
