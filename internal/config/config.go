// Package config loads the certifier daemon configuration from YAML with
// environment overrides layered on top.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	ListenAddr string

	CertificateType string
	IssuedFields    map[string]string
	Mnemonic        string

	SessionTimeout time.Duration
	NonceTTL       time.Duration
	SweepInterval  time.Duration
	AcceptedTypes  []string
	RequiredField  string
	RequiredValue  string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	AnchorsEnabled bool

	CertStorePath       string
	CertStorePassphrase string
}

func Default() Config {
	return Config{
		ListenAddr:       "127.0.0.1:8410",
		CertificateType:  "fieldcert.access",
		IssuedFields:     map[string]string{"status": "ok"},
		SessionTimeout:   30 * time.Minute,
		NonceTTL:         2 * time.Minute,
		SweepInterval:    time.Minute,
		RequiredField:    "status",
		RequiredValue:    "ok",
		RateLimitEnabled: true,
		RateLimitRPS:     30,
		RateLimitBurst:   60,
		AnchorsEnabled:   true,
	}
}

// fileConfig mirrors the YAML layout; pointers distinguish "absent" from
// zero values during merge.
type fileConfig struct {
	Server struct {
		ListenAddr string `yaml:"listenAddr"`
	} `yaml:"server"`
	Certifier struct {
		CertificateType string            `yaml:"certificateType"`
		IssuedFields    map[string]string `yaml:"issuedFields"`
		Mnemonic        string            `yaml:"mnemonic"`
	} `yaml:"certifier"`
	Auth struct {
		SessionTimeout time.Duration `yaml:"sessionTimeout"`
		NonceTTL       time.Duration `yaml:"nonceTTL"`
		SweepInterval  time.Duration `yaml:"sweepInterval"`
		AcceptedTypes  []string      `yaml:"acceptedTypes"`
		RequiredField  *string       `yaml:"requiredField"`
		RequiredValue  *string       `yaml:"requiredValue"`
	} `yaml:"auth"`
	RateLimit struct {
		Enabled *bool    `yaml:"enabled"`
		RPS     *float64 `yaml:"rps"`
		Burst   *int     `yaml:"burst"`
	} `yaml:"rateLimit"`
	Anchors struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"anchors"`
	CertStore struct {
		Path       string `yaml:"path"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"certStore"`
}

// LoadFromPath reads the config file if present, merges it over the
// defaults, and applies environment overrides. A missing or unreadable
// file leaves the defaults in place.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src fileConfig) {
	if src.Server.ListenAddr != "" {
		dst.ListenAddr = src.Server.ListenAddr
	}
	if src.Certifier.CertificateType != "" {
		dst.CertificateType = src.Certifier.CertificateType
	}
	if src.Certifier.IssuedFields != nil {
		dst.IssuedFields = src.Certifier.IssuedFields
	}
	if src.Certifier.Mnemonic != "" {
		dst.Mnemonic = src.Certifier.Mnemonic
	}
	if src.Auth.SessionTimeout != 0 {
		dst.SessionTimeout = src.Auth.SessionTimeout
	}
	if src.Auth.NonceTTL != 0 {
		dst.NonceTTL = src.Auth.NonceTTL
	}
	if src.Auth.SweepInterval != 0 {
		dst.SweepInterval = src.Auth.SweepInterval
	}
	if src.Auth.AcceptedTypes != nil {
		dst.AcceptedTypes = src.Auth.AcceptedTypes
	}
	if src.Auth.RequiredField != nil {
		dst.RequiredField = *src.Auth.RequiredField
	}
	if src.Auth.RequiredValue != nil {
		dst.RequiredValue = *src.Auth.RequiredValue
	}
	if src.RateLimit.Enabled != nil {
		dst.RateLimitEnabled = *src.RateLimit.Enabled
	}
	if src.RateLimit.RPS != nil && *src.RateLimit.RPS > 0 {
		dst.RateLimitRPS = *src.RateLimit.RPS
	}
	if src.RateLimit.Burst != nil && *src.RateLimit.Burst > 0 {
		dst.RateLimitBurst = *src.RateLimit.Burst
	}
	if src.Anchors.Enabled != nil {
		dst.AnchorsEnabled = *src.Anchors.Enabled
	}
	if src.CertStore.Path != "" {
		dst.CertStorePath = src.CertStore.Path
	}
	if src.CertStore.Passphrase != "" {
		dst.CertStorePassphrase = src.CertStore.Passphrase
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_CERT_TYPE")); v != "" {
		cfg.CertificateType = v
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_MNEMONIC")); v != "" {
		cfg.Mnemonic = v
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_SESSION_TIMEOUT")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.SessionTimeout = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_NONCE_TTL")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.NonceTTL = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_SWEEP_INTERVAL")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.SweepInterval = parsed
		}
	}
	if v, ok := parseBoolEnv("FIELDCERT_RATE_LIMIT_ENABLED"); ok {
		cfg.RateLimitEnabled = v
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_RATE_LIMIT_RPS")); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			cfg.RateLimitRPS = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_RATE_LIMIT_BURST")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RateLimitBurst = parsed
		}
	}
	if v, ok := parseBoolEnv("FIELDCERT_ANCHORS_ENABLED"); ok {
		cfg.AnchorsEnabled = v
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_CERT_STORE_PATH")); v != "" {
		cfg.CertStorePath = v
	}
	if v := strings.TrimSpace(os.Getenv("FIELDCERT_CERT_STORE_PASSPHRASE")); v != "" {
		cfg.CertStorePassphrase = v
	}
}

func parseBoolEnv(name string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
