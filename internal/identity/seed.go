package identity

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"fieldcert/go-certifier/internal/securestore"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoSigning = "fieldcert/identity/signing/v1"

var (
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrSeedNotAvailable = errors.New("seed is not available")
	ErrPasswordRequired = errors.New("password is required")
	ErrMnemonicRequired = errors.New("mnemonic is required")
	ErrPasswordLocked   = errors.New("password attempts are temporarily locked")
)

const (
	maxPasswordAttempts = 5
	passwordLockWindow  = 5 * time.Minute
)

// SeedManager owns the certifier's BIP-39 mnemonic. The mnemonic is kept
// only inside a passphrase envelope; the derived identity key is handed
// out once at create/import time.
type SeedManager struct {
	mu             sync.Mutex
	envelope       []byte
	failedAttempts int
	lockedUntil    time.Time
	now            func() time.Time
}

func NewSeedManager() *SeedManager {
	return &SeedManager{now: time.Now}
}

func newSeedManagerWithClock(now func() time.Time) *SeedManager {
	return &SeedManager{now: now}
}

// Create mints a fresh 256-bit mnemonic and derives the identity from it.
func (s *SeedManager) Create(password string) (string, *Identity, error) {
	if strings.TrimSpace(password) == "" {
		return "", nil, ErrPasswordRequired
	}
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, err
	}
	return s.Import(mnemonic, password)
}

// Import derives the identity from an existing mnemonic and seals the
// mnemonic under the password.
func (s *SeedManager) Import(mnemonic, password string) (string, *Identity, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return "", nil, ErrMnemonicRequired
	}
	if strings.TrimSpace(password) == "" {
		return "", nil, ErrPasswordRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", nil, ErrInvalidMnemonic
	}

	id, err := DeriveIdentity(bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return "", nil, err
	}
	env, err := securestore.Encrypt(password, []byte(mnemonic))
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelope = env
	s.failedAttempts = 0
	s.lockedUntil = time.Time{}
	return mnemonic, id, nil
}

// Export reveals the mnemonic after a successful password check.
// Repeated failures lock the manager for a cool-down window.
func (s *SeedManager) Export(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", ErrPasswordRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().Before(s.lockedUntil) {
		return "", ErrPasswordLocked
	}
	if s.envelope == nil {
		return "", ErrSeedNotAvailable
	}

	plaintext, err := securestore.Decrypt(password, s.envelope)
	if err != nil {
		s.failedAttempts++
		if s.failedAttempts >= maxPasswordAttempts {
			s.lockedUntil = s.now().Add(passwordLockWindow)
			s.failedAttempts = 0
		}
		return "", ErrInvalidPassword
	}
	s.failedAttempts = 0

	mnemonic := strings.TrimSpace(string(plaintext))
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", fmt.Errorf("%w: corrupted mnemonic", ErrInvalidMnemonic)
	}
	return mnemonic, nil
}

func (s *SeedManager) ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(strings.TrimSpace(mnemonic))
}

// DeriveIdentityFromMnemonic restores a certifier identity directly from
// a mnemonic, without going through a SeedManager.
func DeriveIdentityFromMnemonic(mnemonic string) (*Identity, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return DeriveIdentity(bip39.NewSeed(mnemonic, ""))
}

// DeriveIdentity maps a BIP-39 seed to a secp256k1 identity through HKDF,
// so the same mnemonic always restores the same certifier key.
func DeriveIdentity(seedBytes []byte) (*Identity, error) {
	reader := hkdf.New(sha256.New, seedBytes, nil, []byte(hkdfInfoSigning))
	scalar := make([]byte, 32)
	if _, err := io.ReadFull(reader, scalar); err != nil {
		return nil, err
	}
	return FromPrivateKeyBytes(scalar)
}
