package certstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"fieldcert/go-certifier/internal/certificate"
	"fieldcert/go-certifier/internal/securestore"
)

// FileStore persists certificates as a single JSON snapshot, optionally
// sealed with a passphrase. Wallets survive restarts with their acquired
// certificates intact.
type FileStore struct {
	mu     sync.Mutex
	path   string
	secret string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func NewEncryptedFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, secret: passphrase}
}

func (s *FileStore) AcquireDirect(cert *certificate.Certificate) error {
	if err := validate(cert); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllLocked()
	if err != nil {
		return err
	}
	all[storageKey(cert.Key())] = cert
	return s.writeAllLocked(all)
}

func (s *FileStore) Get(key certificate.Key) (*certificate.Certificate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllLocked()
	if err != nil {
		return nil, false, err
	}
	cert, ok := all[storageKey(key)]
	return cert, ok, nil
}

func (s *FileStore) List(filter Filter) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllLocked()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(all))
	for _, cert := range all {
		if filter.matches(cert) {
			out = append(out, summarize(cert))
		}
	}
	return out, nil
}

func (s *FileStore) Remove(key certificate.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllLocked()
	if err != nil {
		return err
	}
	if _, ok := all[storageKey(key)]; !ok {
		return nil
	}
	delete(all, storageKey(key))
	return s.writeAllLocked(all)
}

func storageKey(key certificate.Key) string {
	return key.Type + "|" + key.SerialNumber + "|" + key.Certifier
}

func (s *FileStore) loadAllLocked() (map[string]*certificate.Certificate, error) {
	result := make(map[string]*certificate.Certificate)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return result, nil
	}
	if s.secret != "" {
		data, err = securestore.Decrypt(s.secret, data)
		if err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *FileStore) writeAllLocked(all map[string]*certificate.Certificate) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(all)
	if err != nil {
		return err
	}
	if s.secret != "" {
		data, err = securestore.Encrypt(s.secret, data)
		if err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o600)
}
