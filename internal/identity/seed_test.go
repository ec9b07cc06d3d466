package identity

import (
	"bytes"
	"testing"
	"time"
)

func TestSeedCreateExportRoundTrip(t *testing.T) {
	m := NewSeedManager()
	mnemonic, id, err := m.Create("correct horse")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == nil {
		t.Fatal("create must return an identity")
	}
	exported, err := m.Export("correct horse")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported != mnemonic {
		t.Fatal("exported mnemonic must match the created one")
	}
}

func TestSeedImportIsDeterministic(t *testing.T) {
	m := NewSeedManager()
	mnemonic, id1, err := m.Create("pw")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, id2, err := NewSeedManager().Import(mnemonic, "other-pw")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !bytes.Equal(id1.PublicKey(), id2.PublicKey()) {
		t.Fatal("same mnemonic must restore the same identity key")
	}

	id3, err := DeriveIdentityFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("derive from mnemonic: %v", err)
	}
	if !bytes.Equal(id1.PublicKey(), id3.PublicKey()) {
		t.Fatal("direct derivation must agree with the seed manager")
	}
}

func TestSeedImportRejectsInvalidInput(t *testing.T) {
	m := NewSeedManager()
	if _, _, err := m.Import("", "pw"); err != ErrMnemonicRequired {
		t.Fatalf("expected ErrMnemonicRequired, got %v", err)
	}
	if _, _, err := m.Import("not a real mnemonic", "pw"); err != ErrInvalidMnemonic {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
	if _, _, err := m.Create(""); err != ErrPasswordRequired {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestSeedExportWrongPasswordLocksAfterRepeatedFailures(t *testing.T) {
	now := time.Now()
	m := newSeedManagerWithClock(func() time.Time { return now })
	if _, _, err := m.Create("pw"); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < maxPasswordAttempts; i++ {
		if _, err := m.Export("wrong"); err != ErrInvalidPassword {
			t.Fatalf("attempt %d: expected ErrInvalidPassword, got %v", i, err)
		}
	}
	if _, err := m.Export("pw"); err != ErrPasswordLocked {
		t.Fatalf("expected ErrPasswordLocked, got %v", err)
	}

	now = now.Add(passwordLockWindow + time.Second)
	if _, err := m.Export("pw"); err != nil {
		t.Fatalf("export after lock window: %v", err)
	}
}

func TestExportWithoutSeed(t *testing.T) {
	if _, err := NewSeedManager().Export("pw"); err != ErrSeedNotAvailable {
		t.Fatalf("expected ErrSeedNotAvailable, got %v", err)
	}
}
