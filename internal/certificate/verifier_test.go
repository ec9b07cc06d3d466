package certificate

import (
	"errors"
	"testing"
)

func TestDecryptFieldsRejectsWrongCertifierBeforeDecrypting(t *testing.T) {
	certifierX := mustIdentity(t)
	certifierY := mustIdentity(t)
	subject := mustIdentity(t)
	cert := issueTestCert(t, certifierX, subject, map[string][]byte{"status": []byte("ok")})

	if _, err := DecryptFields(cert, certifierY); !errors.Is(err, ErrCertifierMismatch) {
		t.Fatalf("expected ErrCertifierMismatch, got %v", err)
	}
}

func TestSignatureBindsEveryField(t *testing.T) {
	certifier := mustIdentity(t)
	subject := mustIdentity(t)
	base := issueTestCert(t, certifier, subject, map[string][]byte{"status": []byte("ok")})

	mutations := map[string]func(c *Certificate){
		"type":          func(c *Certificate) { c.Type = "other" },
		"serial":        func(c *Certificate) { c.SerialNumber = c.SerialNumber + "x" },
		"subjectKey":    func(c *Certificate) { c.SubjectKey = append([]byte(nil), mustIdentity(t).PublicKey()...) },
		"field":         func(c *Certificate) { c.Fields["status"][0] ^= 0x01 },
		"keyring":       func(c *Certificate) { c.Keyring["status"][0] ^= 0x01 },
		"revocationRef": func(c *Certificate) { c.RevocationRef = "none" },
	}
	for name, mutate := range mutations {
		clone := cloneCert(base)
		mutate(clone)
		if err := clone.VerifySignature(); err == nil {
			t.Fatalf("mutating %s must invalidate the signature", name)
		}
	}
}

func TestTamperedFieldFailsDecryptionEvenWithFreshSignature(t *testing.T) {
	certifier := mustIdentity(t)
	subject := mustIdentity(t)
	cert := issueTestCert(t, certifier, subject, map[string][]byte{"status": []byte("ok")})

	// Corrupt the ciphertext and re-sign so only the AEAD check can
	// catch it. Altered plaintext must never come back.
	cert.Fields["status"][len(cert.Fields["status"])-1] ^= 0xff
	payload, err := cert.SigningBytes()
	if err != nil {
		t.Fatalf("signing bytes: %v", err)
	}
	cert.Signature, err = certifier.Sign(payload)
	if err != nil {
		t.Fatalf("re-sign: %v", err)
	}

	_, err = DecryptFields(cert, certifier)
	var fieldErr *FieldDecryptionError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected FieldDecryptionError, got %v", err)
	}
	if fieldErr.Field != "status" {
		t.Fatalf("expected failure on field %q, got %q", "status", fieldErr.Field)
	}
}

func TestDecryptFieldsAsSubjectRejectsForeignCertificate(t *testing.T) {
	certifier := mustIdentity(t)
	subject := mustIdentity(t)
	stranger := mustIdentity(t)
	cert := issueTestCert(t, certifier, subject, map[string][]byte{"status": []byte("ok")})

	if _, err := DecryptFieldsAsSubject(cert, stranger); err == nil {
		t.Fatal("a non-subject must not decrypt via the keyring")
	}
}

func TestValidateShapeCatchesKeyringMismatch(t *testing.T) {
	certifier := mustIdentity(t)
	subject := mustIdentity(t)
	cert := issueTestCert(t, certifier, subject, map[string][]byte{"status": []byte("ok")})

	clone := cloneCert(cert)
	delete(clone.Keyring, "status")
	if err := clone.ValidateShape(); !errors.Is(err, ErrKeyringMismatch) {
		t.Fatalf("expected ErrKeyringMismatch, got %v", err)
	}

	clone = cloneCert(cert)
	clone.Keyring["extra"] = []byte{1}
	delete(clone.Keyring, "status")
	if err := clone.ValidateShape(); !errors.Is(err, ErrKeyringMismatch) {
		t.Fatalf("expected ErrKeyringMismatch for renamed entry, got %v", err)
	}
}

func TestSigningBytesAreDeterministic(t *testing.T) {
	certifier := mustIdentity(t)
	subject := mustIdentity(t)
	cert := issueTestCert(t, certifier, subject, map[string][]byte{"b": []byte("2"), "a": []byte("1"), "c": []byte("3")})

	first, err := cert.SigningBytes()
	if err != nil {
		t.Fatalf("signing bytes: %v", err)
	}
	for i := 0; i < 8; i++ {
		again, err := cert.SigningBytes()
		if err != nil {
			t.Fatalf("signing bytes: %v", err)
		}
		if string(first) != string(again) {
			t.Fatal("canonical serialization must be byte-stable")
		}
	}
}

func cloneCert(c *Certificate) *Certificate {
	clone := *c
	clone.SubjectKey = append([]byte(nil), c.SubjectKey...)
	clone.CertifierKey = append([]byte(nil), c.CertifierKey...)
	clone.Signature = append([]byte(nil), c.Signature...)
	clone.Fields = make(map[string][]byte, len(c.Fields))
	for k, v := range c.Fields {
		clone.Fields[k] = append([]byte(nil), v...)
	}
	clone.Keyring = make(map[string][]byte, len(c.Keyring))
	for k, v := range c.Keyring {
		clone.Keyring[k] = append([]byte(nil), v...)
	}
	return &clone
}
