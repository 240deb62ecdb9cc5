package utils

import "testing"

func TestCredentialRoundTrip(t *testing.T) {
	t.Setenv("CREDENTIALS_MASTER_KEY", "unit-test-master-key")

	encrypted, err := EncryptCredential("api-key-secret-value")
	if err != nil {
		t.Fatalf("EncryptCredential: %v", err)
	}
	if encrypted == "api-key-secret-value" {
		t.Fatal("ciphertext must not equal plaintext")
	}

	decrypted, err := DecryptCredential(encrypted)
	if err != nil {
		t.Fatalf("DecryptCredential: %v", err)
	}
	if decrypted != "api-key-secret-value" {
		t.Fatalf("round trip mismatch: %q", decrypted)
	}
}

func TestEncryptCredential_NoncesDiffer(t *testing.T) {
	t.Setenv("CREDENTIALS_MASTER_KEY", "unit-test-master-key")

	a, err := EncryptCredential("same")
	if err != nil {
		t.Fatalf("EncryptCredential: %v", err)
	}
	b, err := EncryptCredential("same")
	if err != nil {
		t.Fatalf("EncryptCredential: %v", err)
	}
	if a == b {
		t.Fatal("same plaintext must never produce the same ciphertext")
	}
}

func TestDecryptCredential_RejectsTampering(t *testing.T) {
	t.Setenv("CREDENTIALS_MASTER_KEY", "unit-test-master-key")

	if _, err := DecryptCredential("bm90LXZhbGlkLWNpcGhlcnRleHQ="); err == nil {
		t.Fatal("expected error for invalid ciphertext")
	}
	if _, err := DecryptCredential("not base64!!"); err == nil {
		t.Fatal("expected error for invalid encoding")
	}
}

func TestCredentialKeyRequiresMaster(t *testing.T) {
	t.Setenv("CREDENTIALS_MASTER_KEY", "")
	if _, err := EncryptCredential("x"); err == nil {
		t.Fatal("expected error without CREDENTIALS_MASTER_KEY")
	}
}
