//go:build !integration

package security

import (
	"testing"

	"cuenty-subscription-engine/internal/domain/model"
)

func TestNewEncryptionService(t *testing.T) {
	t.Run("should accept AES key sizes", func(t *testing.T) {
		for _, key := range []string{
			"0123456789abcdef",                 // 16
			"0123456789abcdef01234567",         // 24
			"0123456789abcdef0123456789abcdef", // 32
		} {
			if _, err := NewEncryptionService(key); err != nil {
				t.Errorf("key length %d: expected no error, got: %v", len(key), err)
			}
		}
	})

	t.Run("should reject other key sizes", func(t *testing.T) {
		for _, key := range []string{"", "short", "0123456789abcdef0"} {
			if _, err := NewEncryptionService(key); err == nil {
				t.Errorf("key length %d: expected an error", len(key))
			}
		}
	})
}

func TestEncryptionService_RoundTrip(t *testing.T) {
	svc, err := NewEncryptionService("0123456789abcdef")
	if err != nil {
		t.Fatalf("NewEncryptionService: %v", err)
	}

	t.Run("should decrypt what it encrypted", func(t *testing.T) {
		ct, err := svc.Encrypt("hunter2")
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if ct == "hunter2" {
			t.Fatal("expected ciphertext to differ from plaintext")
		}
		pt, err := svc.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if pt != "hunter2" {
			t.Errorf("expected the original plaintext, got %q", pt)
		}
	})

	t.Run("should produce distinct ciphertexts per call", func(t *testing.T) {
		a, _ := svc.Encrypt("same input")
		b, _ := svc.Encrypt("same input")
		if a == b {
			t.Error("expected random nonces to vary the ciphertext")
		}
	})

	t.Run("should reject tampered ciphertext", func(t *testing.T) {
		if _, err := svc.Decrypt("bm90IGEgcmVhbCBjaXBoZXJ0ZXh0IGF0IGFsbCE="); err == nil {
			t.Error("expected an authentication failure")
		}
		if _, err := svc.Decrypt("%%%not-base64%%%"); err == nil {
			t.Error("expected a decode failure")
		}
	})
}

func TestEncryptionService_Account(t *testing.T) {
	svc, err := NewEncryptionService("0123456789abcdef")
	if err != nil {
		t.Fatalf("NewEncryptionService: %v", err)
	}
	account, err := model.NewAccount("acc-1", "netflix", "Pool A", 2)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	account.Email = "shared@example.com"
	account.Password = "s3cret"

	if err := svc.SealAccount(account); err != nil {
		t.Fatalf("SealAccount: %v", err)
	}
	if account.Email == "shared@example.com" || account.Password == "s3cret" {
		t.Fatal("expected credentials encrypted in place")
	}

	if err := svc.OpenAccount(account); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	if account.Email != "shared@example.com" || account.Password != "s3cret" {
		t.Errorf("expected the original credentials back, got %q / %q", account.Email, account.Password)
	}
}
