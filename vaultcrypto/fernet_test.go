package vaultcrypto

import (
	"errors"
	"testing"
)

func newTestCipher(t *testing.T) *Fernet {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c, err := New(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	for _, secret := range []string{"hunter2", "", "päss wörd ✓", "long secret with spaces and symbols !@#$"} {
		token, err := c.Encrypt(secret)
		if err != nil {
			t.Fatalf("encrypt %q: %v", secret, err)
		}
		got, err := c.Decrypt(token)
		if err != nil {
			t.Fatalf("decrypt %q: %v", secret, err)
		}
		if got != secret {
			t.Errorf("round trip mismatch: got %q want %q", got, secret)
		}
	}
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	a := newTestCipher(t)
	b := newTestCipher(t)
	token, err := a.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Decrypt(token); err == nil {
		t.Fatal("expected decrypt failure with foreign key")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	c := newTestCipher(t)
	token, err := c.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	token[len(token)/2] ^= 0xff
	_, err = c.Decrypt(token)
	if err == nil {
		t.Fatal("expected decrypt failure after tampering")
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ce.Code() != "crypto" {
		t.Errorf("unexpected error code %q", ce.Code())
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := New("not-base64!!"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}

func TestSelfTest(t *testing.T) {
	c := newTestCipher(t)
	if err := c.SelfTest(); err != nil {
		t.Fatalf("selftest: %v", err)
	}
}
