// Package vaultcrypto wraps symmetric authenticated encryption for
// stored credential payloads.
package vaultcrypto

import (
	"fmt"

	"github.com/fernet/fernet-go"
)

// Error wraps failures from the crypto layer so callers can distinguish
// them from storage errors.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "vaultcrypto: " + e.Op
	}
	return fmt.Sprintf("vaultcrypto: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code implements the error classification used by handler logging.
func (e *Error) Code() string { return "crypto" }

// Cipher encrypts and decrypts credential payloads.
type Cipher interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(token []byte) (string, error)
}

// Fernet is a Cipher backed by a single fernet key. Tokens carry an
// HMAC and never expire on read.
type Fernet struct {
	key *fernet.Key
}

// New decodes a base64 fernet key and returns a ready Cipher.
func New(encodedKey string) (*Fernet, error) {
	if encodedKey == "" {
		return nil, &Error{Op: "load key", Err: fmt.Errorf("empty key")}
	}
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, &Error{Op: "load key", Err: err}
	}
	return &Fernet{key: key}, nil
}

// GenerateKey produces a fresh encoded key suitable for configuration.
func GenerateKey() (string, error) {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		return "", &Error{Op: "generate key", Err: err}
	}
	return key.Encode(), nil
}

// Encrypt seals plaintext into a fernet token.
func (f *Fernet) Encrypt(plaintext string) ([]byte, error) {
	token, err := fernet.EncryptAndSign([]byte(plaintext), f.key)
	if err != nil {
		return nil, &Error{Op: "encrypt", Err: err}
	}
	return token, nil
}

// Decrypt verifies and opens a fernet token. A tampered or foreign-key
// token yields an Error rather than garbage plaintext.
func (f *Fernet) Decrypt(token []byte) (string, error) {
	msg := fernet.VerifyAndDecrypt(token, 0, []*fernet.Key{f.key})
	if msg == nil {
		return "", &Error{Op: "decrypt", Err: fmt.Errorf("invalid token")}
	}
	return string(msg), nil
}

// SelfTest round-trips a probe value to catch a misconfigured key at
// startup instead of at the first user request.
func (f *Fernet) SelfTest() error {
	const probe = "vault-selftest"
	token, err := f.Encrypt(probe)
	if err != nil {
		return err
	}
	out, err := f.Decrypt(token)
	if err != nil {
		return err
	}
	if out != probe {
		return &Error{Op: "selftest", Err: fmt.Errorf("round-trip mismatch")}
	}
	return nil
}
