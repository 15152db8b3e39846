// Package vault implements the per-user encrypted credential store:
// the service layer over storage and crypto, plus the Telegram command
// handlers and multi-step flows driving it.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/aiobot/core/logger"
	"github.com/m3rciful/aiobot/storage"
	"github.com/m3rciful/aiobot/vaultcrypto"
)

// ErrServiceExists is returned when creating or renaming onto a service
// name the user already stores.
var ErrServiceExists = errors.New("vault: service already stored")

// ErrNotFound is returned when the user has no entry under that name.
var ErrNotFound = errors.New("vault: entry not found")

// Repo is the slice of the credentials repository the service needs.
type Repo interface {
	Create(ctx context.Context, userID int64, service string, username sql.NullString, payload []byte) (int64, error)
	Get(ctx context.Context, userID int64, service string) (*storage.Credential, error)
	List(ctx context.Context, userID int64) ([]storage.Credential, error)
	Update(ctx context.Context, userID int64, service string, upd storage.CredentialUpdate) error
	Delete(ctx context.Context, userID int64, service string) error
}

// Entry is a decrypted credential handed back to the owner.
type Entry struct {
	ServiceName string
	Username    string
	HasUsername bool
	Password    string
	UpdatedAt   time.Time
}

// Summary is one row of the entry listing; it never carries secrets.
type Summary struct {
	ServiceName string
	Username    string
	HasUsername bool
	UpdatedAt   time.Time
}

// Service owns the credential lifecycle. Passwords cross its boundary
// as plaintext strings and are stored only encrypted.
type Service struct {
	repo   Repo
	cipher vaultcrypto.Cipher
}

// NewService wires the service to its repository and cipher.
func NewService(repo Repo, cipher vaultcrypto.Cipher) *Service {
	return &Service{repo: repo, cipher: cipher}
}

// CreateEntry encrypts the password and stores a new entry. username
// nil stores NULL.
func (s *Service) CreateEntry(ctx context.Context, userID int64, service string, username *string, password string) error {
	payload, err := s.cipher.Encrypt(password)
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, userID, service, toNullString(username), payload)
	if errors.Is(err, storage.ErrDuplicate) {
		return ErrServiceExists
	}
	if err != nil {
		return err
	}
	logger.Info(ctx, "service.vault", "entry_created",
		slog.Int64("user_id", userID),
		slog.String("service", service),
	)
	return nil
}

// Exists reports whether the user already stores the service.
func (s *Service) Exists(ctx context.Context, userID int64, service string) (bool, error) {
	_, err := s.repo.Get(ctx, userID, service)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Reveal decrypts one entry for its owner.
func (s *Service) Reveal(ctx context.Context, userID int64, service string) (Entry, error) {
	cred, err := s.repo.Get(ctx, userID, service)
	if errors.Is(err, storage.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	password, err := s.cipher.Decrypt(cred.EncryptedPayload)
	if err != nil {
		return Entry{}, fmt.Errorf("reveal %s: %w", service, err)
	}
	return Entry{
		ServiceName: cred.ServiceName,
		Username:    cred.Username.String,
		HasUsername: cred.Username.Valid,
		Password:    password,
		UpdatedAt:   cred.UpdatedAt,
	}, nil
}

// ListEntries returns all entry summaries of a user.
func (s *Service) ListEntries(ctx context.Context, userID int64) ([]Summary, error) {
	creds, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(creds))
	for _, c := range creds {
		out = append(out, Summary{
			ServiceName: c.ServiceName,
			Username:    c.Username.String,
			HasUsername: c.Username.Valid,
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return out, nil
}

// RenameService moves an entry to a new service name.
func (s *Service) RenameService(ctx context.Context, userID int64, service, newName string) error {
	err := s.repo.Update(ctx, userID, service, storage.CredentialUpdate{ServiceName: &newName})
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return ErrServiceExists
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	}
	return err
}

// SetUsername replaces the stored username; nil clears it to NULL.
func (s *Service) SetUsername(ctx context.Context, userID int64, service string, username *string) error {
	ns := toNullString(username)
	err := s.repo.Update(ctx, userID, service, storage.CredentialUpdate{Username: &ns})
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// SetPassword re-encrypts and replaces the stored password.
func (s *Service) SetPassword(ctx context.Context, userID int64, service, password string) error {
	payload, err := s.cipher.Encrypt(password)
	if err != nil {
		return err
	}
	err = s.repo.Update(ctx, userID, service, storage.CredentialUpdate{Payload: payload})
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// DeleteEntry removes one entry permanently.
func (s *Service) DeleteEntry(ctx context.Context, userID int64, service string) error {
	err := s.repo.Delete(ctx, userID, service)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	logger.Info(ctx, "service.vault", "entry_deleted",
		slog.Int64("user_id", userID),
		slog.String("service", service),
	)
	return nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
