package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/aiobot/core/logger"
)

// Credential is one stored service login owned by a single user.
// The password lives only inside EncryptedPayload.
type Credential struct {
	ID               int64          `db:"id"`
	UserID           int64          `db:"user_id"`
	ServiceName      string         `db:"service_name"`
	Username         sql.NullString `db:"username"`
	EncryptedPayload []byte         `db:"encrypted_payload"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// CredentialUpdate names the columns a partial update may touch.
// Nil pointers leave the column unchanged; Username with Valid=false
// clears it to NULL.
type CredentialUpdate struct {
	ServiceName *string
	Username    *sql.NullString
	Payload     []byte
}

// CredentialsRepo persists vault entries in Postgres.
type CredentialsRepo struct {
	db *sqlx.DB
}

// NewCredentialsRepo wires the repository to a live connection pool.
func NewCredentialsRepo(db *sqlx.DB) *CredentialsRepo {
	return &CredentialsRepo{db: db}
}

// Create inserts a new entry. A second entry for the same user and
// service name fails with ErrDuplicate.
func (r *CredentialsRepo) Create(ctx context.Context, userID int64, service string, username sql.NullString, payload []byte) (int64, error) {
	const q = `
		INSERT INTO credentials (user_id, service_name, username, encrypted_payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	var id int64
	err := r.db.GetContext(ctx, &id, q, userID, service, username, payload)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert credential: %w", err)
	}
	logger.Debug(ctx, "db", "credential_created",
		slog.Int64("user_id", userID),
		slog.String("service", service),
	)
	return id, nil
}

// Get fetches one entry by exact service name.
func (r *CredentialsRepo) Get(ctx context.Context, userID int64, service string) (*Credential, error) {
	const q = `
		SELECT id, user_id, service_name, username, encrypted_payload, created_at, updated_at
		FROM credentials
		WHERE user_id = $1 AND service_name = $2`
	var c Credential
	if err := r.db.GetContext(ctx, &c, q, userID, service); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select credential: %w", err)
	}
	return &c, nil
}

// List returns all entries of a user ordered by service name.
func (r *CredentialsRepo) List(ctx context.Context, userID int64) ([]Credential, error) {
	const q = `
		SELECT id, user_id, service_name, username, encrypted_payload, created_at, updated_at
		FROM credentials
		WHERE user_id = $1
		ORDER BY service_name`
	var out []Credential
	if err := r.db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

// Update applies the supplied fields to one entry and reports whether a
// row was changed. Renaming onto an existing service name fails with
// ErrDuplicate.
func (r *CredentialsRepo) Update(ctx context.Context, userID int64, service string, upd CredentialUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	idx := 1
	if upd.ServiceName != nil {
		sets = append(sets, fmt.Sprintf("service_name = $%d", idx))
		args = append(args, *upd.ServiceName)
		idx++
	}
	if upd.Username != nil {
		sets = append(sets, fmt.Sprintf("username = $%d", idx))
		args = append(args, *upd.Username)
		idx++
	}
	if upd.Payload != nil {
		sets = append(sets, fmt.Sprintf("encrypted_payload = $%d", idx))
		args = append(args, upd.Payload)
		idx++
	}
	q := fmt.Sprintf(
		"UPDATE credentials SET %s WHERE user_id = $%d AND service_name = $%d",
		strings.Join(sets, ", "), idx, idx+1,
	)
	args = append(args, userID, service)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	logger.Debug(ctx, "db", "credential_updated",
		slog.Int64("user_id", userID),
		slog.String("service", service),
	)
	return nil
}

// Delete removes one entry and reports absence via ErrNotFound.
func (r *CredentialsRepo) Delete(ctx context.Context, userID int64, service string) error {
	const q = `DELETE FROM credentials WHERE user_id = $1 AND service_name = $2`
	res, err := r.db.ExecContext(ctx, q, userID, service)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	logger.Info(ctx, "db", "credential_deleted",
		slog.Int64("user_id", userID),
		slog.String("service", service),
	)
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
