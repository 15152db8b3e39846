package vault

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/m3rciful/aiobot/storage"
	"github.com/m3rciful/aiobot/vaultcrypto"
)

type fakeRepo struct {
	nextID int64
	rows   map[int64]map[string]*storage.Credential
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[int64]map[string]*storage.Credential)}
}

func (f *fakeRepo) user(userID int64) map[string]*storage.Credential {
	if f.rows[userID] == nil {
		f.rows[userID] = make(map[string]*storage.Credential)
	}
	return f.rows[userID]
}

func (f *fakeRepo) Create(_ context.Context, userID int64, service string, username sql.NullString, payload []byte) (int64, error) {
	rows := f.user(userID)
	if _, ok := rows[service]; ok {
		return 0, storage.ErrDuplicate
	}
	f.nextID++
	rows[service] = &storage.Credential{
		ID:               f.nextID,
		UserID:           userID,
		ServiceName:      service,
		Username:         username,
		EncryptedPayload: payload,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	return f.nextID, nil
}

func (f *fakeRepo) Get(_ context.Context, userID int64, service string) (*storage.Credential, error) {
	if c, ok := f.user(userID)[service]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeRepo) List(_ context.Context, userID int64) ([]storage.Credential, error) {
	var out []storage.Credential
	for _, c := range f.user(userID) {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeRepo) Update(_ context.Context, userID int64, service string, upd storage.CredentialUpdate) error {
	rows := f.user(userID)
	c, ok := rows[service]
	if !ok {
		return storage.ErrNotFound
	}
	if upd.ServiceName != nil {
		if _, taken := rows[*upd.ServiceName]; taken && *upd.ServiceName != service {
			return storage.ErrDuplicate
		}
		delete(rows, service)
		c.ServiceName = *upd.ServiceName
		rows[c.ServiceName] = c
	}
	if upd.Username != nil {
		c.Username = *upd.Username
	}
	if upd.Payload != nil {
		c.EncryptedPayload = upd.Payload
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, userID int64, service string) error {
	rows := f.user(userID)
	if _, ok := rows[service]; !ok {
		return storage.ErrNotFound
	}
	delete(rows, service)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	key, err := vaultcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	cipher, err := vaultcrypto.New(key)
	if err != nil {
		t.Fatal(err)
	}
	repo := newFakeRepo()
	return NewService(repo, cipher), repo
}

func TestCreateAndReveal(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user := "alice@example.com"
	if err := svc.CreateEntry(ctx, 7, "Gmail", &user, "secret1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The stored payload must not contain the plaintext.
	stored := repo.rows[7]["Gmail"]
	if string(stored.EncryptedPayload) == "secret1" {
		t.Fatal("password stored in plaintext")
	}

	entry, err := svc.Reveal(ctx, 7, "Gmail")
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if entry.Password != "secret1" || !entry.HasUsername || entry.Username != user {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestCreateWithoutUsername(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateEntry(ctx, 7, "Gmail", nil, "secret1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if repo.rows[7]["Gmail"].Username.Valid {
		t.Fatal("skipped username must be stored as NULL")
	}
	entry, err := svc.Reveal(ctx, 7, "Gmail")
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if entry.HasUsername {
		t.Fatal("entry reports a username that was never set")
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateEntry(ctx, 7, "Gmail", nil, "one"); err != nil {
		t.Fatal(err)
	}
	if err := svc.CreateEntry(ctx, 7, "Gmail", nil, "two"); !errors.Is(err, ErrServiceExists) {
		t.Fatalf("expected ErrServiceExists, got %v", err)
	}
	// A different owner may reuse the name.
	if err := svc.CreateEntry(ctx, 8, "Gmail", nil, "three"); err != nil {
		t.Fatalf("create other owner: %v", err)
	}
}

func TestRevealIsPerOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateEntry(ctx, 7, "Gmail", nil, "secret1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reveal(ctx, 8, "Gmail"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestRenameService(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateEntry(ctx, 7, "Gmail", nil, "a"); err != nil {
		t.Fatal(err)
	}
	if err := svc.CreateEntry(ctx, 7, "Bank", nil, "b"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RenameService(ctx, 7, "Gmail", "Bank"); !errors.Is(err, ErrServiceExists) {
		t.Fatalf("expected ErrServiceExists, got %v", err)
	}
	if err := svc.RenameService(ctx, 7, "Gmail", "Mail"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := svc.Reveal(ctx, 7, "Mail"); err != nil {
		t.Fatalf("reveal renamed: %v", err)
	}
	if err := svc.RenameService(ctx, 7, "Missing", "X"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetUsernameAndClear(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := "old"
	if err := svc.CreateEntry(ctx, 7, "Gmail", &user, "pw"); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetUsername(ctx, 7, "Gmail", nil); err != nil {
		t.Fatalf("clear username: %v", err)
	}
	entry, err := svc.Reveal(ctx, 7, "Gmail")
	if err != nil {
		t.Fatal(err)
	}
	if entry.HasUsername {
		t.Fatal("username not cleared")
	}
}

func TestSetPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateEntry(ctx, 7, "Gmail", nil, "old"); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetPassword(ctx, 7, "Gmail", "new"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	entry, err := svc.Reveal(ctx, 7, "Gmail")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Password != "new" {
		t.Errorf("password = %q", entry.Password)
	}
}

func TestDeleteEntry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateEntry(ctx, 7, "Gmail", nil, "pw"); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteEntry(ctx, 7, "Gmail"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteEntry(ctx, 7, "Gmail"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevealSurfacesCryptoError(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateEntry(ctx, 7, "Gmail", nil, "pw"); err != nil {
		t.Fatal(err)
	}
	repo.rows[7]["Gmail"].EncryptedPayload = []byte("garbage")
	_, err := svc.Reveal(ctx, 7, "Gmail")
	if err == nil {
		t.Fatal("expected error for corrupt payload")
	}
	var ce *vaultcrypto.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *vaultcrypto.Error, got %T", err)
	}
}
