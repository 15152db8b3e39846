package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/aiobot/core/logger"
)

// Download statuses recorded over the lifetime of a request.
const (
	DownloadPending     = "pending"
	DownloadDownloading = "downloading"
	DownloadCompleted   = "completed"
	DownloadFailed      = "failed"
	DownloadCancelled   = "cancelled"
)

// Download is the audit record of one extraction request.
type Download struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	URL         string          `db:"url"`
	Title       sql.NullString  `db:"title"`
	Artist      sql.NullString  `db:"artist"`
	Album       sql.NullString  `db:"album"`
	Filename    sql.NullString  `db:"filename"`
	FileSizeMB  sql.NullFloat64 `db:"file_size_mb"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	CompletedAt sql.NullTime    `db:"completed_at"`
}

// DownloadUpdate names the columns a partial update may touch.
type DownloadUpdate struct {
	Title      *string
	Artist     *string
	Album      *string
	Filename   *string
	FileSizeMB *float64
	Status     *string
}

// DownloadsRepo persists download records in Postgres.
type DownloadsRepo struct {
	db *sqlx.DB
}

// NewDownloadsRepo wires the repository to a live connection pool.
func NewDownloadsRepo(db *sqlx.DB) *DownloadsRepo {
	return &DownloadsRepo{db: db}
}

// Create records a pending download and returns its id.
func (r *DownloadsRepo) Create(ctx context.Context, userID int64, url string) (int64, error) {
	const q = `
		INSERT INTO downloads (user_id, url, status)
		VALUES ($1, $2, $3)
		RETURNING id`
	var id int64
	if err := r.db.GetContext(ctx, &id, q, userID, url, DownloadPending); err != nil {
		return 0, fmt.Errorf("insert download: %w", err)
	}
	logger.Debug(ctx, "db", "download_created",
		slog.Int64("user_id", userID),
		slog.Int64("download_id", id),
	)
	return id, nil
}

// Update applies the supplied fields to one record. Moving into the
// completed status also stamps completed_at.
func (r *DownloadsRepo) Update(ctx context.Context, id int64, upd DownloadUpdate) error {
	sets := []string{}
	args := []any{}
	idx := 1
	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Artist != nil {
		add("artist", *upd.Artist)
	}
	if upd.Album != nil {
		add("album", *upd.Album)
	}
	if upd.Filename != nil {
		add("filename", *upd.Filename)
	}
	if upd.FileSizeMB != nil {
		add("file_size_mb", *upd.FileSizeMB)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
		if *upd.Status == DownloadCompleted {
			sets = append(sets, "completed_at = NOW()")
		}
	}
	if len(sets) == 0 {
		return nil
	}
	q := fmt.Sprintf("UPDATE downloads SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update download: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update download: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentByUser lists the newest records of one user, newest first.
func (r *DownloadsRepo) RecentByUser(ctx context.Context, userID int64, limit int) ([]Download, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT id, user_id, url, title, artist, album, filename, file_size_mb, status, created_at, completed_at
		FROM downloads
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	var out []Download
	if err := r.db.SelectContext(ctx, &out, q, userID, limit); err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return out, nil
}

// CountByStatus aggregates record counts per status for the stats view.
func (r *DownloadsRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	const q = `SELECT status, COUNT(*) AS n FROM downloads GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count downloads: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count downloads: %w", err)
	}
	return out, nil
}
