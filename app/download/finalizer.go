// Package download implements the interactive audio download assistant:
// the conversational flow collecting a URL and tag fields, and the
// finalizer pipeline that extracts, tags and delivers the file.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/m3rciful/aiobot/audio"
	"github.com/m3rciful/aiobot/core/logger"
	"github.com/m3rciful/aiobot/storage"
)

// Records is the slice of the downloads repository the flow needs.
type Records interface {
	Create(ctx context.Context, userID int64, url string) (int64, error)
	Update(ctx context.Context, id int64, upd storage.DownloadUpdate) error
}

// Request carries everything the finalizer needs for one download.
type Request struct {
	Owner      int64
	RecordID   int64
	URL        string
	Meta       audio.Metadata
	CustomName string
}

// Outcome is the single result of a finalizer run. Exactly one of a
// delivered file or Err is meaningful.
type Outcome struct {
	Path       string
	SizeMB     float64
	Meta       audio.Metadata
	Uploadable bool
	Err        error
}

// Finalizer runs the extraction pipeline for confirmed requests.
type Finalizer struct {
	Prober  audio.Prober
	Fetcher audio.Fetcher
	Tagger  audio.Tagger
	Covers  *audio.CoverStore
	Records Records
	// OutputDir is where finished files live when they are too large
	// to upload.
	OutputDir string
	// UploadLimitMB bounds direct uploads.
	UploadLimitMB int
}

// Run executes probe, fetch, tag and rename for one request. It always
// updates the download record and discards the temp cover file.
func (f *Finalizer) Run(ctx context.Context, req Request) Outcome {
	defer f.Covers.Discard(req.Meta.CoverPath)

	downloading := storage.DownloadDownloading
	if err := f.Records.Update(ctx, req.RecordID, storage.DownloadUpdate{Status: &downloading}); err != nil {
		logger.Warn(ctx, "service.downloads", "record_update_failed",
			slog.Int64("download_id", req.RecordID),
			slog.String("err", err.Error()),
		)
	}

	out := f.run(ctx, req)
	if out.Err != nil {
		status := storage.DownloadFailed
		if err := f.Records.Update(ctx, req.RecordID, storage.DownloadUpdate{Status: &status}); err != nil {
			logger.Warn(ctx, "service.downloads", "record_update_failed",
				slog.Int64("download_id", req.RecordID),
				slog.String("err", err.Error()),
			)
		}
		logger.Error(ctx, "service.downloads", "finalize_failed",
			slog.Int64("download_id", req.RecordID),
			slog.String("url", req.URL),
			slog.String("err", out.Err.Error()),
		)
		return out
	}

	status := storage.DownloadCompleted
	filename := filepath.Base(out.Path)
	upd := storage.DownloadUpdate{
		Filename:   &filename,
		FileSizeMB: &out.SizeMB,
		Status:     &status,
	}
	if out.Meta.Title != "" {
		upd.Title = &out.Meta.Title
	}
	if out.Meta.Artist != "" {
		upd.Artist = &out.Meta.Artist
	}
	if out.Meta.Album != "" {
		upd.Album = &out.Meta.Album
	}
	if err := f.Records.Update(ctx, req.RecordID, upd); err != nil {
		logger.Warn(ctx, "service.downloads", "record_update_failed",
			slog.Int64("download_id", req.RecordID),
			slog.String("err", err.Error()),
		)
	}
	logger.Info(ctx, "service.downloads", "finalize_done",
		slog.Int64("download_id", req.RecordID),
		slog.String("file", filename),
		slog.Float64("size_mb", out.SizeMB),
	)
	return out
}

func (f *Finalizer) run(ctx context.Context, req Request) Outcome {
	meta := req.Meta
	if !meta.Complete() {
		probed, err := f.Prober.Probe(ctx, req.URL)
		if err != nil {
			// Probing is best effort; the fetch step still reports fields.
			logger.Warn(ctx, "service.downloads", "probe_failed",
				slog.String("url", req.URL),
				slog.String("err", err.Error()),
			)
		} else {
			meta = audio.Merge(meta, probed)
		}
	}

	path, fetched, err := f.Fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return Outcome{Err: fmt.Errorf("fetch: %w", err)}
	}
	meta = audio.Merge(meta, fetched)

	if err := f.Tagger.Apply(path, meta); err != nil {
		return Outcome{Err: fmt.Errorf("tag: %w", err)}
	}

	if req.CustomName != "" {
		renamed, err := audio.RenameTo(path, f.OutputDir, req.CustomName)
		if err != nil {
			return Outcome{Err: fmt.Errorf("rename: %w", err)}
		}
		path = renamed
	}

	size, err := audio.FileSizeMB(path)
	if err != nil {
		return Outcome{Err: fmt.Errorf("stat: %w", err)}
	}
	return Outcome{
		Path:       path,
		SizeMB:     size,
		Meta:       meta,
		Uploadable: size <= float64(f.UploadLimitMB),
	}
}
