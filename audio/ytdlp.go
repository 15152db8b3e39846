package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/m3rciful/aiobot/core/logger"
)

// Prober inspects a URL without downloading anything.
type Prober interface {
	Probe(ctx context.Context, url string) (Metadata, error)
}

// Fetcher downloads a URL and transcodes it to mp3, returning the local
// file path and the metadata the platform reported.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, Metadata, error)
}

// Extractor runs the yt-dlp binary for probing and fetching.
type Extractor struct {
	cfg Config
}

// NewExtractor builds an Extractor from the pipeline configuration.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Probe dumps the platform metadata for url as JSON and normalizes it.
func (e *Extractor) Probe(ctx context.Context, url string) (Metadata, error) {
	src, ok := DetectSource(url)
	if !ok {
		return Metadata{}, fmt.Errorf("unsupported url: %s", url)
	}
	out, err := e.run(ctx, "--dump-json", "--no-warnings", "--no-playlist", url)
	if err != nil {
		return Metadata{}, fmt.Errorf("probe %s: %w", src, err)
	}
	meta, err := normalizeProbe(src, out)
	if err != nil {
		return Metadata{}, err
	}
	logger.Debug(ctx, "audio", "probe",
		slog.String("url", url),
		slog.String("operation", string(src)),
	)
	return meta, nil
}

// Fetch extracts the audio stream to mp3 inside the output directory.
// The extractor prints the final file path plus the discovered fields
// on its last stdout line.
func (e *Extractor) Fetch(ctx context.Context, url string) (string, Metadata, error) {
	src, ok := DetectSource(url)
	if !ok {
		return "", Metadata{}, fmt.Errorf("unsupported url: %s", url)
	}
	template := filepath.Join(e.cfg.OutputDirectory, "%(title)s.%(ext)s")
	out, err := e.run(ctx,
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", e.cfg.Quality,
		"--ffmpeg-location", e.cfg.FFmpegPath,
		"--no-playlist",
		"--no-warnings",
		"--restrict-filenames",
		"--output", template,
		"--print", "after_move:%(filepath)s\t%(title)s\t%(uploader)s\t%(album|)s",
		"--no-simulate",
		url,
	)
	if err != nil {
		return "", Metadata{}, fmt.Errorf("fetch %s: %w", src, err)
	}
	path, meta, err := parseFetchOutput(src, out)
	if err != nil {
		return "", Metadata{}, err
	}
	logger.Info(ctx, "audio", "fetch",
		slog.String("url", url),
		slog.String("file", filepath.Base(path)),
	)
	return path, meta, nil
}

func (e *Extractor) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.cfg.YTDLPPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return nil, fmt.Errorf("yt-dlp: %w", err)
		}
		return nil, fmt.Errorf("yt-dlp: %w: %s", err, lastLine(detail))
	}
	return stdout.Bytes(), nil
}

// parseFetchOutput reads the tab-separated print line emitted after the
// file has been moved into place.
func parseFetchOutput(src Source, out []byte) (string, Metadata, error) {
	line := lastLine(strings.TrimSpace(string(out)))
	parts := strings.Split(line, "\t")
	if len(parts) < 1 || strings.TrimSpace(parts[0]) == "" {
		return "", Metadata{}, fmt.Errorf("extractor reported no output file")
	}
	path := strings.TrimSpace(parts[0])
	meta := Metadata{}
	if len(parts) > 1 {
		meta.Title = cleanField(parts[1])
	}
	if len(parts) > 2 {
		meta.Artist = cleanField(parts[2])
	}
	if len(parts) > 3 && src != SourceSoundCloud {
		meta.Album = cleanField(parts[3])
	}
	return path, meta, nil
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
