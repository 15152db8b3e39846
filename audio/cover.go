package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxCoverBytes caps a downloaded cover image at 10 MB.
const maxCoverBytes = 10 * 1024 * 1024

// CoverStore saves cover art into temporary files for later embedding.
type CoverStore struct {
	Dir    string
	Client *http.Client
}

// FetchURL downloads a cover image from url into a temp file. Non-image
// responses are rejected. The returned path must be cleaned up by the
// caller via Discard.
func (cs *CoverStore) FetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("cover request: %w", err)
	}
	client := cs.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch cover: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch cover: status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("cover url is not an image: %s", ct)
	}
	return cs.Save(io.LimitReader(resp.Body, maxCoverBytes), extForContentType(ct))
}

// Save writes cover bytes from r into a uniquely named temp file.
func (cs *CoverStore) Save(r io.Reader, ext string) (string, error) {
	dir := cs.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cover dir: %w", err)
	}
	path := filepath.Join(dir, "cover_"+uuid.NewString()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create cover file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write cover file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// Discard removes a previously saved cover file, ignoring absence.
func (cs *CoverStore) Discard(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func extForContentType(ct string) string {
	switch {
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
