package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
)

func newTaggableFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestApplyWritesFrames(t *testing.T) {
	path := newTaggableFile(t)
	meta := Metadata{Artist: "Boards of Canada", Title: "Roygbiv", Album: "Music Has the Right to Children"}
	if err := (ID3Tagger{}).Apply(path, meta); err != nil {
		t.Fatalf("apply: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = tag.Close() }()
	if tag.Artist() != meta.Artist || tag.Title() != meta.Title || tag.Album() != meta.Album {
		t.Fatalf("frames not written: artist=%q title=%q album=%q", tag.Artist(), tag.Title(), tag.Album())
	}
}

func TestApplySurvivesUnreadableCover(t *testing.T) {
	path := newTaggableFile(t)
	meta := Metadata{
		Title:     "Roygbiv",
		CoverPath: filepath.Join(t.TempDir(), "missing.jpg"),
	}
	if err := (ID3Tagger{}).Apply(path, meta); err != nil {
		t.Fatalf("apply with unreadable cover: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = tag.Close() }()
	if tag.Title() != meta.Title {
		t.Fatalf("title frame not written, got %q", tag.Title())
	}
	if frames := tag.GetFrames(tag.CommonID("Attached picture")); len(frames) != 0 {
		t.Fatalf("expected no picture frame, got %d", len(frames))
	}
}
