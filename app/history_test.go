package app

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/m3rciful/aiobot/storage"
)

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func TestFormatHistoryEmpty(t *testing.T) {
	got := formatHistory(nil)
	if !strings.Contains(got, "No downloads yet") {
		t.Fatalf("unexpected empty reply: %q", got)
	}
}

func TestFormatHistoryEntries(t *testing.T) {
	items := []storage.Download{
		{
			URL:    "https://soundcloud.com/a/b",
			Title:  nullStr("Roygbiv"),
			Artist: nullStr("Boards of Canada"),
			Status: storage.DownloadCompleted,
		},
		{
			URL:      "https://youtu.be/abc123",
			Filename: nullStr("untagged_take.mp3"),
			Status:   storage.DownloadFailed,
		},
		{
			URL:    "https://youtu.be/xyz789",
			Status: storage.DownloadCancelled,
		},
	}

	got := formatHistory(items)
	for _, want := range []string{
		"✅ Boards of Canada - Roygbiv",
		"❌ untagged",
		"🚫 https://youtu.be/xyz789",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestDownloadLabelPrecedence(t *testing.T) {
	d := storage.Download{URL: "u", Filename: nullStr("file.mp3"), Title: nullStr("Song")}
	if got := downloadLabel(d); got != "Song" {
		t.Fatalf("title must win, got %q", got)
	}
	d.Title = sql.NullString{}
	if got := downloadLabel(d); got != "file.mp3" {
		t.Fatalf("filename fallback, got %q", got)
	}
	d.Filename = sql.NullString{}
	if got := downloadLabel(d); got != "u" {
		t.Fatalf("url fallback, got %q", got)
	}
}
