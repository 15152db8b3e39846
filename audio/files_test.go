package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"My Song", "My Song"},
		{`a<b>c:d"e/f\g|h?i*j`, "abcdefghij"},
		{"dots...and   spaces", "dots and spaces"},
		{"  trimmed .", "trimmed"},
		{"...", ""},
		{"normal_name-1", "normal_name-1"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFilenameIdempotent(t *testing.T) {
	inputs := []string{"My Song", `we<ird`, "a.b.c d", " x "}
	for _, in := range inputs {
		once := SanitizeFilename(in)
		if twice := SanitizeFilename(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"song.mp3": true, "song_1.mp3": true}
	exists := func(name string) bool { return taken[name] }

	if got := UniqueName("fresh", "mp3", exists); got != "fresh.mp3" {
		t.Errorf("got %q", got)
	}
	if got := UniqueName("song", "mp3", exists); got != "song_2.mp3" {
		t.Errorf("got %q", got)
	}
}

func TestRenameTo(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "raw_output.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "My Track.mp3"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := RenameTo(src, dir, `My/Track`)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if filepath.Base(got) != "MyTrack.mp3" {
		t.Errorf("final name = %q", filepath.Base(got))
	}

	// Collision with the pre-existing file picks a suffixed name.
	src2 := filepath.Join(dir, "raw_output2.mp3")
	if err := os.WriteFile(src2, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	got2, err := RenameTo(src2, dir, "My Track")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if filepath.Base(got2) != "My Track_1.mp3" {
		t.Errorf("final name = %q", filepath.Base(got2))
	}

	// A name that sanitizes to nothing falls back to the default stem.
	src3 := filepath.Join(dir, "keep.mp3")
	if err := os.WriteFile(src3, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	got3, err := RenameTo(src3, dir, "...")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if filepath.Base(got3) != FallbackStem+".mp3" {
		t.Errorf("final name = %q", filepath.Base(got3))
	}
}

func TestSanitizeFilenameStripsControlChars(t *testing.T) {
	if got := SanitizeFilename("bad\x00name\x1f"); got != "badname" {
		t.Errorf("got %q", got)
	}
}
