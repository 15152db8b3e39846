package audio

import "testing"

func TestDetectSource(t *testing.T) {
	cases := []struct {
		url  string
		want Source
		ok   bool
	}{
		{"https://www.youtube.com/watch?v=abc123", SourceYouTube, true},
		{"https://youtube.com/watch?v=abc123", SourceYouTube, true},
		{"https://m.youtube.com/watch?v=abc123", SourceYouTube, true},
		{"https://youtu.be/abc123", SourceYouTube, true},
		{"https://soundcloud.com/artist/track", SourceSoundCloud, true},
		{"https://www.soundcloud.com/artist/track", SourceSoundCloud, true},
		{"  https://youtu.be/abc123  ", SourceYouTube, true},
		{"https://youtube.com/playlist?list=xyz", "", false},
		{"https://youtu.be/", "", false},
		{"https://soundcloud.com/", "", false},
		{"https://example.com/watch?v=abc", "", false},
		{"ftp://youtube.com/watch?v=abc", "", false},
		{"not a url", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectSource(tc.url)
		if ok != tc.ok || got != tc.want {
			t.Errorf("DetectSource(%q) = (%q, %v), want (%q, %v)", tc.url, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMergeUserFieldsWin(t *testing.T) {
	user := Metadata{Artist: "Artist", Album: ""}
	probed := Metadata{Artist: "Uploader", Title: "Probed Title", Album: "Probed Album"}
	got := Merge(user, probed)
	if got.Artist != "Artist" {
		t.Errorf("user artist overwritten: %q", got.Artist)
	}
	if got.Title != "Probed Title" || got.Album != "Probed Album" {
		t.Errorf("probed fields not filled: %+v", got)
	}
}

func TestMergeIdempotent(t *testing.T) {
	user := Metadata{Title: "Mine"}
	probed := Metadata{Artist: "A", Title: "Theirs", Album: "B"}
	once := Merge(user, probed)
	twice := Merge(once, probed)
	if once != twice {
		t.Errorf("merge not idempotent: %+v vs %+v", once, twice)
	}
}

func TestNormalizeProbeSoundCloudHasNoAlbum(t *testing.T) {
	payload := []byte(`{"title":"Track","uploader":"Someone","album":"ShouldBeIgnored"}`)
	meta, err := normalizeProbe(SourceSoundCloud, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if meta.Artist != "Someone" || meta.Title != "Track" || meta.Album != "" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestNormalizeProbeYouTubePrefersArtist(t *testing.T) {
	payload := []byte(`{"title":"Song","uploader":"Channel","artist":"Real Artist","album":"Record"}`)
	meta, err := normalizeProbe(SourceYouTube, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if meta.Artist != "Real Artist" || meta.Album != "Record" {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	payload = []byte(`{"title":"Song","uploader":"Channel"}`)
	meta, err = normalizeProbe(SourceYouTube, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if meta.Artist != "Channel" {
		t.Errorf("uploader fallback missing: %+v", meta)
	}
}

func TestParseFetchOutput(t *testing.T) {
	out := []byte("[download] something\n/tmp/out/Song_Name.mp3\tSong Name\tUploader\tAlbum X")
	path, meta, err := parseFetchOutput(SourceYouTube, out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if path != "/tmp/out/Song_Name.mp3" {
		t.Errorf("path = %q", path)
	}
	if meta.Title != "Song Name" || meta.Artist != "Uploader" || meta.Album != "Album X" {
		t.Errorf("meta = %+v", meta)
	}

	// SoundCloud never yields an album even when the extractor prints one.
	_, meta, err = parseFetchOutput(SourceSoundCloud, out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Album != "" {
		t.Errorf("soundcloud album must be empty, got %q", meta.Album)
	}

	if _, _, err := parseFetchOutput(SourceYouTube, []byte("")); err == nil {
		t.Error("expected error for empty output")
	}
}
