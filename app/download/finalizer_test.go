package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m3rciful/aiobot/audio"
	"github.com/m3rciful/aiobot/storage"
)

type fakeProber struct {
	meta audio.Metadata
	err  error
	hits int
}

func (f *fakeProber) Probe(context.Context, string) (audio.Metadata, error) {
	f.hits++
	return f.meta, f.err
}

type fakeFetcher struct {
	dir  string
	name string
	meta audio.Metadata
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) (string, audio.Metadata, error) {
	if f.err != nil {
		return "", audio.Metadata{}, f.err
	}
	path := filepath.Join(f.dir, f.name)
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		return "", audio.Metadata{}, err
	}
	return path, f.meta, nil
}

type fakeTagger struct {
	applied audio.Metadata
	err     error
}

func (f *fakeTagger) Apply(_ string, meta audio.Metadata) error {
	f.applied = meta
	return f.err
}

type fakeRecords struct {
	updates []storage.DownloadUpdate
}

func (f *fakeRecords) Create(context.Context, int64, string) (int64, error) { return 1, nil }

func (f *fakeRecords) Update(_ context.Context, _ int64, upd storage.DownloadUpdate) error {
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeRecords) lastStatus() string {
	for i := len(f.updates) - 1; i >= 0; i-- {
		if f.updates[i].Status != nil {
			return *f.updates[i].Status
		}
	}
	return ""
}

func newTestFinalizer(t *testing.T) (*Finalizer, *fakeProber, *fakeFetcher, *fakeTagger, *fakeRecords) {
	t.Helper()
	dir := t.TempDir()
	prober := &fakeProber{meta: audio.Metadata{Artist: "Probed Artist", Title: "Probed Title", Album: "Probed Album"}}
	fetcher := &fakeFetcher{dir: dir, name: "Raw_Title.mp3"}
	tagger := &fakeTagger{}
	records := &fakeRecords{}
	fin := &Finalizer{
		Prober:        prober,
		Fetcher:       fetcher,
		Tagger:        tagger,
		Covers:        &audio.CoverStore{Dir: dir},
		Records:       records,
		OutputDir:     dir,
		UploadLimitMB: 50,
	}
	return fin, prober, fetcher, tagger, records
}

func TestRunMergesUserOverProbed(t *testing.T) {
	fin, prober, _, tagger, records := newTestFinalizer(t)

	out := fin.Run(context.Background(), Request{
		RecordID: 1,
		URL:      "https://youtu.be/abc",
		Meta:     audio.Metadata{Artist: "My Artist"},
	})
	if out.Err != nil {
		t.Fatalf("run: %v", out.Err)
	}
	if prober.hits != 1 {
		t.Fatalf("expected one probe, got %d", prober.hits)
	}
	if tagger.applied.Artist != "My Artist" {
		t.Errorf("user artist lost: %q", tagger.applied.Artist)
	}
	if tagger.applied.Title != "Probed Title" || tagger.applied.Album != "Probed Album" {
		t.Errorf("probed fields not merged: %+v", tagger.applied)
	}
	if records.lastStatus() != storage.DownloadCompleted {
		t.Errorf("status = %q", records.lastStatus())
	}
	if !out.Uploadable {
		t.Error("small file must be uploadable")
	}
}

func TestRunSkipsProbeWhenComplete(t *testing.T) {
	fin, prober, _, _, _ := newTestFinalizer(t)

	out := fin.Run(context.Background(), Request{
		RecordID: 1,
		URL:      "https://youtu.be/abc",
		Meta:     audio.Metadata{Artist: "A", Title: "T", Album: "L"},
	})
	if out.Err != nil {
		t.Fatalf("run: %v", out.Err)
	}
	if prober.hits != 0 {
		t.Errorf("probe ran despite complete metadata: %d", prober.hits)
	}
}

func TestRunSurvivesProbeFailure(t *testing.T) {
	fin, prober, fetcher, tagger, _ := newTestFinalizer(t)
	prober.err = errors.New("extractor offline")
	fetcher.meta = audio.Metadata{Title: "Fetched Title", Artist: "Fetched Artist"}

	out := fin.Run(context.Background(), Request{RecordID: 1, URL: "https://youtu.be/abc"})
	if out.Err != nil {
		t.Fatalf("run: %v", out.Err)
	}
	if tagger.applied.Title != "Fetched Title" {
		t.Errorf("fetch metadata not used: %+v", tagger.applied)
	}
}

func TestRunCustomFilename(t *testing.T) {
	fin, _, _, _, records := newTestFinalizer(t)

	out := fin.Run(context.Background(), Request{
		RecordID:   1,
		URL:        "https://youtu.be/abc",
		CustomName: `My: Song?`,
	})
	if out.Err != nil {
		t.Fatalf("run: %v", out.Err)
	}
	if filepath.Base(out.Path) != "My Song.mp3" {
		t.Errorf("final name = %q", filepath.Base(out.Path))
	}
	if _, err := os.Stat(out.Path); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}
	var gotFilename string
	for _, u := range records.updates {
		if u.Filename != nil {
			gotFilename = *u.Filename
		}
	}
	if gotFilename != "My Song.mp3" {
		t.Errorf("recorded filename = %q", gotFilename)
	}
}

func TestRunFetchFailureMarksRecordFailed(t *testing.T) {
	fin, _, fetcher, _, records := newTestFinalizer(t)
	fetcher.err = errors.New("network down")

	out := fin.Run(context.Background(), Request{RecordID: 1, URL: "https://youtu.be/abc"})
	if out.Err == nil {
		t.Fatal("expected error")
	}
	if records.lastStatus() != storage.DownloadFailed {
		t.Errorf("status = %q", records.lastStatus())
	}
}

func TestRunDiscardsCover(t *testing.T) {
	fin, _, _, _, _ := newTestFinalizer(t)
	cover := filepath.Join(t.TempDir(), "cover.jpg")
	if err := os.WriteFile(cover, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := fin.Run(context.Background(), Request{
		RecordID: 1,
		URL:      "https://youtu.be/abc",
		Meta:     audio.Metadata{CoverPath: cover},
	})
	if out.Err != nil {
		t.Fatalf("run: %v", out.Err)
	}
	if _, err := os.Stat(cover); !os.IsNotExist(err) {
		t.Error("cover temp file not cleaned up")
	}
}

func TestRunOversizeFileIsNotUploadable(t *testing.T) {
	fin, _, _, _, _ := newTestFinalizer(t)
	fin.UploadLimitMB = 0

	out := fin.Run(context.Background(), Request{RecordID: 1, URL: "https://youtu.be/abc"})
	if out.Err != nil {
		t.Fatalf("run: %v", out.Err)
	}
	if out.Uploadable {
		t.Error("file above the limit must not be uploadable")
	}
}
