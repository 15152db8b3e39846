package audio

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Source identifies the platform an audio URL points at.
type Source string

const (
	// SourceYouTube covers youtube.com/watch and youtu.be links.
	SourceYouTube Source = "youtube"
	// SourceSoundCloud covers soundcloud.com track links.
	SourceSoundCloud Source = "soundcloud"
)

// Metadata carries the tag fields applied to an extracted track.
// Empty strings mean "not provided".
type Metadata struct {
	Artist    string
	Title     string
	Album     string
	CoverPath string
}

// Complete reports whether all tag fields are filled.
func (m Metadata) Complete() bool {
	return m.Artist != "" && m.Title != "" && m.Album != ""
}

// Merge overlays probed platform fields under user-supplied fields.
// User values always win; probed values only fill gaps. Merging the
// same probed metadata twice yields the same result.
func Merge(user, probed Metadata) Metadata {
	out := user
	if out.Artist == "" {
		out.Artist = probed.Artist
	}
	if out.Title == "" {
		out.Title = probed.Title
	}
	if out.Album == "" {
		out.Album = probed.Album
	}
	if out.CoverPath == "" {
		out.CoverPath = probed.CoverPath
	}
	return out
}

// DetectSource validates a URL against the supported platform allow-list.
func DetectSource(raw string) (Source, bool) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case (host == "youtube.com" || host == "www.youtube.com" || host == "m.youtube.com") && u.Path == "/watch":
		return SourceYouTube, true
	case host == "youtu.be" && len(strings.Trim(u.Path, "/")) > 0:
		return SourceYouTube, true
	case (host == "soundcloud.com" || host == "www.soundcloud.com" || host == "m.soundcloud.com") && len(strings.Trim(u.Path, "/")) > 0:
		return SourceSoundCloud, true
	}
	return "", false
}

// probePayload is the subset of the extractor's JSON dump we care about.
type probePayload struct {
	Title    string `json:"title"`
	Uploader string `json:"uploader"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
}

// normalizeProbe maps a raw extractor payload onto Metadata, per source.
// YouTube exposes music metadata for official tracks; SoundCloud only
// carries the uploader name and never an album.
func normalizeProbe(src Source, data []byte) (Metadata, error) {
	var p probePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Metadata{}, fmt.Errorf("decode probe payload: %w", err)
	}
	switch src {
	case SourceSoundCloud:
		return Metadata{
			Artist: strings.TrimSpace(p.Uploader),
			Title:  strings.TrimSpace(p.Title),
		}, nil
	default:
		artist := strings.TrimSpace(p.Artist)
		if artist == "" {
			artist = strings.TrimSpace(p.Uploader)
		}
		return Metadata{
			Artist: artist,
			Title:  strings.TrimSpace(p.Title),
			Album:  strings.TrimSpace(p.Album),
		}, nil
	}
}
