package audio

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bogem/id3v2/v2"

	"github.com/m3rciful/aiobot/core/logger"
)

// Tagger writes tag fields into a local audio file.
type Tagger interface {
	Apply(path string, meta Metadata) error
}

// ID3Tagger applies ID3v2 frames to mp3 files, including an embedded
// front-cover picture when CoverPath is set.
type ID3Tagger struct{}

// Apply writes the non-empty fields of meta into the file at path.
func (ID3Tagger) Apply(path string, meta Metadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tag: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if meta.Artist != "" {
		tag.SetArtist(meta.Artist)
	}
	if meta.Title != "" {
		tag.SetTitle(meta.Title)
	}
	if meta.Album != "" {
		tag.SetAlbum(meta.Album)
	}
	if meta.CoverPath != "" {
		// Cover art is best effort end to end; an unreadable file must
		// not fail the tag write.
		if err := attachCover(tag, meta.CoverPath); err != nil {
			logger.Warn(logger.Background(), "audio", "cover_attach_failed",
				slog.String("cover", meta.CoverPath),
				slog.String("err", err.Error()),
			)
		}
	}
	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tag: %w", err)
	}
	return nil
}

func attachCover(tag *id3v2.Tag, coverPath string) error {
	art, err := os.ReadFile(coverPath)
	if err != nil {
		return fmt.Errorf("read cover: %w", err)
	}
	mime := http.DetectContentType(art)
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    mime,
		PictureType: id3v2.PTFrontCover,
		Description: "Front cover",
		Picture:     art,
	})
	return nil
}
