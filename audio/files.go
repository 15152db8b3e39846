package audio

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	forbiddenChars = regexp.MustCompile(`[<>:"/\\|?*[:cntrl:]]`)
	dotWhitespace  = regexp.MustCompile(`[.\s]+`)
)

// FallbackStem names a file whose requested name sanitized to nothing.
const FallbackStem = "downloaded_audio"

// SanitizeFilename strips characters that are unsafe in filenames and
// collapses dot/whitespace runs into single spaces. Applying it twice
// gives the same result as applying it once.
func SanitizeFilename(name string) string {
	s := forbiddenChars.ReplaceAllString(name, "")
	s = dotWhitespace.ReplaceAllString(s, " ")
	return strings.Trim(s, " .")
}

// UniqueName appends a numeric suffix to stem until exists reports
// false for "<stem>.<ext>". ext is passed without the leading dot.
func UniqueName(stem, ext string, exists func(string) bool) string {
	candidate := stem + "." + ext
	for n := 1; exists(candidate); n++ {
		candidate = stem + "_" + strconv.Itoa(n) + "." + ext
	}
	return candidate
}

// RenameTo moves path into dir under the sanitized custom name,
// resolving collisions with a numeric suffix. It returns the final path.
func RenameTo(path, dir, customName string) (string, error) {
	stem := SanitizeFilename(customName)
	if stem == "" {
		stem = FallbackStem
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		ext = "mp3"
	}
	name := UniqueName(stem, ext, func(candidate string) bool {
		_, err := os.Stat(filepath.Join(dir, candidate))
		return err == nil
	})
	target := filepath.Join(dir, name)
	if target == path {
		return path, nil
	}
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// FileSizeMB returns the size of path in megabytes.
func FileSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / (1024 * 1024), nil
}
