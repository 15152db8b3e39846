package audio

import (
	"fmt"
	"os"
	"strings"
)

// Config holds settings for the extraction and tagging pipeline.
type Config struct {
	OutputDirectory string `yaml:"output_directory" envconfig:"OUTPUT_DIRECTORY"`
	Quality         string `yaml:"quality" envconfig:"AUDIO_QUALITY"`
	YTDLPPath       string `yaml:"ytdlp_path" envconfig:"YTDLP_PATH"`
	FFmpegPath      string `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	// UploadLimitMB bounds direct uploads; larger files are reported by path.
	UploadLimitMB int `yaml:"upload_limit_mb" envconfig:"UPLOAD_LIMIT_MB"`
}

// Normalize fills defaults and validates the configuration.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil audio config")
	}
	if strings.TrimSpace(cfg.OutputDirectory) == "" {
		cfg.OutputDirectory = "./downloads"
	}
	if strings.TrimSpace(cfg.Quality) == "" {
		cfg.Quality = "192K"
	}
	if strings.TrimSpace(cfg.YTDLPPath) == "" {
		cfg.YTDLPPath = "yt-dlp"
	}
	if strings.TrimSpace(cfg.FFmpegPath) == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.UploadLimitMB <= 0 {
		cfg.UploadLimitMB = 50
	}
	return nil
}

// EnsureOutputDirectory creates the output directory if missing.
func (c Config) EnsureOutputDirectory() error {
	return os.MkdirAll(c.OutputDirectory, 0o755)
}
