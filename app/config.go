// Package app assembles the bot: configuration, infrastructure wiring,
// command registration and the conversational flow dispatcher.
package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/aiobot/audio"
	coreconfig "github.com/m3rciful/aiobot/core/config"
	coredatabase "github.com/m3rciful/aiobot/core/database"
)

// VaultConfig holds the credential store settings.
type VaultConfig struct {
	// EncryptionKey is the base64 fernet key protecting stored passwords.
	EncryptionKey string `yaml:"encryption_key" envconfig:"VAULT_ENCRYPTION_KEY"`
	// RevealTTLSeconds is how long a revealed credential stays in chat.
	RevealTTLSeconds int `yaml:"reveal_ttl_seconds" envconfig:"VAULT_REVEAL_TTL_SECONDS"`
}

// SessionConfig holds the inactivity deadlines of the two flows.
type SessionConfig struct {
	DownloadTimeoutSeconds int `yaml:"download_timeout_seconds" envconfig:"SESSION_DOWNLOAD_TIMEOUT_SECONDS"`
	VaultTimeoutSeconds    int `yaml:"vault_timeout_seconds" envconfig:"SESSION_VAULT_TIMEOUT_SECONDS"`
}

// HealthConfig holds the liveness endpoint settings.
type HealthConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

// Config aggregates core and bot-specific configuration.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Audio    audio.Config        `yaml:"audio"`
	Vault    VaultConfig         `yaml:"vault"`
	Session  SessionConfig       `yaml:"session"`
	Health   HealthConfig        `yaml:"health"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// DownloadTimeout returns the download flow inactivity deadline.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Session.DownloadTimeoutSeconds) * time.Second
}

// VaultTimeout returns the vault flow inactivity deadline.
func (c *Config) VaultTimeout() time.Duration {
	return time.Duration(c.Session.VaultTimeoutSeconds) * time.Second
}

// RevealTTL returns how long revealed credentials stay in chat.
func (c *Config) RevealTTL() time.Duration {
	return time.Duration(c.Vault.RevealTTLSeconds) * time.Second
}

// LoadConfig reads configuration from a YAML file and environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(cfg *Config) error {
	if strings.TrimSpace(cfg.Vault.EncryptionKey) == "" {
		return fmt.Errorf("vault.encryption_key is required")
	}
	if cfg.Vault.RevealTTLSeconds <= 0 {
		cfg.Vault.RevealTTLSeconds = 60
	}
	if cfg.Session.DownloadTimeoutSeconds <= 0 {
		cfg.Session.DownloadTimeoutSeconds = 300
	}
	if cfg.Session.VaultTimeoutSeconds <= 0 {
		cfg.Session.VaultTimeoutSeconds = 120
	}
	if strings.TrimSpace(cfg.Health.Listen) == "" {
		cfg.Health.Listen = ":8080"
	}
	return audio.Normalize(&cfg.Audio)
}
