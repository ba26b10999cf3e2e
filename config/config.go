// Package config loads the YAML configuration for the twitchcred CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses from human-friendly strings ("500ms") or bare numeric
// seconds, matching the config duration idiom used elsewhere in this
// codebase's YAML-backed configs.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		d.Duration = time.Duration(seconds) * time.Second
		return nil
	}
	var text string
	if err := value.Decode(&text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	return errors.New("config: invalid duration format")
}

// StorageConfig selects and configures the credential store variant.
type StorageConfig struct {
	// Type is one of "static", "memory", "file", "encrypted-file".
	Type string `yaml:"type"`
	Path string `yaml:"path"`

	// EncryptionPassphrase is only used when Type is "encrypted-file".
	EncryptionPassphrase string `yaml:"encryption_passphrase"`
}

// Config is the top-level twitchcred configuration document.
type Config struct {
	LogLevel string `yaml:"log_level"`

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`

	Storage StorageConfig `yaml:"storage"`

	RefreshPadding Duration `yaml:"refresh_padding"`
	ExpiryAge      Duration `yaml:"expiry_age"`

	IdentityService IdentityServiceConfig `yaml:"identity_service"`
}

// IdentityServiceConfig selects and configures the IdentityService
// collaborator implementation.
type IdentityServiceConfig struct {
	// Type is "http" (the default, a hand-rolled form-POST client) or
	// "oauth2" (delegates token refresh to golang.org/x/oauth2's
	// TokenSource instead).
	Type string `yaml:"type"`

	TokenURL     string  `yaml:"token_url"`
	ValidateURL  string  `yaml:"validate_url"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the minimum shape needed to construct a Provider.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("config: client_id is required")
	}
	switch c.Storage.Type {
	case "", "static", "memory":
		// in-memory variants need no extra config
	case "file", "encrypted-file":
		if c.Storage.Path == "" {
			return errors.New("config: storage.path is required for file-backed storage")
		}
		if c.Storage.Type == "encrypted-file" && c.Storage.EncryptionPassphrase == "" {
			return errors.New("config: storage.encryption_passphrase is required for encrypted-file storage")
		}
	default:
		return fmt.Errorf("config: unknown storage type %q", c.Storage.Type)
	}
	switch c.IdentityService.Type {
	case "", "http", "oauth2":
	default:
		return fmt.Errorf("config: unknown identity_service type %q", c.IdentityService.Type)
	}
	return nil
}
