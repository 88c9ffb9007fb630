// Package config loads the application configuration: the shared core
// settings plus the account-manager specific sections.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/pouyakhodadust-eng/telegram-account-manager/core/config"
	coredatabase "github.com/pouyakhodadust-eng/telegram-account-manager/core/database"
)

// StorageConfig locates the artifact directories.
type StorageConfig struct {
	SessionsDir string `yaml:"sessions_dir" envconfig:"STORAGE_SESSIONS_DIR"`
	ExportsDir  string `yaml:"exports_dir" envconfig:"STORAGE_EXPORTS_DIR"`
}

// AuthBridgeConfig points at the external phone-login service.
type AuthBridgeConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"AUTH_BRIDGE_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"AUTH_BRIDGE_TIMEOUT_SECONDS"`
}

// WhitelistConfig controls the access gate.
type WhitelistConfig struct {
	Enabled  bool    `yaml:"enabled" envconfig:"WHITELIST_ENABLED"`
	File     string  `yaml:"file" envconfig:"WHITELIST_FILE"`
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"WHITELIST_ADMIN_IDS"`
}

// OnboardingConfig tunes the add-account conversation.
type OnboardingConfig struct {
	MaxRetries         int `yaml:"max_retries" envconfig:"ONBOARDING_MAX_RETRIES"`
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes" envconfig:"ONBOARDING_IDLE_TIMEOUT_MINUTES"`
	// Manifest adds a stats.txt entry to export archives.
	ExportManifest bool `yaml:"export_manifest" envconfig:"EXPORT_MANIFEST"`
}

// IdleTimeout returns the configured idle window.
func (c OnboardingConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// Config is the full application configuration.
type Config struct {
	Core       coreconfig.Config   `yaml:",inline"`
	Database   coredatabase.Config `yaml:"database"`
	Storage    StorageConfig       `yaml:"storage"`
	AuthBridge AuthBridgeConfig    `yaml:"auth_bridge"`
	Whitelist  WhitelistConfig     `yaml:"whitelist"`
	Onboarding OnboardingConfig    `yaml:"onboarding"`
}

// CoreConfig exposes the embedded core configuration for the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Core }

// Load reads the YAML file, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
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
	if strings.TrimSpace(cfg.Storage.SessionsDir) == "" {
		cfg.Storage.SessionsDir = "data/sessions"
	}
	if strings.TrimSpace(cfg.Storage.ExportsDir) == "" {
		cfg.Storage.ExportsDir = "data/exports"
	}
	if strings.TrimSpace(cfg.AuthBridge.BaseURL) == "" {
		return fmt.Errorf("auth_bridge.base_url is required")
	}
	if cfg.AuthBridge.TimeoutSeconds <= 0 {
		cfg.AuthBridge.TimeoutSeconds = 30
	}
	if cfg.Onboarding.MaxRetries <= 0 {
		cfg.Onboarding.MaxRetries = 3
	}
	if cfg.Onboarding.IdleTimeoutMinutes <= 0 {
		cfg.Onboarding.IdleTimeoutMinutes = 10
	}
	return nil
}
