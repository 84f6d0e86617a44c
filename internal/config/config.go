// Package config provides YAML-based configuration loading for Plandala.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Plandala configuration, loaded from plandala.yaml
// with environment overrides.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Upload     UploadConfig     `yaml:"upload"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Notify     NotifyConfig     `yaml:"notify"`
	Audit      AuditConfig      `yaml:"audit"`
}

// ConnectionConfig holds the six required connection parameters.
type ConnectionConfig struct {
	APIKey            string `yaml:"api_key"`
	AuthDomain        string `yaml:"auth_domain"`
	ProjectID         string `yaml:"project_id"`
	StorageBucket     string `yaml:"storage_bucket"`
	MessagingSenderID string `yaml:"messaging_sender_id"`
	AppID             string `yaml:"app_id"`
}

// DatabaseConfig selects and configures the document store backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// StorageConfig configures the on-disk blob store.
type StorageConfig struct {
	Root       string `yaml:"root"`
	BaseURL    string `yaml:"base_url"`
	QuotaBytes int64  `yaml:"quota_bytes"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// UploadConfig tunes the upload stall watchdog.
type UploadConfig struct {
	StallTimeout       time.Duration `yaml:"stall_timeout"`
	StallCheckInterval time.Duration `yaml:"stall_check_interval"`
}

// RealtimeConfig tunes change delivery. A zero PollInterval disables polling.
type RealtimeConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// NotifyConfig holds optional chat notification targets.
type NotifyConfig struct {
	Slack   ChatConfig `yaml:"slack"`
	Discord ChatConfig `yaml:"discord"`
}

// ChatConfig is a bot token and channel for one chat platform.
type ChatConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Enabled reports whether both token and channel are set.
func (c ChatConfig) Enabled() bool {
	return c.Token != "" && c.Channel != ""
}

// AuditConfig schedules the comment counter drift report.
type AuditConfig struct {
	Schedule string `yaml:"schedule"`
}

// MissingError names every required connection parameter that is unset.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("config: missing connection environment variables: %s", strings.Join(e.Keys, ", "))
}

// Environment variable names for values that may come from the environment.
const (
	EnvAPIKey            = "PLANDALA_API_KEY"
	EnvAuthDomain        = "PLANDALA_AUTH_DOMAIN"
	EnvProjectID         = "PLANDALA_PROJECT_ID"
	EnvStorageBucket     = "PLANDALA_STORAGE_BUCKET"
	EnvMessagingSenderID = "PLANDALA_MESSAGING_SENDER_ID"
	EnvAppID             = "PLANDALA_APP_ID"
	EnvDatabasePassword  = "PLANDALA_DATABASE_PASSWORD"
	EnvSlackToken        = "PLANDALA_SLACK_TOKEN"
	EnvDiscordToken      = "PLANDALA_DISCORD_TOKEN"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads an optional .env file next to the working directory, then the
// YAML config file at path, and returns a validated Config. A missing config
// file is not an error: everything can come from the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		data = b
	}
	return ParseWithEnv(data, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config, applying overrides
// from the process environment.
func Parse(data []byte) (*Config, error) {
	return ParseWithEnv(data, os.LookupEnv)
}

// ParseWithEnv is Parse with an explicit environment lookup.
func ParseWithEnv(data []byte, lookup LookupFunc) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if lookup != nil {
		cfg.applyEnv(lookup)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with non-empty environment values.
func (c *Config) applyEnv(lookup LookupFunc) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Connection.APIKey, EnvAPIKey)
	set(&c.Connection.AuthDomain, EnvAuthDomain)
	set(&c.Connection.ProjectID, EnvProjectID)
	set(&c.Connection.StorageBucket, EnvStorageBucket)
	set(&c.Connection.MessagingSenderID, EnvMessagingSenderID)
	set(&c.Connection.AppID, EnvAppID)
	set(&c.Database.Password, EnvDatabasePassword)
	set(&c.Notify.Slack.Token, EnvSlackToken)
	set(&c.Notify.Discord.Token, EnvDiscordToken)
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "plandala.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" && c.Connection.ProjectID != "" {
		c.Database.Name = c.Connection.ProjectID
	}
	if c.Storage.Root == "" {
		c.Storage.Root = "data/blobs"
	}
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = "/blobs"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Upload.StallTimeout == 0 {
		c.Upload.StallTimeout = 30 * time.Second
	}
	if c.Upload.StallCheckInterval == 0 {
		c.Upload.StallCheckInterval = 5 * time.Second
	}
	if c.Audit.Schedule == "" {
		c.Audit.Schedule = "0 3 * * *"
	}
}

// validate checks that all required fields are present and consistent.
// Missing connection parameters are reported as a *MissingError.
func (c *Config) validate() error {
	required := []struct {
		env, value string
	}{
		{EnvAPIKey, c.Connection.APIKey},
		{EnvAuthDomain, c.Connection.AuthDomain},
		{EnvProjectID, c.Connection.ProjectID},
		{EnvStorageBucket, c.Connection.StorageBucket},
		{EnvMessagingSenderID, c.Connection.MessagingSenderID},
		{EnvAppID, c.Connection.AppID},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}

	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port %d out of range", c.Database.Port))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Storage.QuotaBytes < 0 {
		errs = append(errs, "storage.quota_bytes must not be negative")
	}
	if c.Upload.StallTimeout < 0 || c.Upload.StallCheckInterval < 0 {
		errs = append(errs, "upload durations must not be negative")
	}
	if c.Upload.StallCheckInterval > c.Upload.StallTimeout {
		errs = append(errs, "upload.stall_check_interval must not exceed upload.stall_timeout")
	}
	if c.Realtime.PollInterval < 0 {
		errs = append(errs, "realtime.poll_interval must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// PublicConnection is the subset of connection parameters safe to hand to
// a front end.
func (c *Config) PublicConnection() map[string]string {
	return map[string]string{
		"authDomain":        c.Connection.AuthDomain,
		"projectId":         c.Connection.ProjectID,
		"storageBucket":     c.Connection.StorageBucket,
		"messagingSenderId": c.Connection.MessagingSenderID,
		"appId":             c.Connection.AppID,
	}
}
