package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read by Load when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for scout-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (session/JWT keys, passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8501"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Auth       AuthConfig       `yaml:"auth"`
	Admin      AdminConfig      `yaml:"admin"`
	Templates  TemplatesConfig  `yaml:"templates"`
}

// DatabaseConfig holds the embedded SQLite settings.
type DatabaseConfig struct {
	Path          string `yaml:"path" env:"DB_PATH" env-default:"data/scouting.db"`
	WAL           bool   `yaml:"wal" env:"DB_WAL" env-default:"true"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" env:"DB_BUSY_TIMEOUT_MS" env-default:"2000"`
	BusyRetries   int    `yaml:"busy_retries" env:"DB_BUSY_RETRIES" env-default:"5"`
	BusyBackoffMS int    `yaml:"busy_backoff_ms" env:"DB_BUSY_BACKOFF_MS" env-default:"25"`
}

// BusyBackoff returns the initial backoff between busy retries.
func (c *DatabaseConfig) BusyBackoff() time.Duration {
	return time.Duration(c.BusyBackoffMS) * time.Millisecond
}

// StorageConfig holds the on-disk locations for generated and uploaded files.
type StorageConfig struct {
	ExportDir     string `yaml:"export_dir" env:"EXPORT_DIR" env-default:"data/exports"`
	UploadDir     string `yaml:"upload_dir" env:"UPLOAD_BASE" env-default:"data/uploads"`
	MaxUploadMB   int    `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB" env-default:"50"`
	ThumbnailSize int    `yaml:"thumbnail_size" env:"THUMBNAIL_SIZE" env-default:"320"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *StorageConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// SummarizerConfig points at a local OpenAI-compatible model server (Ollama by default).
type SummarizerConfig struct {
	Enabled        bool   `yaml:"enabled" env:"SUMMARIZER_ENABLED" env-default:"true"`
	BaseURL        string `yaml:"base_url" env:"SUMMARIZER_URL" env-default:"http://localhost:11434/v1"`
	Model          string `yaml:"model" env:"OLLAMA_MODEL" env-default:"llama3"`
	APIKey         string `yaml:"-" env:"SUMMARIZER_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"SUMMARIZER_TIMEOUT_SECONDS" env-default:"120"`
	MaxNoteRunes   int    `yaml:"max_note_runes" env:"SUMMARIZER_MAX_NOTE_RUNES" env-default:"8000"`
}

// Timeout returns the per-request timeout for the summarizer.
func (c *SummarizerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ScraperConfig controls the BeSoccer scraper.
type ScraperConfig struct {
	BaseURL         string `yaml:"base_url" env:"SCRAPER_BASE_URL" env-default:"https://es.besoccer.com"`
	UserAgent       string `yaml:"user_agent" env:"SCRAPER_USER_AGENT" env-default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" env:"SCRAPER_TIMEOUT_SECONDS" env-default:"10"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes" env:"SCRAPER_CACHE_TTL_MINUTES" env-default:"10"`
	Retries         int    `yaml:"retries" env:"SCRAPER_RETRIES" env-default:"2"`
}

// AuthConfig holds session and token settings.
type AuthConfig struct {
	SessionSecret      string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML
	JWTSecret          string `yaml:"-" env:"JWT_SECRET"`     // Secret - not in YAML
	SessionMaxAgeHours int    `yaml:"session_max_age_hours" env:"SESSION_MAX_AGE_HOURS" env-default:"12"`
	TokenTTLHours      int    `yaml:"token_ttl_hours" env:"TOKEN_TTL_HOURS" env-default:"12"`
}

// TokenTTL returns the lifetime of issued access tokens.
func (c *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// AdminConfig is the account seeded on first start when no users exist.
type AdminConfig struct {
	Username string `yaml:"username" env:"ADMIN_USERNAME" env-default:"admin"`
	Password string `yaml:"-" env:"ADMIN_PASSWORD"` // Secret - not in YAML
}

// TemplatesConfig optionally points at a YAML file overriding the built-in report templates.
type TemplatesConfig struct {
	Path  string `yaml:"path" env:"TEMPLATES_PATH" env-default:""`
	Watch bool   `yaml:"watch" env:"TEMPLATES_WATCH" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultPath, version)
}

// LoadFrom reads configuration from path with environment variable overrides.
// A missing file is not an error: the configuration then comes from the environment alone.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	cfg.Summarizer.BaseURL = ResolveURLForDocker(cfg.Summarizer.BaseURL)

	return cfg, nil
}

// IsLocal reports whether the server runs in the local development environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "test"
}

// Validate checks values that cleanenv cannot express as tags.
// Outside local environments the session and token secrets are mandatory.
func (c *Config) Validate() error {
	if c.Port == "" || c.Port == "0" {
		return fmt.Errorf("port must be set")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must be set")
	}
	if c.Database.BusyRetries < 0 {
		return fmt.Errorf("database.busy_retries must not be negative")
	}
	if c.Storage.MaxUploadMB <= 0 {
		return fmt.Errorf("storage.max_upload_mb must be positive")
	}
	if c.Summarizer.MaxNoteRunes <= 0 {
		return fmt.Errorf("summarizer.max_note_runes must be positive")
	}

	if !c.IsLocal() {
		if c.Auth.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required outside local environments")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required outside local environments")
		}
	}

	return nil
}

// SessionSecret returns the configured session secret, or a fixed development
// value in local environments where none was set.
func (c *Config) SessionSecret() string {
	if c.Auth.SessionSecret != "" {
		return c.Auth.SessionSecret
	}
	return "scout-engine-local-session"
}

// JWTSecret returns the configured token signing secret, or a fixed development
// value in local environments where none was set.
func (c *Config) JWTSecret() string {
	if c.Auth.JWTSecret != "" {
		return c.Auth.JWTSecret
	}
	return "scout-engine-local-jwt"
}
