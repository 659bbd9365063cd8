package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config keeps runtime settings for the service.
type Config struct {
	ListenAddr     string        `toml:"listen_addr"`
	PublicURL      string        `toml:"public_url"`
	DatabaseDriver string        `toml:"database_driver"`
	DatabaseURL    string        `toml:"database_url"`
	JWTSecret      string        `toml:"jwt_secret"`
	TokenTTL       time.Duration `toml:"token_ttl"`
	BlobDir        string        `toml:"blob_dir"`
	UploadGrantTTL time.Duration `toml:"upload_grant_ttl"`
	MaxUploadBytes int64         `toml:"max_upload_bytes"`
	TelegramToken  string        `toml:"telegram_token"`
	DigestInterval time.Duration `toml:"digest_interval"`
	DigestAt       string        `toml:"digest_at"`
	SweepInterval  time.Duration `toml:"sweep_interval"`
	LogLevel       string        `toml:"log_level"`
	LogFormat      string        `toml:"log_format"`
}

const (
	DefaultListenAddr     = ":8080"
	DefaultDatabaseDriver = "sqlite"
	DefaultDatabaseURL    = "data/taskboard.db"
	DefaultBlobDir        = "data/blobs"
	DefaultTokenTTL       = 72 * time.Hour
	DefaultUploadGrantTTL = time.Hour
	DefaultMaxUploadBytes = 5 << 20
	DefaultDigestInterval = 5 * time.Hour
	DefaultSweepInterval  = 15 * time.Minute
)

// Defaults returns a Config with every optional field populated.
func Defaults() Config {
	return Config{
		ListenAddr:     DefaultListenAddr,
		DatabaseDriver: DefaultDatabaseDriver,
		DatabaseURL:    DefaultDatabaseURL,
		TokenTTL:       DefaultTokenTTL,
		BlobDir:        DefaultBlobDir,
		UploadGrantTTL: DefaultUploadGrantTTL,
		MaxUploadBytes: DefaultMaxUploadBytes,
		DigestInterval: DefaultDigestInterval,
		SweepInterval:  DefaultSweepInterval,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load builds the configuration from defaults, an optional TOML file and
// environment variables, in that order of precedence (later wins).
// When path is empty TASKBOARD_CONFIG is consulted.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("TASKBOARD_CONFIG"))
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	return cfg, cfg.Validate()
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.UploadGrantTTL <= 0 {
		return errors.New("upload grant ttl must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	if c.DigestAt != "" {
		if _, err := time.Parse("15:04", c.DigestAt); err != nil {
			return fmt.Errorf("digest_at must be HH:MM: %q", c.DigestAt)
		}
	}
	return nil
}

// TelegramEnabled reports whether the chat front end should start.
func (c Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func applyEnv(cfg *Config) error {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.PublicURL, "PUBLIC_URL")
	setString(&cfg.DatabaseDriver, "DATABASE_DRIVER")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.BlobDir, "BLOB_DIR")
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.DigestAt, "DIGEST_AT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	if err := setDuration(&cfg.TokenTTL, "TOKEN_TTL"); err != nil {
		return err
	}
	if err := setDuration(&cfg.UploadGrantTTL, "UPLOAD_GRANT_TTL"); err != nil {
		return err
	}
	if err := setDuration(&cfg.SweepInterval, "SWEEP_INTERVAL"); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("DIGEST_INTERVAL_HOURS")); raw != "" {
		cfg.DigestInterval = parseInterval(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.MaxUploadBytes = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// parseInterval reads a whole number of hours. Zero or garbage disables the job.
func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
