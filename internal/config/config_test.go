package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TASKBOARD_CONFIG", "LISTEN_ADDR", "PUBLIC_URL", "DATABASE_DRIVER", "DATABASE_URL",
		"JWT_SECRET", "BLOB_DIR", "TELEGRAM_TOKEN", "LOG_LEVEL", "LOG_FORMAT",
		"TOKEN_TTL", "UPLOAD_GRANT_TTL", "SWEEP_INTERVAL", "DIGEST_INTERVAL_HOURS", "DIGEST_AT", "MAX_UPLOAD_BYTES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultsWithSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.DatabaseURL != DefaultDatabaseURL {
		t.Fatalf("database = %q %q", cfg.DatabaseDriver, cfg.DatabaseURL)
	}
	if cfg.PublicURL != "http://localhost:8080" {
		t.Fatalf("PublicURL = %q", cfg.PublicURL)
	}
	if cfg.MaxUploadBytes != 5<<20 {
		t.Fatalf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.TelegramEnabled() {
		t.Fatalf("telegram should be disabled without a token")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	clearEnv(t)
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "taskboard.toml")
	data := `
listen_addr = ":9090"
public_url = "https://tasks.example.com/"
database_driver = "postgres"
database_url = "host=localhost dbname=tasks"
jwt_secret = "from-file"
upload_grant_ttl = "30m"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DIGEST_INTERVAL_HOURS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" || cfg.DatabaseDriver != "postgres" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.PublicURL != "https://tasks.example.com" {
		t.Fatalf("PublicURL = %q", cfg.PublicURL)
	}
	if cfg.JWTSecret != "from-env" {
		t.Fatalf("env should override file, got %q", cfg.JWTSecret)
	}
	if cfg.UploadGrantTTL != 30*time.Minute {
		t.Fatalf("UploadGrantTTL = %v", cfg.UploadGrantTTL)
	}
	if cfg.DigestInterval != 3*time.Hour {
		t.Fatalf("DigestInterval = %v", cfg.DigestInterval)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DATABASE_DRIVER", "oracle")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestLoad_DigestAt(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DIGEST_AT", "08:30")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DigestAt != "08:30" {
		t.Fatalf("DigestAt = %q", cfg.DigestAt)
	}

	t.Setenv("DIGEST_AT", "8.30am")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for malformed DIGEST_AT")
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 0},
		{"4", 4 * time.Hour},
		{"-1", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := parseInterval(tt.raw); got != tt.want {
			t.Errorf("parseInterval(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
