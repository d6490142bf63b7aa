package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// resetEnv clears every variable LoadConfig reads so tests see only what
// they set themselves. Pointing VIDGEN_CONFIG at a missing file keeps a
// developer's real config out of the run.
func resetEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "PORT",
		"VIDGEN_DATA_DIR", "VIDGEN_ARTIFACT_DIR",
		"VIDGEN_API_BASE_URL", "VIDGEN_API_KEY", "OPENAI_API_KEY",
		"VIDGEN_MODEL", "VIDGEN_SECONDS", "VIDGEN_SIZE",
		"VIDGEN_REQUEST_TIMEOUT_SECONDS",
		"VIDGEN_POLL_INTERVAL_SECONDS", "VIDGEN_POLL_MAX_BACKOFF",
		"VIDGEN_POLL_CONCURRENCY", "VIDGEN_LIST_PAGE_SIZE",
		"VIDGEN_REFRESH_PAGE_CAP",
		"HTTP_READ_TIMEOUT_SECONDS", "HTTP_WRITE_TIMEOUT_SECONDS",
		"HTTP_IDLE_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("VIDGEN_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
}

func TestLoadConfigDefaults(t *testing.T) {
	resetEnv(t)
	dataDir := t.TempDir()
	t.Setenv("VIDGEN_DATA_DIR", dataDir)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8787" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "8787")
	}
	if cfg.APIBaseURL != "https://api.openai.com/v1" {
		t.Fatalf("APIBaseURL mismatch: got %q", cfg.APIBaseURL)
	}
	if cfg.DefaultModel != "sora-2" {
		t.Fatalf("DefaultModel mismatch: got %q want %q", cfg.DefaultModel, "sora-2")
	}
	if cfg.DefaultSeconds != 4 {
		t.Fatalf("DefaultSeconds mismatch: got %d want 4", cfg.DefaultSeconds)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("PollInterval mismatch: got %v want 2s", cfg.PollInterval)
	}
	if cfg.PollMaxBackoff != 8 {
		t.Fatalf("PollMaxBackoff mismatch: got %d want 8", cfg.PollMaxBackoff)
	}
	if cfg.PollConcurrency != 10 {
		t.Fatalf("PollConcurrency mismatch: got %d want 10", cfg.PollConcurrency)
	}
	if want := filepath.Join(dataDir, "vidgen.db"); cfg.DatabasePath != want {
		t.Fatalf("DatabasePath mismatch: got %q want %q", cfg.DatabasePath, want)
	}
	if want := filepath.Join(dataDir, "artifacts"); cfg.ArtifactDir != want {
		t.Fatalf("ArtifactDir mismatch: got %q want %q", cfg.ArtifactDir, want)
	}
}

func TestLoadConfigReadsConfigFile(t *testing.T) {
	resetEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `env: production
api:
  model: sora-2-pro
  seconds: 8
  size: 1792x1024
poll:
  interval_seconds: 5
  concurrency: 3
server:
  port: "9191"
storage:
  data_dir: ` + dir + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("VIDGEN_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AppEnv != "production" {
		t.Fatalf("AppEnv mismatch: got %q want %q", cfg.AppEnv, "production")
	}
	if cfg.DefaultModel != "sora-2-pro" {
		t.Fatalf("DefaultModel mismatch: got %q", cfg.DefaultModel)
	}
	if cfg.DefaultSeconds != 8 {
		t.Fatalf("DefaultSeconds mismatch: got %d want 8", cfg.DefaultSeconds)
	}
	if cfg.DefaultSize != "1792x1024" {
		t.Fatalf("DefaultSize mismatch: got %q", cfg.DefaultSize)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("PollInterval mismatch: got %v want 5s", cfg.PollInterval)
	}
	if cfg.PollConcurrency != 3 {
		t.Fatalf("PollConcurrency mismatch: got %d want 3", cfg.PollConcurrency)
	}
	if cfg.Port != "9191" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "9191")
	}
	if cfg.DataDir != dir {
		t.Fatalf("DataDir mismatch: got %q want %q", cfg.DataDir, dir)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	resetEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `api:
  model: sora-2-pro
server:
  port: "9191"
storage:
  data_dir: ` + dir + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("VIDGEN_CONFIG", path)
	t.Setenv("PORT", "7070")
	t.Setenv("VIDGEN_MODEL", "sora-2")
	t.Setenv("VIDGEN_POLL_INTERVAL_SECONDS", "7")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "7070")
	}
	if cfg.DefaultModel != "sora-2" {
		t.Fatalf("DefaultModel mismatch: got %q want %q", cfg.DefaultModel, "sora-2")
	}
	if cfg.PollInterval != 7*time.Second {
		t.Fatalf("PollInterval mismatch: got %v want 7s", cfg.PollInterval)
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	resetEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api: [not a mapping"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("VIDGEN_CONFIG", path)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for malformed config file, got nil")
	}
}

func TestLoadConfigAPIKeyFallsBackToOpenAI(t *testing.T) {
	resetEnv(t)
	t.Setenv("VIDGEN_DATA_DIR", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.APIKey != "sk-openai" {
		t.Fatalf("APIKey mismatch: got %q want %q", cfg.APIKey, "sk-openai")
	}

	t.Setenv("VIDGEN_API_KEY", "sk-vidgen")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.APIKey != "sk-vidgen" {
		t.Fatalf("APIKey mismatch: got %q want %q", cfg.APIKey, "sk-vidgen")
	}
}

func TestLoadConfigClampsNonPositiveTunables(t *testing.T) {
	resetEnv(t)
	t.Setenv("VIDGEN_DATA_DIR", t.TempDir())
	t.Setenv("VIDGEN_POLL_CONCURRENCY", "0")
	t.Setenv("VIDGEN_POLL_MAX_BACKOFF", "-1")
	t.Setenv("VIDGEN_LIST_PAGE_SIZE", "0")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PollConcurrency != 10 {
		t.Fatalf("PollConcurrency not clamped: got %d want 10", cfg.PollConcurrency)
	}
	if cfg.PollMaxBackoff != 8 {
		t.Fatalf("PollMaxBackoff not clamped: got %d want 8", cfg.PollMaxBackoff)
	}
	if cfg.ListPageSize != 50 {
		t.Fatalf("ListPageSize not clamped: got %d want 50", cfg.ListPageSize)
	}
}
