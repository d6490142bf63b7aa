package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds everything the daemon and CLI need to run. Values come from
// built-in defaults, then an optional YAML config file, then environment
// variables, in that order of precedence.
type Config struct {
	AppEnv string
	Port   string

	DataDir      string
	DatabasePath string
	ArtifactDir  string

	APIBaseURL     string
	APIKey         string
	DefaultModel   string
	DefaultSeconds int
	DefaultSize    string
	RequestTimeout time.Duration

	PollInterval    time.Duration
	PollMaxBackoff  int
	PollConcurrency int
	ListPageSize    int
	RefreshPageCap  int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// fileConfig mirrors the optional YAML config file.
type fileConfig struct {
	Env string `yaml:"env"`
	API struct {
		BaseURL               string `yaml:"base_url"`
		Model                 string `yaml:"model"`
		Seconds               int    `yaml:"seconds"`
		Size                  string `yaml:"size"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	} `yaml:"api"`
	Poll struct {
		IntervalSeconds      int `yaml:"interval_seconds"`
		MaxBackoffMultiplier int `yaml:"max_backoff_multiplier"`
		Concurrency          int `yaml:"concurrency"`
	} `yaml:"poll"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DataDir     string `yaml:"data_dir"`
		ArtifactDir string `yaml:"artifact_dir"`
	} `yaml:"storage"`
}

// LoadConfig loads configuration from the optional config file and the
// environment, applying defaults where needed. A missing config file is not
// an error; a malformed one is.
func LoadConfig() (*Config, error) {
	// Load .env if present. Missing files are fine.
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:           "development",
		Port:             "8787",
		APIBaseURL:       "https://api.openai.com/v1",
		DefaultModel:     "sora-2",
		DefaultSeconds:   4,
		DefaultSize:      "1280x720",
		RequestTimeout:   45 * time.Second,
		PollInterval:     2 * time.Second,
		PollMaxBackoff:   8,
		PollConcurrency:  10,
		ListPageSize:     50,
		RefreshPageCap:   20,
		HTTPReadTimeout:  15 * time.Second,
		HTTPWriteTimeout: 30 * time.Second,
		HTTPIdleTimeout:  60 * time.Second,
	}

	if path := configFilePath(); path != "" {
		if err := applyConfigFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataDir = getEnv("VIDGEN_DATA_DIR", cfg.DataDir)
	cfg.ArtifactDir = getEnv("VIDGEN_ARTIFACT_DIR", cfg.ArtifactDir)
	cfg.APIBaseURL = getEnv("VIDGEN_API_BASE_URL", cfg.APIBaseURL)
	cfg.APIKey = getEnv("VIDGEN_API_KEY", os.Getenv("OPENAI_API_KEY"))
	cfg.DefaultModel = getEnv("VIDGEN_MODEL", cfg.DefaultModel)
	cfg.DefaultSeconds = getEnvInt("VIDGEN_SECONDS", cfg.DefaultSeconds)
	cfg.DefaultSize = getEnv("VIDGEN_SIZE", cfg.DefaultSize)
	cfg.RequestTimeout = envSeconds("VIDGEN_REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeout)
	cfg.PollInterval = envSeconds("VIDGEN_POLL_INTERVAL_SECONDS", cfg.PollInterval)
	cfg.PollMaxBackoff = getEnvInt("VIDGEN_POLL_MAX_BACKOFF", cfg.PollMaxBackoff)
	cfg.PollConcurrency = getEnvInt("VIDGEN_POLL_CONCURRENCY", cfg.PollConcurrency)
	cfg.ListPageSize = getEnvInt("VIDGEN_LIST_PAGE_SIZE", cfg.ListPageSize)
	cfg.RefreshPageCap = getEnvInt("VIDGEN_REFRESH_PAGE_CAP", cfg.RefreshPageCap)
	cfg.HTTPReadTimeout = envSeconds("HTTP_READ_TIMEOUT_SECONDS", cfg.HTTPReadTimeout)
	cfg.HTTPWriteTimeout = envSeconds("HTTP_WRITE_TIMEOUT_SECONDS", cfg.HTTPWriteTimeout)
	cfg.HTTPIdleTimeout = envSeconds("HTTP_IDLE_TIMEOUT_SECONDS", cfg.HTTPIdleTimeout)

	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve user config dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "vidgen")
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "vidgen.db")
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = filepath.Join(cfg.DataDir, "artifacts")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollMaxBackoff < 1 {
		cfg.PollMaxBackoff = 8
	}
	if cfg.PollConcurrency < 1 {
		cfg.PollConcurrency = 10
	}
	if cfg.ListPageSize < 1 {
		cfg.ListPageSize = 50
	}
	if cfg.RefreshPageCap < 1 {
		cfg.RefreshPageCap = 20
	}

	return cfg, nil
}

// configFilePath resolves the optional YAML config file: the explicit
// VIDGEN_CONFIG path wins, otherwise the per-user default is used when it
// exists.
func configFilePath() string {
	if path := os.Getenv("VIDGEN_CONFIG"); path != "" {
		return path
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(base, "vidgen", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func applyConfigFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var fc fileConfig
	if err := yaml.NewDecoder(f).Decode(&fc); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}

	if fc.Env != "" {
		cfg.AppEnv = fc.Env
	}
	if fc.API.BaseURL != "" {
		cfg.APIBaseURL = fc.API.BaseURL
	}
	if fc.API.Model != "" {
		cfg.DefaultModel = fc.API.Model
	}
	if fc.API.Seconds > 0 {
		cfg.DefaultSeconds = fc.API.Seconds
	}
	if fc.API.Size != "" {
		cfg.DefaultSize = fc.API.Size
	}
	if fc.API.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(fc.API.RequestTimeoutSeconds) * time.Second
	}
	if fc.Poll.IntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(fc.Poll.IntervalSeconds) * time.Second
	}
	if fc.Poll.MaxBackoffMultiplier > 0 {
		cfg.PollMaxBackoff = fc.Poll.MaxBackoffMultiplier
	}
	if fc.Poll.Concurrency > 0 {
		cfg.PollConcurrency = fc.Poll.Concurrency
	}
	if fc.Server.Port != "" {
		cfg.Port = fc.Server.Port
	}
	if fc.Storage.DataDir != "" {
		cfg.DataDir = fc.Storage.DataDir
	}
	if fc.Storage.ArtifactDir != "" {
		cfg.ArtifactDir = fc.Storage.ArtifactDir
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}
