package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"180s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	// Remote inference backend (the gateway's upstream).
	BackendURL      string        `env:"BACKEND_URL" envDefault:"http://localhost:5000"`
	BackendBasePath string        `env:"BACKEND_BASE_PATH" envDefault:"/api"`
	BackendTimeout  time.Duration `env:"BACKEND_TIMEOUT" envDefault:"120s"`

	// ExtractProvider selects the extraction backend: "gateway" or "openai".
	ExtractProvider string `env:"EXTRACT_PROVIDER" envDefault:"gateway"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	UploadDir       string        `env:"UPLOAD_DIR" envDefault:"./uploads"`
	UploadRetention time.Duration `env:"UPLOAD_RETENTION" envDefault:"24h"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"1h"`

	// Optional submission history (disabled when empty).
	DatabaseURL string `env:"DATABASE_URL"`

	// Optional drop-directory ingest (disabled when empty).
	WatchDir string `env:"WATCH_DIR"`

	S3 S3Config `envPrefix:"S3_"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3-compatible upload store.
type S3Config struct {
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Bucket    string `env:"BUCKET"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX"`
}

// Enabled reports whether the S3 store is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile    string
	HTTPAddr   string
	LogLevel   string
	BackendURL string
	UploadDir  string
	WatchDir   string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file > defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.BackendURL != "" {
		cfg.BackendURL = overrides.BackendURL
	}
	if overrides.UploadDir != "" {
		cfg.UploadDir = overrides.UploadDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.BackendURL = strings.TrimRight(c.BackendURL, "/")

	// Base path "" and "/" both mean bare paths (/audio-to-text).
	c.BackendBasePath = strings.TrimRight(c.BackendBasePath, "/")
	if c.BackendBasePath != "" && !strings.HasPrefix(c.BackendBasePath, "/") {
		c.BackendBasePath = "/" + c.BackendBasePath
	}

	switch c.ExtractProvider {
	case "gateway", "openai":
	default:
		return fmt.Errorf("EXTRACT_PROVIDER must be \"gateway\" or \"openai\", got %q", c.ExtractProvider)
	}
	if c.ExtractProvider == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("EXTRACT_PROVIDER=openai requires OPENAI_API_KEY")
	}
	return nil
}
