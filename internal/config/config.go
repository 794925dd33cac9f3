package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// BackendConfig describes the Fabric REST backend the gateway forwards to.
type BackendConfig struct {
	// BaseOrigin is the scheme://host[:port] of the backend, without a path.
	BaseOrigin string `yaml:"base_origin" envconfig:"BASE_ORIGIN"`

	// CandidatePaths are tried in order; the first one that does not answer
	// 404 wins. Deployments renamed the chat endpoint across versions.
	CandidatePaths []string `yaml:"candidate_paths" envconfig:"CANDIDATE_PATHS"`

	// ConnectTimeout bounds dialing a candidate.
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`

	// ResponseTimeout bounds the wait for response headers. Body streaming
	// is not limited.
	ResponseTimeout time.Duration `yaml:"response_timeout" envconfig:"RESPONSE_TIMEOUT"`
}

type TranscriptConfig struct {
	Provider  string   `yaml:"provider" envconfig:"PROVIDER"` // "api" | "player"
	Languages []string `yaml:"languages" envconfig:"LANGUAGES"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests" envconfig:"REQUESTS"`
	Window   time.Duration `yaml:"window" envconfig:"WINDOW"`
}

type Config struct {
	// Server
	Port     string `yaml:"port" envconfig:"PORT"`
	Env      string `yaml:"env" envconfig:"ENV"`
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// Redis (optional, shared rate limit counters)
	RedisURL string `yaml:"redis_url" envconfig:"REDIS_URL"`

	// Frontend origin allowed by CORS
	FrontendURL string `yaml:"frontend_url" envconfig:"FRONTEND_URL"`

	Backend    BackendConfig    `yaml:"backend" envconfig:"BACKEND"`
	Transcript TranscriptConfig `yaml:"transcript" envconfig:"TRANSCRIPT"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// EnvPrefix is prepended to every environment variable, e.g. GATEWAY_PORT.
const EnvPrefix = "GATEWAY"

var defaultCandidatePaths = []string{"/chat", "/api/chat"}

// Load reads configuration with priority env > YAML file > defaults.
// An empty path skips the file unless ./gateway.yaml exists.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	if path == "" {
		if _, err := os.Stat("gateway.yaml"); err == nil {
			path = "gateway.yaml"
		}
	}

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = getEnvOrDefault("PORT", "3000")
	}
	if c.Env == "" {
		c.Env = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:5173"
	}

	// FABRIC_BASE_URL is what older deployments export.
	if c.Backend.BaseOrigin == "" {
		c.Backend.BaseOrigin = getEnvOrDefault("FABRIC_BASE_URL", "http://localhost:8080")
	}
	if len(c.Backend.CandidatePaths) == 0 {
		c.Backend.CandidatePaths = append([]string(nil), defaultCandidatePaths...)
	}
	if c.Backend.ConnectTimeout <= 0 {
		c.Backend.ConnectTimeout = time.Duration(getEnvAsIntOrDefault("FABRIC_CONNECT_TIMEOUT_SECONDS", 10)) * time.Second
	}
	if c.Backend.ResponseTimeout <= 0 {
		c.Backend.ResponseTimeout = 120 * time.Second
	}

	if c.Transcript.Provider == "" {
		c.Transcript.Provider = "api"
	}
	if len(c.Transcript.Languages) == 0 {
		c.Transcript.Languages = []string{"en", "en-US", "en-GB"}
	}

	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = 60
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Minute
	}
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseOrigin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid backend base origin %q", c.Backend.BaseOrigin)
	}
	for _, p := range c.Backend.CandidatePaths {
		if !strings.HasPrefix(strings.TrimSpace(p), "/") {
			return fmt.Errorf("candidate path %q must start with /", p)
		}
	}
	switch c.Transcript.Provider {
	case "api", "player":
	default:
		return fmt.Errorf("unknown transcript provider %q", c.Transcript.Provider)
	}
	return nil
}

// IsProduction reports whether logs should be machine readable.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
