// Package config resolves the gateway settings. Every setting is a flag whose
// default comes from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Backend names.
const (
	BackendDify   = "dify"
	BackendGemini = "gemini"
)

// DefaultCORSOrigin is used when neither the flag nor CORS_ORIGIN is set.
const DefaultCORSOrigin = "http://localhost:3000"

type Config struct {
	// Backend
	Backend        string
	BackendModel   string
	DifyBaseURL    string
	DifyAPIKey     string
	DifyProxyURL   string
	DifyStreaming  bool
	DefaultUser    string
	GeminiAPIKey   string
	GeminiBaseURL  string
	RequestTimeout time.Duration

	// HTTP surface
	Host           string
	Port           int
	CORSOrigin     string
	ModelsFile     string
	MetricsEnabled bool

	LogLevel  string
	LogFormat string

	// A2A
	A2AEnabled bool
	A2APort    int
	AgentName  string
	AgentDesc  string

	envErrs []error
}

// Load registers every setting on fs. The returned Config is populated once
// fs has been parsed.
func Load(fs *pflag.FlagSet) *Config {
	cfg := &Config{}

	fs.StringVar(&cfg.Backend, "backend", getEnv("BACKEND", BackendDify), "Conversational backend: dify or gemini")
	fs.StringVar(&cfg.BackendModel, "model", getEnv("BACKEND_MODEL", ""), "Model used when a request names none (default depends on the backend)")
	fs.StringVar(&cfg.DifyBaseURL, "dify-base-url", getEnv("DIFY_BASE_URL", "http://localhost"), "Dify instance base URL or full endpoint URL")
	fs.StringVar(&cfg.DifyAPIKey, "dify-api-key", getEnv("DIFY_API_KEY", ""), "Dify app API key")
	fs.StringVar(&cfg.DifyProxyURL, "dify-proxy-url", getEnv("DIFY_PROXY_URL", ""), "HTTP/HTTPS proxy URL for Dify requests (e.g. http://proxy:8080)")
	fs.BoolVar(&cfg.DifyStreaming, "dify-streaming", getEnvBool("DIFY_STREAMING", true), "Allow streaming sessions against the Dify app")
	fs.StringVar(&cfg.DefaultUser, "default-user", getEnv("DEFAULT_USER", "dify-agent"), "User identity for backend sessions")
	fs.StringVar(&cfg.GeminiAPIKey, "gemini-api-key", getEnv("GEMINI_API_KEY", ""), "Gemini API key")
	fs.StringVar(&cfg.GeminiBaseURL, "gemini-base-url", getEnv("GEMINI_BASE_URL", ""), "Gemini API endpoint override")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.getEnvDuration("REQUEST_TIMEOUT", 120*time.Second), "Backend HTTP round-trip timeout")

	fs.StringVar(&cfg.Host, "host", getEnv("HOST", "localhost"), "Bind host")
	fs.IntVar(&cfg.Port, "port", cfg.getEnvInt("PORT", 3000), "Bind port (1-65535)")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", getEnv("CORS_ORIGIN", DefaultCORSOrigin), "Allowed CORS origin (URL or *)")
	fs.StringVar(&cfg.ModelsFile, "models-file", getEnv("MODELS_FILE", ""), "YAML model catalog served when the backend cannot list models")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", getEnvBool("METRICS_ENABLED", true), "Expose Prometheus metrics on /metrics")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")

	fs.BoolVar(&cfg.A2AEnabled, "a2a", getEnvBool("A2A_ENABLED", false), "Enable A2A server alongside the gateway")
	fs.IntVar(&cfg.A2APort, "a2a-port", cfg.getEnvInt("A2A_PORT", 8000), "A2A server listen port")
	fs.StringVar(&cfg.AgentName, "agent-name", getEnv("AGENT_NAME", "claude-gateway"), "A2A AgentCard name")
	fs.StringVar(&cfg.AgentDesc, "agent-desc", getEnv("AGENT_DESC", "Conversational backend exposed via A2A protocol"), "A2A AgentCard description")

	return cfg
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.envErrs...)

	if !validPort(c.Port) {
		errs = append(errs, fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port))
	}
	if c.A2AEnabled && !validPort(c.A2APort) {
		errs = append(errs, fmt.Errorf("invalid a2a port %d: must be between 1 and 65535", c.A2APort))
	}
	if err := validateOrigin(c.CORSOrigin); err != nil {
		errs = append(errs, err)
	}

	switch c.Backend {
	case BackendDify:
		if c.DifyAPIKey == "" {
			errs = append(errs, errors.New("dify backend requires DIFY_API_KEY"))
		}
		if _, err := url.ParseRequestURI(c.DifyBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid dify base url %q: %w", c.DifyBaseURL, err))
		}
	case BackendGemini:
		if c.GeminiAPIKey == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			errs = append(errs, errors.New("gemini backend requires GEMINI_API_KEY or GOOGLE_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q: want %s or %s", c.Backend, BackendDify, BackendGemini))
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q: want text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ListenAddr is the host:port the gateway binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Model returns the configured default model or the backend's default.
func (c *Config) Model() string {
	if c.BackendModel != "" {
		return c.BackendModel
	}
	if c.Backend == BackendGemini {
		return "gemini-2.5-flash"
	}
	return "dify"
}

// SlogLevel returns the parsed log level, info when invalid.
func (c *Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid cors origin %q: must be an http(s) URL or *", origin)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

// getEnvInt records unparsable values so Validate can reject them.
func (c *Config) getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.envErrs = append(c.envErrs, fmt.Errorf("invalid %s %q: not an integer", key, v))
		return fallback
	}
	return n
}

func (c *Config) getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		c.envErrs = append(c.envErrs, fmt.Errorf("invalid %s %q: not a positive duration", key, v))
		return fallback
	}
	return d
}
