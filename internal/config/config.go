// Package config loads the bridge configuration from the environment and an
// optional YAML file. Values present in the file win over the environment,
// which wins over the defaults in the struct tags.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the single configuration surface. It is passed explicitly to every
// component constructor.
type Config struct {
	Notion Notion `yaml:"notion"`
	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
}

// Notion configures the backend gateway.
type Notion struct {
	// APIKey is the integration token. ENV: NOTION_API_KEY
	APIKey string `env:"NOTION_API_KEY" yaml:"api_key"`
	// BaseURL of the REST API. ENV: NOTION_BASE_URL
	BaseURL string `env:"NOTION_BASE_URL,default=https://api.notion.com/v1" yaml:"base_url"`
	// Version is sent as the Notion-Version header. ENV: NOTION_VERSION
	Version string `env:"NOTION_VERSION,default=2022-06-28" yaml:"version"`
	// MaxRetries bounds retries of a single call. ENV: NOTION_MAX_RETRIES
	MaxRetries int `env:"NOTION_MAX_RETRIES,default=4" yaml:"max_retries"`
	// RateLimit is the client-side request rate in requests per second. ENV: NOTION_RATE_LIMIT
	RateLimit float64 `env:"NOTION_RATE_LIMIT,default=3" yaml:"rate_limit"`
	// Timeout bounds one HTTP attempt. ENV: NOTION_TIMEOUT
	Timeout time.Duration `env:"NOTION_TIMEOUT,default=30s" yaml:"timeout"`
	// ParentFallback lets create_page use the most recently edited page as
	// parent when none is given. ENV: NOTION_PARENT_FALLBACK
	ParentFallback bool `env:"NOTION_PARENT_FALLBACK,default=true" yaml:"parent_fallback"`
}

// Server configures the remote binding.
type Server struct {
	Host string `env:"MCP_HOST,default=127.0.0.1" yaml:"host"`
	Port int    `env:"MCP_PORT,default=8080" yaml:"port"`
	Path string `env:"MCP_PATH,default=/sse" yaml:"path"`
	// AuthSecret enables the auth gate when non-empty. ENV: MCP_AUTH_SECRET
	AuthSecret string `env:"MCP_AUTH_SECRET" yaml:"auth_secret"`
	AuthHeader string `env:"MCP_AUTH_HEADER,default=Authorization" yaml:"auth_header"`
	// AuthMode is "static" (shared secret) or "jwt" (HS256 tokens signed with
	// the secret). ENV: MCP_AUTH_MODE
	AuthMode        string        `env:"MCP_AUTH_MODE,default=static" yaml:"auth_mode"`
	ShutdownTimeout time.Duration `env:"MCP_SHUTDOWN_TIMEOUT,default=10s" yaml:"shutdown_timeout"`
}

// Addr is the listen address for the remote binding.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Log configures the process logger. Logs always go to stderr.
type Log struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=text" yaml:"format"`
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.Wrapf(err, "invalid log level %q", l.Level)
	}
	return lvl, nil
}

// Load decodes the environment and overlays the YAML file at path, if any.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding environment")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config file")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRef.FindStringSubmatch(match)[1])
	})
}

// Validate checks ranges and enumerations. A missing API key is not an error
// here; the gateway constructor reports it.
func (c *Config) Validate() error {
	var problems []string
	if c.Notion.BaseURL == "" {
		problems = append(problems, "notion.base_url is required")
	}
	if c.Notion.MaxRetries < 0 {
		problems = append(problems, "notion.max_retries must not be negative")
	}
	if c.Notion.RateLimit <= 0 {
		problems = append(problems, "notion.rate_limit must be positive")
	}
	if c.Notion.Timeout <= 0 {
		problems = append(problems, "notion.timeout must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		problems = append(problems, "server.path must start with /")
	}
	switch c.Server.AuthMode {
	case "static", "jwt":
	default:
		problems = append(problems, fmt.Sprintf("server.auth_mode %q must be static or jwt", c.Server.AuthMode))
	}
	if c.Server.AuthHeader == "" {
		problems = append(problems, "server.auth_header is required")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return errors.Newf("%s", strings.Join(problems, "; "))
	}
	return nil
}
