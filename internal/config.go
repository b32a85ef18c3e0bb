package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/webdevcody/youtube-video-suggestions/internal/api"
)

// DefaultAdminEmail is the administrator recognised when no list is configured.
const DefaultAdminEmail = "webdevcody@gmail.com"

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Tagging    TaggingConfig     `yaml:"tagging"`
	Stream     StreamConfig      `yaml:"stream"`
	Moderation ModerationConfig  `yaml:"moderation"`
	RateLimit  RateLimitConfig   `yaml:"ratelimit"`
	MCP        MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
		{"tagging", &c.Tagging},
		{"stream", &c.Stream},
		{"ratelimit", &c.RateLimit},
		{"mcp", &c.MCP},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// TokenIdentity binds a bearer token to a user.
type TokenIdentity struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
}

// Validate validates a token entry.
func (t TokenIdentity) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Token, validation.Required),
		validation.Field(&t.UserID, validation.Required),
		validation.Field(&t.Email, is.EmailFormat),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls where caller identity comes from:
//   - "proxy" (default): X-User-ID / X-User-Email headers set by a fronting identity proxy.
//   - "token": Bearer tokens listed in Tokens.
type AuthConfig struct {
	Mode        string          `yaml:"mode"`
	Tokens      []TokenIdentity `yaml:"tokens"`
	AdminEmails []string        `yaml:"admin_emails"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = api.AuthModeProxy
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(api.AuthModeProxy, api.AuthModeToken)),
		validation.Field(&c.Tokens),
		validation.Field(&c.AdminEmails, validation.Each(validation.Required, is.EmailFormat)),
	); err != nil {
		return err
	}
	if c.Mode == api.AuthModeToken && len(c.Tokens) == 0 {
		return errors.New("mode is \"token\" but no tokens are configured")
	}
	seen := make(map[string]struct{}, len(c.Tokens))
	for _, t := range c.Tokens {
		if _, dup := seen[t.Token]; dup {
			return fmt.Errorf("duplicate token for user %q", t.UserID)
		}
		seen[t.Token] = struct{}{}
	}
	return nil
}

// Settings converts the configuration into API auth settings.
func (c *AuthConfig) Settings() api.AuthSettings {
	tokens := make(map[string]api.Identity, len(c.Tokens))
	for _, t := range c.Tokens {
		tokens[t.Token] = api.Identity{UserID: t.UserID, Email: t.Email}
	}
	return api.AuthSettings{Mode: c.Mode, Tokens: tokens, AdminEmails: c.AdminEmails}
}

// warnTrustedHeaders logs a warning in proxy mode, where identity headers
// are taken from every request as sent.
func (c *AuthConfig) warnTrustedHeaders(logger *slog.Logger) {
	if c.Mode != api.AuthModeProxy {
		return
	}
	logger.Warn("auth: proxy mode trusts X-User-ID and X-User-Email from every request; "+
		"the port must only be reachable through the identity proxy",
		slog.Any("admin_emails", c.AdminEmails))
}

// IsAdmin reports whether email belongs to an administrator.
func (c *AuthConfig) IsAdmin(email string) bool {
	for _, a := range c.AdminEmails {
		if strings.EqualFold(a, email) {
			return true
		}
	}
	return false
}

// TaggingConfig configures the automatic tagging worker and its oracle.
// An empty APIKey disables tagging.
type TaggingConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	QuotaCeiling      int           `yaml:"quota_ceiling"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
}

// Enabled reports whether an oracle should be built.
func (c *TaggingConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Validate validates the tagging configuration.
func (c *TaggingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.QuotaCeiling, validation.Min(0)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.MaxConcurrent, validation.Required, validation.Min(1)),
	)
}

// StreamConfig configures the event stream endpoint.
type StreamConfig struct {
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	ClientBuffer      int           `yaml:"client_buffer"`
}

// Validate validates the stream configuration.
func (c *StreamConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.KeepAliveInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ClientBuffer, validation.Required, validation.Min(1)),
	)
}

// ModerationConfig configures the profanity word list.
type ModerationConfig struct {
	WordlistPath string `yaml:"wordlist_path"`
	Watch        bool   `yaml:"watch"`
}

// RateLimitConfig bounds how fast a single user can submit ideas.
// Zero CreatePerMinute disables the limit.
type RateLimitConfig struct {
	CreatePerMinute int `yaml:"create_per_minute"`
	Burst           int `yaml:"burst"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CreatePerMinute, validation.Min(0)),
		validation.Field(&c.Burst, validation.When(c.CreatePerMinute > 0, validation.Required, validation.Min(1))),
	)
}

// MCPConfig is the identity MCP clients act as.
type MCPConfig struct {
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
}

// Validate validates the MCP configuration.
func (c *MCPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required),
		validation.Field(&c.Email, is.EmailFormat),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./ideas.db",
		},
		Auth: AuthConfig{
			Mode:        api.AuthModeProxy,
			AdminEmails: []string{DefaultAdminEmail},
		},
		Tagging: TaggingConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Timeout:           30 * time.Second,
			QuotaCeiling:      1000,
			RequestsPerSecond: 2,
			MaxConcurrent:     4,
		},
		Stream: StreamConfig{
			KeepAliveInterval: 30 * time.Second,
			ClientBuffer:      64,
		},
		Moderation: ModerationConfig{
			Watch: true,
		},
		RateLimit: RateLimitConfig{
			CreatePerMinute: 10,
			Burst:           5,
		},
		MCP: MCPConfig{
			UserID: "mcp-agent",
		},
	}
}
