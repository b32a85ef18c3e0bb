package internal

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/webdevcody/youtube-video-suggestions/internal/api"
	pkgconfig "github.com/webdevcody/youtube-video-suggestions/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.Tagging.Enabled() {
		t.Error("tagging should be disabled without an API key")
	}
	if !cfg.Auth.IsAdmin("WebDevCody@gmail.com") {
		t.Error("default admin should match case-insensitively")
	}
}

func TestAuthConfig_EmptyModeDefaultsProxy(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to proxy: %v", err)
	}
	if cfg.Mode != api.AuthModeProxy {
		t.Errorf("mode = %q, want %q", cfg.Mode, api.AuthModeProxy)
	}
}

func TestAuthConfig_TokenModeWithoutTokens(t *testing.T) {
	cfg := AuthConfig{Mode: api.AuthModeToken}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode without tokens should fail")
	}
	if !strings.Contains(err.Error(), "no tokens") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{
		Mode:   api.AuthModeToken,
		Tokens: []TokenIdentity{{Token: "s1", UserID: "alice", Email: "alice@example.com"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with tokens should pass: %v", err)
	}
	got := cfg.Settings().Tokens["s1"]
	if want := (api.Identity{UserID: "alice", Email: "alice@example.com"}); got != want {
		t.Errorf("identity = %+v, want %+v", got, want)
	}
}

func TestAuthConfig_BadTokens(t *testing.T) {
	dup := AuthConfig{Mode: api.AuthModeToken, Tokens: []TokenIdentity{
		{Token: "s1", UserID: "alice"},
		{Token: "s1", UserID: "bob"},
	}}
	if err := dup.Validate(); err == nil {
		t.Error("duplicate tokens should fail")
	}

	noUser := AuthConfig{Mode: api.AuthModeToken, Tokens: []TokenIdentity{{Token: "s2"}}}
	if err := noUser.Validate(); err == nil {
		t.Error("token without user_id should fail")
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestAuthConfig_ProxyModeWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	proxy := NewDefaultConfig().Auth
	proxy.warnTrustedHeaders(logger)
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "proxy mode") {
		t.Errorf("expected proxy mode warning, got %q", buf.String())
	}

	buf.Reset()
	token := AuthConfig{Mode: api.AuthModeToken, Tokens: []TokenIdentity{{Token: "s", UserID: "u"}}}
	token.warnTrustedHeaders(logger)
	if buf.Len() != 0 {
		t.Errorf("token mode should not warn, got %q", buf.String())
	}
}

func TestConfigValidate_Sections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.App.HTTP.Port = 0 }},
		{"sqlite", func(c *Config) { c.SQLite.Path = "" }},
		{"admin email", func(c *Config) { c.Auth.AdminEmails = []string{"not-an-email"} }},
		{"tagging base url", func(c *Config) { c.Tagging.BaseURL = "" }},
		{"tagging timeout", func(c *Config) { c.Tagging.Timeout = time.Millisecond }},
		{"tagging concurrency", func(c *Config) { c.Tagging.MaxConcurrent = 0 }},
		{"negative ceiling", func(c *Config) { c.Tagging.QuotaCeiling = -1 }},
		{"keepalive", func(c *Config) { c.Stream.KeepAliveInterval = 0 }},
		{"buffer", func(c *Config) { c.Stream.ClientBuffer = 0 }},
		{"burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"mcp user", func(c *Config) { c.MCP.UserID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRateLimitDisabledSkipsBurst(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.RateLimit = RateLimitConfig{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled rate limit should pass: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
app:
  log_level: debug
  http:
    port: 9090
sqlite:
  path: /tmp/ideas.db
auth:
  mode: token
  tokens:
    - token: abc
      user_id: alice
      email: alice@example.com
tagging:
  api_key: ${TEST_OPENAI_KEY}
  timeout: 5s
  quota_ceiling: 50
stream:
  keepalive_interval: 15s
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	if cfg.Auth.Mode != api.AuthModeToken {
		t.Errorf("auth mode = %q", cfg.Auth.Mode)
	}
	if !reflect.DeepEqual(cfg.Auth.AdminEmails, []string{DefaultAdminEmail}) {
		t.Errorf("admin emails = %v", cfg.Auth.AdminEmails)
	}
	if cfg.Tagging.APIKey != "sk-test" || !cfg.Tagging.Enabled() {
		t.Errorf("api key = %q", cfg.Tagging.APIKey)
	}
	if cfg.Tagging.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Tagging.Timeout)
	}
	if cfg.Tagging.QuotaCeiling != 50 {
		t.Errorf("quota ceiling = %d", cfg.Tagging.QuotaCeiling)
	}
	if cfg.Tagging.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want default", cfg.Tagging.Model)
	}
	if cfg.Stream.KeepAliveInterval != 15*time.Second || cfg.Stream.ClientBuffer != 64 {
		t.Errorf("stream = %+v", cfg.Stream)
	}
}

func TestLoadWithDefaults_MissingFile(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"), "", cfg); err != nil {
		t.Fatalf("missing file should keep defaults: %v", err)
	}
	if cfg.App.HTTP.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.App.HTTP.Port)
	}
}
