// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers defaults, YAML parsing, environment overrides, save permissions and logger construction
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, time.Hour, cfg.CacheDefaultTTL())
	assert.Equal(t, 24*time.Hour, cfg.TaxonomyCacheTTL())
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, "Misc.", cfg.Attribution.GiftCategories["other"])
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.HasCredentials())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.RateLimitMaxRequests)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api_base_url: https://crm.example.org/api/v1
api_key: secret-key
rate_limit_max_requests: 10
min_delay_between_requests_ms: 0
cache:
  backend: badger
  dir: /tmp/crmsync-cache
attribution:
  general_fund_id: "42"
  category_funds:
    membership: "7"
membership:
  levels:
    Family: "301"
matcher:
  strict_names: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.org/api/v1", cfg.APIBaseURL)
	assert.Equal(t, 10, cfg.RateLimitMaxRequests)
	assert.Equal(t, time.Duration(0), cfg.MinDelayBetweenRequests())
	assert.Equal(t, CacheBadger, cfg.Cache.Backend)
	assert.Equal(t, "42", cfg.Attribution.GeneralFundID)
	assert.Equal(t, "7", cfg.Attribution.CategoryFunds["membership"])
	assert.Equal(t, "301", cfg.Membership.Levels["Family"])
	assert.True(t, cfg.Matcher.StrictNames)
	assert.Equal(t, 10, cfg.Matcher.MaxVerify)
	// Untouched defaults survive.
	assert.Equal(t, "Payment", cfg.Attribution.GiftTypeName)
	assert.True(t, cfg.HasCredentials())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CRMSYNC_API_KEY", "from-env")
	t.Setenv("CRMSYNC_RATE_LIMIT_MAX_REQUESTS", "5")
	t.Setenv("CRMSYNC_MAX_RETRIES", "not-a-number")
	t.Setenv("CRMSYNC_LOG_FORMAT", "json")
	t.Setenv("CRMSYNC_STRICT_NAMES", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, 5, cfg.RateLimitMaxRequests)
	assert.Equal(t, 3, cfg.MaxRetries, "malformed values are ignored")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Matcher.StrictNames)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero window", func(c *Config) { c.RateLimitWindowSeconds = 0 }, "rate_limit_window_seconds"},
		{"negative delay", func(c *Config) { c.MinDelayBetweenRequestsMs = -1 }, "min_delay_between_requests_ms"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "unknown cache backend"},
		{"redis without url", func(c *Config) { c.Cache.Backend = CacheRedis }, "redis_url"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
		{"zero term", func(c *Config) { c.Membership.TermMonths = 0 }, "membership.term_months"},
		{"zero max verify", func(c *Config) { c.Matcher.MaxVerify = 0 }, "matcher.max_verify"},
		{"case duplicate levels", func(c *Config) {
			c.Membership.Levels = map[string]string{"Family": "1", "family": "2"}
		}, "differing only by case"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveRoundTripAndPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.APIBaseURL = "https://crm.example.org"
	cfg.APIKey = "abc123"

	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.APIKey)
	assert.Equal(t, cfg.Attribution.PaymentTypes, loaded.Attribution.PaymentTypes)
}

func TestLoadForEditIgnoresEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.APIBaseURL = "https://crm.example.org"
	require.NoError(t, Save(cfg, path))

	t.Setenv("CRMSYNC_API_BASE_URL", "https://other.example.org")
	t.Setenv("CRMSYNC_API_KEY", "env-key")

	edit, err := LoadForEdit(path)
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.org", edit.APIBaseURL)
	assert.Empty(t, edit.APIKey)
	assert.Equal(t, 12, edit.Membership.TermMonths)
}

func TestPathHonorsEnv(t *testing.T) {
	t.Setenv("CRMSYNC_CONFIG", "/etc/crmsync.yaml")
	assert.Equal(t, "/etc/crmsync.yaml", Path())
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "supersecret"
	assert.Equal(t, "*******cret", cfg.Redacted().APIKey)
	assert.Equal(t, "supersecret", cfg.APIKey)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.Contains(t, out, `"component":"test"`)

	_, err = NewLogger(LogConfig{Level: "info", Format: "xml"}, &buf)
	assert.Error(t, err)
}
