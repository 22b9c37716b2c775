// ABOUTME: Configuration loading for the CRM reconciliation engine
// ABOUTME: Layers defaults, a YAML file at the XDG config path, .env files and CRMSYNC_* environment overrides
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/crmsync/models"
)

// Config is the root configuration structure.
// It is read-only after Load returns.
type Config struct {
	APIBaseURL                string `yaml:"api_base_url"`
	APIKey                    string `yaml:"api_key"`
	RequestTimeoutSeconds     int    `yaml:"request_timeout_seconds"`
	RateLimitWindowSeconds    int    `yaml:"rate_limit_window_seconds"`
	RateLimitMaxRequests      int    `yaml:"rate_limit_max_requests"`
	MinDelayBetweenRequestsMs int    `yaml:"min_delay_between_requests_ms"`
	CacheDefaultTTLSeconds    int    `yaml:"cache_default_ttl_seconds"`
	TaxonomyCacheTTLSeconds   int    `yaml:"taxonomy_cache_ttl_seconds"`
	RateLimitMaxWaitSeconds   int    `yaml:"rate_limit_max_wait_seconds"`
	MaxRetries                int    `yaml:"max_retries"`
	RetryBaseDelayMs          int    `yaml:"retry_base_delay_ms"`
	DatabasePath              string `yaml:"database_path"`

	Cache       CacheConfig       `yaml:"cache"`
	Log         LogConfig         `yaml:"log"`
	Attribution AttributionConfig `yaml:"attribution"`
	Membership  MembershipConfig  `yaml:"membership"`
	Matcher     MatcherConfig     `yaml:"matcher"`
}

// MatcherConfig tunes constituent matching.
type MatcherConfig struct {
	// StrictNames reports several unverifiable name results as ambiguous
	// instead of accepting the first.
	StrictNames bool `yaml:"strict_names"`
	MaxVerify   int  `yaml:"max_verify"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // memory, badger, redis
	Dir      string `yaml:"dir"`
	RedisURL string `yaml:"redis_url"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AttributionConfig maps purchase categories onto remote taxonomy.
type AttributionConfig struct {
	GeneralFundID     string   `yaml:"general_fund_id"`
	FamilySlotFundIDs []string `yaml:"family_slot_fund_ids"`

	// Keyed by purchase category (membership, language_class, events, other).
	CategoryFunds  map[string]string   `yaml:"category_funds"`
	CampaignIDs    map[string]string   `yaml:"campaign_ids"`
	CampaignNames  map[string][]string `yaml:"campaign_names"`
	GiftCategories map[string]string   `yaml:"gift_categories"`

	GiftTypeName string `yaml:"gift_type_name"`

	// Keyed by payment method.
	PaymentTypes map[string]string `yaml:"payment_types"`

	MembershipSlugs    []string `yaml:"membership_slugs"`
	LanguageClassSlugs []string `yaml:"language_class_slugs"`
	EventSlugs         []string `yaml:"event_slugs"`
}

// MembershipConfig maps local membership labels to remote level ids.
type MembershipConfig struct {
	Levels     map[string]string `yaml:"levels"`
	TermMonths int               `yaml:"term_months"`
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheBadger = "badger"
	CacheRedis  = "redis"
)

// Path returns the config file location, honoring CRMSYNC_CONFIG.
func Path() string {
	if p := os.Getenv("CRMSYNC_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(xdg.ConfigHome, "crmsync", "config.yaml")
}

// DefaultDatabasePath returns the XDG data location of the local attribute store.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "crmsync", "crmsync.db")
}

// DefaultCacheDir returns the XDG cache location used by the badger backend.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "crmsync", "responses")
}

// Load loads configuration with precedence: defaults, YAML file, .env, environment.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := newDefaults()

	if path == "" {
		path = Path()
	}
	if err := loadYAMLFile(cfg, path); err != nil {
		return nil, err
	}

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a file that must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadForEdit reads defaults and the YAML file only, so that saving it back does
// not persist environment overrides. A missing file is not an error.
func LoadForEdit(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := newDefaults()
	if err := loadYAMLFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return newDefaults()
}

func newDefaults() *Config {
	return &Config{
		RequestTimeoutSeconds:     30,
		RateLimitWindowSeconds:    60,
		RateLimitMaxRequests:      60,
		MinDelayBetweenRequestsMs: 250,
		CacheDefaultTTLSeconds:    3600,
		TaxonomyCacheTTLSeconds:   86400,
		RateLimitMaxWaitSeconds:   90,
		MaxRetries:                3,
		RetryBaseDelayMs:          500,
		DatabasePath:              DefaultDatabasePath(),
		Cache: CacheConfig{
			Backend: CacheMemory,
			Dir:     DefaultCacheDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Attribution: AttributionConfig{
			CategoryFunds: map[string]string{},
			CampaignIDs:   map[string]string{},
			CampaignNames: map[string][]string{
				models.CategoryMembership:    {"Membership", "Memberships"},
				models.CategoryLanguageClass: {"Language Classes", "Classes"},
				models.CategoryEvents:        {"Events", "Event"},
			},
			GiftCategories: map[string]string{
				models.CategoryMembership:    "Memberships",
				models.CategoryLanguageClass: "Language Classes",
				models.CategoryEvents:        "Event Fee",
				models.CategoryOther:         "Misc.",
			},
			GiftTypeName: "Payment",
			PaymentTypes: map[string]string{
				models.MethodCreditCard:   "Credit Card",
				models.MethodBankTransfer: "EFT",
				models.MethodCheck:        "Check",
				models.MethodCash:         "Cash",
			},
			MembershipSlugs:    []string{"membership", "memberships"},
			LanguageClassSlugs: []string{"classes", "language-classes", "courses"},
			EventSlugs:         []string{"events", "event", "tickets"},
		},
		Membership: MembershipConfig{
			Levels:     map[string]string{},
			TermMonths: 12,
		},
		Matcher: MatcherConfig{
			MaxVerify: 10,
		},
	}
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies CRMSYNC_* environment variables.
// Only non-empty, well-formed values override.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRMSYNC_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("CRMSYNC_API_KEY"); v != "" {
		cfg.APIKey = v
	}

	intOverrides := map[string]*int{
		"CRMSYNC_REQUEST_TIMEOUT_SECONDS":       &cfg.RequestTimeoutSeconds,
		"CRMSYNC_RATE_LIMIT_WINDOW_SECONDS":     &cfg.RateLimitWindowSeconds,
		"CRMSYNC_RATE_LIMIT_MAX_REQUESTS":       &cfg.RateLimitMaxRequests,
		"CRMSYNC_MIN_DELAY_BETWEEN_REQUESTS_MS": &cfg.MinDelayBetweenRequestsMs,
		"CRMSYNC_CACHE_DEFAULT_TTL_SECONDS":     &cfg.CacheDefaultTTLSeconds,
		"CRMSYNC_TAXONOMY_CACHE_TTL_SECONDS":    &cfg.TaxonomyCacheTTLSeconds,
		"CRMSYNC_RATE_LIMIT_MAX_WAIT_SECONDS":   &cfg.RateLimitMaxWaitSeconds,
		"CRMSYNC_MAX_RETRIES":                   &cfg.MaxRetries,
		"CRMSYNC_RETRY_BASE_DELAY_MS":           &cfg.RetryBaseDelayMs,
	}
	for name, target := range intOverrides {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}

	if v := os.Getenv("CRMSYNC_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("CRMSYNC_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("CRMSYNC_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("CRMSYNC_REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("CRMSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CRMSYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CRMSYNC_STRICT_NAMES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Matcher.StrictNames = b
		}
	}
	if v := os.Getenv("CRMSYNC_GENERAL_FUND_ID"); v != "" {
		cfg.Attribution.GeneralFundID = v
	}
}

// Validate checks value ranges. Missing credentials are reported by the remote
// client at request time so that offline commands keep working.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"request_timeout_seconds", c.RequestTimeoutSeconds},
		{"rate_limit_window_seconds", c.RateLimitWindowSeconds},
		{"rate_limit_max_requests", c.RateLimitMaxRequests},
		{"rate_limit_max_wait_seconds", c.RateLimitMaxWaitSeconds},
		{"membership.term_months", c.Membership.TermMonths},
		{"matcher.max_verify", c.Matcher.MaxVerify},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	nonNegative := []struct {
		name  string
		value int
	}{
		{"min_delay_between_requests_ms", c.MinDelayBetweenRequestsMs},
		{"cache_default_ttl_seconds", c.CacheDefaultTTLSeconds},
		{"taxonomy_cache_ttl_seconds", c.TaxonomyCacheTTLSeconds},
		{"max_retries", c.MaxRetries},
		{"retry_base_delay_ms", c.RetryBaseDelayMs},
	}
	for _, p := range nonNegative {
		if p.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", p.name, p.value)
		}
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheBadger:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	seen := make(map[string]string, len(c.Membership.Levels))
	for label := range c.Membership.Levels {
		folded := strings.ToLower(strings.TrimSpace(label))
		if other, ok := seen[folded]; ok {
			return fmt.Errorf("membership.levels has labels differing only by case: %q and %q", other, label)
		}
		seen[folded] = label
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}

// HasCredentials reports whether the remote base URL and API key are set.
func (c *Config) HasCredentials() bool {
	return c.APIBaseURL != "" && c.APIKey != ""
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c *Config) MinDelayBetweenRequests() time.Duration {
	return time.Duration(c.MinDelayBetweenRequestsMs) * time.Millisecond
}

func (c *Config) CacheDefaultTTL() time.Duration {
	return time.Duration(c.CacheDefaultTTLSeconds) * time.Second
}

func (c *Config) TaxonomyCacheTTL() time.Duration {
	return time.Duration(c.TaxonomyCacheTTLSeconds) * time.Second
}

func (c *Config) RateLimitMaxWait() time.Duration {
	return time.Duration(c.RateLimitMaxWaitSeconds) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// Save writes the configuration as YAML with owner-only permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = Path()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy safe for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.APIKey != "" {
		if len(out.APIKey) > 4 {
			out.APIKey = strings.Repeat("*", len(out.APIKey)-4) + out.APIKey[len(out.APIKey)-4:]
		} else {
			out.APIKey = "****"
		}
	}
	return &out
}
