// Package config loads the shopify-sync configuration from a YAML file, a
// .env file and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/shopify-source/pkg/incremental"
	"github.com/Sternrassler/shopify-source/pkg/logging"
	"github.com/Sternrassler/shopify-source/pkg/pipeline"
	"github.com/Sternrassler/shopify-source/pkg/record"
	"github.com/Sternrassler/shopify-source/pkg/shopify"
)

// Config holds all shopify-sync configuration.
type Config struct {
	Shop        ShopConfig        `yaml:"shop"`
	Sync        SyncConfig        `yaml:"sync"`
	State       StateConfig       `yaml:"state"`
	Destination DestinationConfig `yaml:"destination"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
}

// ShopConfig configures the Admin API connection.
type ShopConfig struct {
	URL               string `yaml:"url"`
	AccessToken       string `yaml:"access_token"`
	APIVersion        string `yaml:"api_version"`
	GraphQLAPIVersion string `yaml:"graphql_api_version"`
	UserAgent         string `yaml:"user_agent"`
	Timeout           string `yaml:"timeout"`
	MaxRetries        int    `yaml:"max_retries"`
	InitialBackoff    string `yaml:"initial_backoff"`
	MaxBackoff        string `yaml:"max_backoff"`
}

// SyncConfig selects what is loaded.
type SyncConfig struct {
	// Resources to load; empty means all.
	Resources []string `yaml:"resources"`

	// StartDate, EndDate and CreatedAtMin accept RFC 3339 timestamps or dates.
	StartDate    string `yaml:"start_date"`
	EndDate      string `yaml:"end_date"`
	CreatedAtMin string `yaml:"created_at_min"`

	OrderStatus    string `yaml:"order_status"`
	ItemsPerPage   int    `yaml:"items_per_page"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	FullRefresh    bool   `yaml:"full_refresh"`
}

// StateConfig selects the cursor state store (see state.Open).
type StateConfig struct {
	DSN string `yaml:"dsn"`
}

// DestinationConfig selects the sink (see sink.Open).
type DestinationConfig struct {
	DSN string `yaml:"dsn"`
}

// RateLimitConfig shares call-limit state between processes when RedisURL is set.
type RateLimitConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig enables the /metrics and /health server when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ScheduleConfig configures the schedule command.
type ScheduleConfig struct {
	// Cron is a standard five-field expression or a descriptor like "@hourly".
	Cron string `yaml:"cron"`

	// RunOnStart triggers a load immediately when the scheduler starts.
	RunOnStart bool `yaml:"run_on_start"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Shop: ShopConfig{
			Timeout:        "30s",
			MaxRetries:     3,
			InitialBackoff: "1s",
			MaxBackoff:     "30s",
		},
		Sync: SyncConfig{
			StartDate:      incremental.Epoch.Format(time.RFC3339),
			CreatedAtMin:   incremental.Epoch.Format(time.RFC3339),
			OrderStatus:    string(shopify.OrderStatusAny),
			ItemsPerPage:   shopify.DefaultItemsPerPage,
			MaxConcurrency: pipeline.DefaultConfig().MaxConcurrency,
		},
		State:       StateConfig{DSN: "sqlite://shopify_state.db"},
		Destination: DestinationConfig{DSN: "stdout://"},
		Logging:     LoggingConfig{Level: "info"},
		Schedule:    ScheduleConfig{Cron: "@hourly"},
	}
}

// Load reads configuration from path on top of the defaults. A missing file
// leaves the defaults. A .env file in the working directory and the
// environment override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// Variables already set in the environment win over .env.
	_ = godotenv.Load()
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SHOPIFY_SHOP_URL"); v != "" {
		c.Shop.URL = v
	}
	if v := os.Getenv("SHOPIFY_ACCESS_TOKEN"); v != "" {
		c.Shop.AccessToken = v
	}
	if v := os.Getenv("SHOPIFY_API_VERSION"); v != "" {
		c.Shop.APIVersion = v
	}
	if v := os.Getenv("SHOPIFY_STATE_DSN"); v != "" {
		c.State.DSN = v
	}
	if v := os.Getenv("SHOPIFY_DESTINATION_DSN"); v != "" {
		c.Destination.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RateLimit.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Shop.URL == "" {
		return fmt.Errorf("shop.url is required (or SHOPIFY_SHOP_URL)")
	}
	if c.Shop.AccessToken == "" {
		return fmt.Errorf("shop.access_token is required (or SHOPIFY_ACCESS_TOKEN)")
	}
	for name, v := range map[string]string{
		"shop.timeout":         c.Shop.Timeout,
		"shop.initial_backoff": c.Shop.InitialBackoff,
		"shop.max_backoff":     c.Shop.MaxBackoff,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Sync.MaxConcurrency < 1 {
		return fmt.Errorf("sync.max_concurrency must be >= 1 (got %d)", c.Sync.MaxConcurrency)
	}
	if c.State.DSN == "" {
		return fmt.Errorf("state.dsn is required")
	}
	if c.Destination.DSN == "" {
		return fmt.Errorf("destination.dsn is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := c.ScheduleSpec(); err != nil {
		return err
	}

	sc, err := c.ShopifyConfig()
	if err != nil {
		return err
	}
	return sc.Validate()
}

// ShopifyConfig builds the source configuration.
func (c *Config) ShopifyConfig() (shopify.Config, error) {
	sc := shopify.DefaultConfig(c.Shop.URL, c.Shop.AccessToken)
	if c.Shop.APIVersion != "" {
		sc.APIVersion = c.Shop.APIVersion
	}
	if c.Shop.GraphQLAPIVersion != "" {
		sc.GraphQLAPIVersion = c.Shop.GraphQLAPIVersion
	}
	if c.Shop.UserAgent != "" {
		sc.UserAgent = c.Shop.UserAgent
	}
	sc.Timeout = c.GetTimeout()
	sc.MaxRetries = c.Shop.MaxRetries
	sc.InitialBackoff = c.GetInitialBackoff()
	sc.MaxBackoff = c.GetMaxBackoff()

	if c.Sync.ItemsPerPage != 0 {
		sc.ItemsPerPage = c.Sync.ItemsPerPage
	}
	if c.Sync.OrderStatus != "" {
		sc.OrderStatus = shopify.OrderStatus(c.Sync.OrderStatus)
	}

	var err error
	if sc.StartDate, err = parseDate("sync.start_date", c.Sync.StartDate, incremental.Epoch); err != nil {
		return shopify.Config{}, err
	}
	if sc.EndDate, err = parseDate("sync.end_date", c.Sync.EndDate, time.Time{}); err != nil {
		return shopify.Config{}, err
	}
	if sc.CreatedAtMin, err = parseDate("sync.created_at_min", c.Sync.CreatedAtMin, time.Time{}); err != nil {
		return shopify.Config{}, err
	}
	return sc, nil
}

// PipelineConfig builds the runner configuration.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		MaxConcurrency: c.Sync.MaxConcurrency,
		FullRefresh:    c.Sync.FullRefresh,
	}
}

// LoggingSetup builds the logger configuration.
func (c *Config) LoggingSetup() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

// ScheduleSpec parses the cron expression.
func (c *Config) ScheduleSpec() (cron.Schedule, error) {
	spec, err := cron.ParseStandard(c.Schedule.Cron)
	if err != nil {
		return nil, fmt.Errorf("schedule.cron %q: %w", c.Schedule.Cron, err)
	}
	return spec, nil
}

// GetTimeout returns the request timeout.
func (c *Config) GetTimeout() time.Duration {
	d, _ := parseDuration(c.Shop.Timeout)
	return d
}

// GetInitialBackoff returns the first retry delay.
func (c *Config) GetInitialBackoff() time.Duration {
	d, _ := parseDuration(c.Shop.InitialBackoff)
	return d
}

// GetMaxBackoff returns the retry delay cap.
func (c *Config) GetMaxBackoff() time.Duration {
	d, _ := parseDuration(c.Shop.MaxBackoff)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func parseDate(field, s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	t, ok := record.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("%s: invalid date %q", field, s)
	}
	return t.UTC(), nil
}
