package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Database   DatabaseConfig    `yaml:"database"`
	Log        LogConfig         `yaml:"log"`
	Auth       AuthConfig        `yaml:"auth"`
	Registrars []RegistrarConfig `yaml:"registrars"`
	Lifecycle  LifecycleConfig   `yaml:"lifecycle"`
	Sync       SyncConfig        `yaml:"sync"`
	Notify     NotifyConfig      `yaml:"notify"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug/release
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite
	Path string `yaml:"path"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug/info/warn/error
	Format string `yaml:"format"` // text/json
}

// AuthConfig holds admin authentication settings
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTL      string `yaml:"token_ttl"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// RegistrarConfig describes one upstream registrar API
type RegistrarConfig struct {
	Name    string `yaml:"name"`
	APIURL  string `yaml:"api_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"` // per-call bound, e.g. "15s"
}

// LifecycleConfig holds renewal rules and lifecycle windows
type LifecycleConfig struct {
	RenewalYears       []int    `yaml:"renewal_years"`
	RenewalWindowDays  int      `yaml:"renewal_window_days"`
	GracePeriodDays    int      `yaml:"grace_period_days"`
	RedemptionDays     int      `yaml:"redemption_days"`
	AdvanceInterval    string   `yaml:"advance_interval"` // Cron expression
	DefaultListLimit   int      `yaml:"default_list_limit"`
	DefaultRegistrar   string   `yaml:"default_registrar"`
	DefaultNameservers []string `yaml:"default_nameservers"`
}

// SyncConfig controls the bulk registrar sweep
type SyncConfig struct {
	Enabled       bool   `yaml:"enabled"`
	CheckInterval string `yaml:"check_interval"` // Cron expression
	Workers       int    `yaml:"workers"`
}

// NotifyConfig configures the transfer-out notification collaborator
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Proxy   string `yaml:"proxy"` // Optional SOCKS5 address, e.g. 127.0.0.1:7890
	Timeout string `yaml:"timeout"`
}

// Default returns a configuration with every optional field filled in
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", Mode: "debug"},
		Database: DatabaseConfig{Type: "sqlite", Path: "data/domains.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Auth: AuthConfig{
			TokenTTL:      "168h",
			AdminUsername: "admin",
		},
		Lifecycle: LifecycleConfig{
			RenewalYears:      []int{1, 2, 3, 5},
			RenewalWindowDays: 30,
			GracePeriodDays:   30,
			RedemptionDays:    30,
			AdvanceInterval:   "0 * * * *",
			DefaultListLimit:  100,
		},
		Sync: SyncConfig{
			Enabled:       true,
			CheckInterval: "0 */6 * * *",
			Workers:       4,
		},
		Notify: NotifyConfig{Timeout: "10s"},
	}
}

// LoadConfig loads configuration from a YAML file, then applies DOMAINS_* environment overrides
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Run on defaults plus environment
	default:
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides scalar settings from the environment, e.g. DOMAINS_SERVER_PORT
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("DOMAINS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setString := func(key string, dst *string) {
		if val := v.GetString(key); val != "" {
			*dst = val
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			if val := v.GetInt(key); val > 0 {
				*dst = val
			}
		}
	}

	setString("server.port", &cfg.Server.Port)
	setString("server.mode", &cfg.Server.Mode)
	setString("database.path", &cfg.Database.Path)
	setString("log.level", &cfg.Log.Level)
	setString("log.format", &cfg.Log.Format)
	setString("auth.jwt_secret", &cfg.Auth.JWTSecret)
	setString("auth.admin_password", &cfg.Auth.AdminPassword)
	setString("sync.check_interval", &cfg.Sync.CheckInterval)
	setInt("sync.workers", &cfg.Sync.Workers)
	setString("notify.url", &cfg.Notify.URL)
	if v.IsSet("sync.enabled") {
		cfg.Sync.Enabled = v.GetBool("sync.enabled")
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if len(c.Lifecycle.RenewalYears) == 0 {
		return fmt.Errorf("lifecycle.renewal_years must not be empty")
	}
	for _, y := range c.Lifecycle.RenewalYears {
		if y <= 0 || y > 10 {
			return fmt.Errorf("lifecycle.renewal_years contains invalid value %d", y)
		}
	}
	if c.Lifecycle.RenewalWindowDays < 0 || c.Lifecycle.GracePeriodDays < 0 || c.Lifecycle.RedemptionDays < 0 {
		return fmt.Errorf("lifecycle windows must not be negative")
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive, got %d", c.Sync.Workers)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Sync.CheckInterval); err != nil {
		return fmt.Errorf("invalid sync.check_interval: %w", err)
	}
	if _, err := parser.Parse(c.Lifecycle.AdvanceInterval); err != nil {
		return fmt.Errorf("invalid lifecycle.advance_interval: %w", err)
	}

	seen := make(map[string]bool)
	for _, r := range c.Registrars {
		if r.Name == "" || r.APIURL == "" {
			return fmt.Errorf("registrar entries need name and api_url")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate registrar %q", r.Name)
		}
		seen[r.Name] = true
		if _, err := r.TimeoutDuration(); err != nil {
			return fmt.Errorf("registrar %s: %w", r.Name, err)
		}
	}
	if c.Lifecycle.DefaultRegistrar != "" && !seen[c.Lifecycle.DefaultRegistrar] {
		return fmt.Errorf("default registrar %q is not configured", c.Lifecycle.DefaultRegistrar)
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		return fmt.Errorf("notify.url is required when notify is enabled")
	}
	return nil
}

// TimeoutDuration parses the registrar timeout, defaulting to 15s
func (r RegistrarConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration(r.Timeout, 15*time.Second)
}

// TokenTTLDuration parses the admin token lifetime, defaulting to 7 days
func (a AuthConfig) TokenTTLDuration() (time.Duration, error) {
	return parseDuration(a.TokenTTL, 7*24*time.Hour)
}

// TimeoutDuration parses the notifier timeout, defaulting to 10s
func (n NotifyConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration(n.Timeout, 10*time.Second)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
