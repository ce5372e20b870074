// Package config loads and validates the static gateway configuration.
//
// DESIGN: One YAML file describes backend profiles, route aliases, and the
// reliability/budget parameters. A .env overlay resolves credential
// references without putting secrets in the YAML. The loaded Config is
// immutable for the process lifetime; there is no hot-reload.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/relaycore/inference-gateway/internal/capability"
)

// BackendProfile configures one addressable backend instance.
type BackendProfile struct {
	ID       string `yaml:"-"`
	Dialect  string `yaml:"dialect"`
	Endpoint string `yaml:"endpoint,omitempty"`

	// Credential is a reference such as "env:ANTHROPIC_API_KEY", resolved
	// by the credential resolver at dispatch time, never stored resolved.
	Credential string `yaml:"credential"`

	Models []string `yaml:"models"`

	// Capabilities overrides the adapter-declared capability set.
	Capabilities capability.Overrides `yaml:"capabilities,omitempty"`

	// Per-backend budget knobs. Zero means the global default applies.
	MaxConcurrency int      `yaml:"max_concurrency,omitempty"`
	RatePerSecond  float64  `yaml:"rate_per_second,omitempty"`
	RateBurst      int      `yaml:"rate_burst,omitempty"`
	Timeout        Duration `yaml:"timeout,omitempty"`
}

// HasModel reports whether the profile owns the given model id.
func (p *BackendProfile) HasModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

// RouteAlias maps a caller-facing alias to one (backend, model) pair.
type RouteAlias struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
}

// ReliabilityConfig holds retry and circuit breaker parameters.
type ReliabilityConfig struct {
	MaxAttempts             int      `yaml:"max_attempts"`
	BackoffBase             Duration `yaml:"backoff_base"`
	BackoffCap              Duration `yaml:"backoff_cap"`
	BreakerFailureThreshold int      `yaml:"breaker_failure_threshold"`
	BreakerOpenDuration     Duration `yaml:"breaker_open_duration"`
}

// BudgetConfig holds global admission parameters.
type BudgetConfig struct {
	MaxRequestTime        Duration `yaml:"max_request_time"`
	MaxConcurrencyDefault int      `yaml:"max_concurrency_per_backend"`
	RatePerSecondDefault  float64  `yaml:"rate_per_second"`
	RateBurstDefault      int      `yaml:"rate_burst"`

	// TokenCeiling is an optional accounting ceiling consulted by the
	// admission hook. It never interrupts an in-flight stream.
	TokenCeiling int64 `yaml:"token_ceiling,omitempty"`
}

// MonitoringConfig selects telemetry destinations.
type MonitoringConfig struct {
	Enabled      bool   `yaml:"enabled"`
	LogPath      string `yaml:"log_path,omitempty"`
	SQLitePath   string `yaml:"sqlite_path,omitempty"`
	LogLifecycle bool   `yaml:"log_lifecycle,omitempty"`
}

// Config is the full static configuration surface.
type Config struct {
	Backends    map[string]*BackendProfile `yaml:"backends"`
	Aliases     map[string]RouteAlias      `yaml:"aliases"`
	Reliability ReliabilityConfig          `yaml:"reliability"`
	Budget      BudgetConfig               `yaml:"budget"`
	Monitoring  MonitoringConfig           `yaml:"monitoring"`
}

// Load reads the YAML file at path, overlays .env files, applies defaults,
// and validates. envFiles may be empty; missing .env files are ignored the
// way godotenv callers usually do.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading env file %s: %w", f, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults, and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Int("backends", len(cfg.Backends)).
		Int("aliases", len(cfg.Aliases)).
		Msg("configuration loaded")
	return cfg, nil
}

func (c *Config) applyDefaults() {
	// Global defaults first; backend profiles inherit from them below.
	if c.Budget.MaxRequestTime <= 0 {
		c.Budget.MaxRequestTime = Duration(DefaultMaxRequestTime)
	}
	if c.Budget.MaxConcurrencyDefault <= 0 {
		c.Budget.MaxConcurrencyDefault = DefaultMaxConcurrency
	}
	for id, p := range c.Backends {
		p.ID = id
		if p.MaxConcurrency <= 0 {
			p.MaxConcurrency = c.Budget.MaxConcurrencyDefault
		}
		if p.RatePerSecond <= 0 {
			p.RatePerSecond = c.Budget.RatePerSecondDefault
		}
		if p.RateBurst <= 0 {
			p.RateBurst = c.Budget.RateBurstDefault
		}
	}
	if c.Reliability.MaxAttempts <= 0 {
		c.Reliability.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reliability.BackoffBase <= 0 {
		c.Reliability.BackoffBase = Duration(DefaultBackoffBase)
	}
	if c.Reliability.BackoffCap <= 0 {
		c.Reliability.BackoffCap = Duration(DefaultBackoffCap)
	}
	if c.Reliability.BreakerFailureThreshold <= 0 {
		c.Reliability.BreakerFailureThreshold = DefaultBreakerFailureThreshold
	}
	if c.Reliability.BreakerOpenDuration <= 0 {
		c.Reliability.BreakerOpenDuration = Duration(DefaultBreakerOpenDuration)
	}
}

// Validate checks referential integrity of the static configuration.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("config: no backends declared")
	}
	for id, p := range c.Backends {
		if strings.TrimSpace(p.Dialect) == "" {
			return fmt.Errorf("config: backend %q has no dialect", id)
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("config: backend %q declares no models", id)
		}
	}
	if _, ok := c.Aliases[DefaultAlias]; !ok {
		return fmt.Errorf("config: alias %q must be declared", DefaultAlias)
	}
	for name, a := range c.Aliases {
		p, ok := c.Backends[a.Backend]
		if !ok {
			return fmt.Errorf("config: alias %q references unknown backend %q", name, a.Backend)
		}
		if !p.HasModel(a.Model) {
			return fmt.Errorf("config: alias %q references model %q not owned by backend %q",
				name, a.Model, a.Backend)
		}
	}
	return nil
}
