package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/infra/provider"
	"survey-offers/internal/resilience/circuitbreaker"
	"survey-offers/internal/resilience/fallback"
	"survey-offers/internal/resilience/retry"
)

// ProviderSettings configures one upstream survey provider.
type ProviderSettings struct {
	ID            entity.ProviderID             `yaml:"id"`
	BaseURL       string                        `yaml:"base_url"`
	APIKeyEnv     string                        `yaml:"api_key_env"`
	AppID         string                        `yaml:"app_id"`
	SecureHashEnv string                        `yaml:"secure_hash_env"`
	HealthPath    string                        `yaml:"health_path"`
	Timeout       time.Duration                 `yaml:"timeout"`
	RatePerSecond float64                       `yaml:"rate_per_second"`
	Burst         int                           `yaml:"burst"`
	Circuit       circuitbreaker.ProviderConfig `yaml:"circuit"`
	Alternatives  []entity.ProviderID           `yaml:"alternatives"`
}

// CacheSettings configures response cache TTLs.
type CacheSettings struct {
	// ProviderTTL applies to per-provider entries. Default: 5m
	ProviderTTL time.Duration `yaml:"provider_ttl"`
	// AggregateTTL applies to the merged entry per user that backs the
	// fallback chain. Default: 5m
	AggregateTTL time.Duration `yaml:"aggregate_ttl"`
	// BurstWindow is how long a merged response is replayed without a
	// fan-out. Must not exceed AggregateTTL. Default: 10s
	BurstWindow time.Duration `yaml:"burst_window"`
}

// ProvidersConfig is the provider topology loaded from YAML.
type ProvidersConfig struct {
	Providers []ProviderSettings `yaml:"providers"`
	Retry     retry.Policy       `yaml:"retry"`
	Cache     CacheSettings      `yaml:"cache"`

	// PrimaryBudget bounds the retried primary call of one provider. Default: 15s
	PrimaryBudget time.Duration `yaml:"primary_budget"`

	// AllowPrivateEndpoints permits provider URLs on private networks (local stubs).
	AllowPrivateEndpoints bool `yaml:"allow_private_endpoints"`
}

// defaultBaseURLs are the production endpoints used when no file is supplied.
var defaultBaseURLs = map[entity.ProviderID]string{
	entity.ProviderCPX:          "https://live-api.cpx-research.com",
	entity.ProviderBitLabs:      "https://api.bitlabs.ai",
	entity.ProviderTheoremReach: "https://api.theoremreach.com",
	entity.ProviderPollfish:     "https://api.pollfish.com",
}

// DefaultProvidersConfig returns the built-in topology: every known provider,
// default breaker and retry settings, keys read from <PROVIDER>_API_KEY.
func DefaultProvidersConfig() *ProvidersConfig {
	chain := fallback.DefaultConfig()
	cfg := &ProvidersConfig{
		Retry: retry.ProviderPolicy(),
		Cache: CacheSettings{
			ProviderTTL:  chain.ProviderTTL,
			AggregateTTL: 5 * time.Minute,
			BurstWindow:  10 * time.Second,
		},
		PrimaryBudget: chain.PrimaryBudget,
	}
	for _, id := range entity.KnownProviders() {
		cfg.Providers = append(cfg.Providers, ProviderSettings{
			ID:            id,
			BaseURL:       defaultBaseURLs[id],
			APIKeyEnv:     envName(id, "API_KEY"),
			AppID:         os.Getenv(envName(id, "APP_ID")),
			SecureHashEnv: envName(id, "SECURE_HASH"),
			Timeout:       10 * time.Second,
			RatePerSecond: 5,
			Burst:         10,
			Circuit:       circuitbreaker.DefaultProviderConfig(),
			Alternatives:  chain.Alternatives[id],
		})
	}
	return cfg
}

func envName(id entity.ProviderID, suffix string) string {
	out := make([]byte, 0, len(id)+len(suffix)+1)
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out) + "_" + suffix
}

// LoadProvidersConfig reads the YAML file at path. An empty path returns the
// defaults. Zero values in the file are filled from the defaults before
// validation. Any error is structural.
func LoadProvidersConfig(path string) (*ProvidersConfig, error) {
	if path == "" {
		cfg := DefaultProvidersConfig()
		return cfg, cfg.Validate()
	}

	// #nosec G304 -- path comes from the PROVIDERS_CONFIG environment variable, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read providers config: %v", entity.ErrInvalidConfig, err)
	}

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse providers config: %v", entity.ErrInvalidConfig, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ProvidersConfig) applyDefaults() {
	def := DefaultProvidersConfig()
	if c.Retry == (retry.Policy{}) {
		c.Retry = def.Retry
	}
	if c.Cache.ProviderTTL == 0 {
		c.Cache.ProviderTTL = def.Cache.ProviderTTL
	}
	if c.Cache.AggregateTTL == 0 {
		c.Cache.AggregateTTL = def.Cache.AggregateTTL
	}
	if c.Cache.BurstWindow == 0 {
		c.Cache.BurstWindow = min(def.Cache.BurstWindow, c.Cache.AggregateTTL)
	}
	if c.PrimaryBudget == 0 {
		c.PrimaryBudget = def.PrimaryBudget
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Circuit == (circuitbreaker.ProviderConfig{}) {
			p.Circuit = circuitbreaker.DefaultProviderConfig()
		}
		if p.Timeout == 0 {
			p.Timeout = 10 * time.Second
		}
	}
}

// Validate checks the topology. Every error wraps entity.ErrInvalidConfig
// or entity.ErrUnknownProvider.
func (c *ProvidersConfig) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("%w: at least one provider is required", entity.ErrInvalidConfig)
	}

	seen := make(map[entity.ProviderID]bool, len(c.Providers))
	var errs []error
	for _, p := range c.Providers {
		if !p.ID.IsKnown() {
			errs = append(errs, fmt.Errorf("%w: %q", entity.ErrUnknownProvider, p.ID))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("%w: provider %s listed twice", entity.ErrInvalidConfig, p.ID))
		}
		seen[p.ID] = true

		if err := entity.ValidateEndpointURL(p.BaseURL, c.AllowPrivateEndpoints); err != nil {
			errs = append(errs, fmt.Errorf("%w: provider %s: %v", entity.ErrInvalidConfig, p.ID, err))
		}
		if err := p.Circuit.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", p.ID, err))
		}
		for _, alt := range p.Alternatives {
			if alt == p.ID {
				errs = append(errs, fmt.Errorf("%w: provider %s lists itself as alternative", entity.ErrInvalidConfig, p.ID))
			}
		}
	}
	for _, p := range c.Providers {
		for _, alt := range p.Alternatives {
			if !seen[alt] {
				errs = append(errs, fmt.Errorf("%w: provider %s alternative %q is not configured", entity.ErrInvalidConfig, p.ID, alt))
			}
		}
	}

	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if c.Cache.ProviderTTL <= 0 || c.Cache.AggregateTTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: cache TTLs must be positive", entity.ErrInvalidConfig))
	}
	if c.Cache.BurstWindow < 0 || c.Cache.BurstWindow > c.Cache.AggregateTTL {
		errs = append(errs, fmt.Errorf("%w: cache burst_window must be between 0 and aggregate_ttl", entity.ErrInvalidConfig))
	}
	if c.PrimaryBudget < 0 {
		errs = append(errs, fmt.Errorf("%w: primary_budget must not be negative", entity.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// ClientConfigs resolves secrets from the environment and returns one client config per provider.
func (c *ProvidersConfig) ClientConfigs() []provider.Config {
	out := make([]provider.Config, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, provider.Config{
			ID:            p.ID,
			BaseURL:       p.BaseURL,
			APIKey:        lookupSecret(p.APIKeyEnv),
			AppID:         p.AppID,
			SecureHash:    lookupSecret(p.SecureHashEnv),
			HealthPath:    p.HealthPath,
			Timeout:       p.Timeout,
			RatePerSecond: p.RatePerSecond,
			Burst:         p.Burst,
		})
	}
	return out
}

func lookupSecret(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// BreakerConfigs returns the breaker settings keyed by provider.
func (c *ProvidersConfig) BreakerConfigs() map[entity.ProviderID]circuitbreaker.ProviderConfig {
	out := make(map[entity.ProviderID]circuitbreaker.ProviderConfig, len(c.Providers))
	for _, p := range c.Providers {
		out[p.ID] = p.Circuit
	}
	return out
}

// FallbackConfig returns the fallback chain configuration.
func (c *ProvidersConfig) FallbackConfig() fallback.Config {
	alts := make(map[entity.ProviderID][]entity.ProviderID, len(c.Providers))
	for _, p := range c.Providers {
		if len(p.Alternatives) > 0 {
			alts[p.ID] = append([]entity.ProviderID(nil), p.Alternatives...)
		}
	}
	return fallback.Config{
		Policy:        c.Retry,
		PrimaryBudget: c.PrimaryBudget,
		ProviderTTL:   c.Cache.ProviderTTL,
		Alternatives:  alts,
	}
}
