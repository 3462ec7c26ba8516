// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime configuration of the CampusCloset server.
type Config struct {
	Addr            string        `env:"CAMPUSCLOSET_ADDR"              envDefault:":8000"`
	DBPath          string        `env:"CAMPUSCLOSET_DB_PATH"           envDefault:"campuscloset.db"`
	RulesFile       string        `env:"CAMPUSCLOSET_RULES_FILE"`
	EffectTimeout   time.Duration `env:"CAMPUSCLOSET_EFFECT_TIMEOUT"    envDefault:"0s"`
	CORSOrigin      string        `env:"CAMPUSCLOSET_CORS_ORIGIN"       envDefault:"*"`
	TraceStdout     bool          `env:"CAMPUSCLOSET_TRACE_STDOUT"      envDefault:"false"`
	VerificationTTL time.Duration `env:"CAMPUSCLOSET_VERIFICATION_TTL"  envDefault:"24h"`
	ShutdownTimeout time.Duration `env:"CAMPUSCLOSET_SHUTDOWN_TIMEOUT"  envDefault:"10s"`
}

// Load reads Config from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom reads Config from the given variables instead of the process
// environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("CAMPUSCLOSET_ADDR must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("CAMPUSCLOSET_DB_PATH must not be empty")
	}
	if c.EffectTimeout < 0 {
		return fmt.Errorf("CAMPUSCLOSET_EFFECT_TIMEOUT must not be negative")
	}
	if c.VerificationTTL <= 0 {
		return fmt.Errorf("CAMPUSCLOSET_VERIFICATION_TTL must be positive")
	}
	return nil
}
