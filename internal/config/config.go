// Package config loads process configuration from ORBIT_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "ORBIT_"

// Config is the runtime configuration of the identity API.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`
	// DSN selects Postgres; empty runs on the in-memory store.
	DSN         string `env:"PG_DSN"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	SessionSecret string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionTTL    time.Duration `env:"SESSION_TTL"    envDefault:"720h"`
	Issuer        string        `env:"TOKEN_ISSUER"   envDefault:"orbit"`
	TOTPIssuer    string        `env:"TOTP_ISSUER"    envDefault:"Orbit"`

	RatePerSecond float64 `env:"AUTH_RATE_PER_SECOND" envDefault:"5"`
	RateBurst     int     `env:"AUTH_RATE_BURST"      envDefault:"10"`
	// TrustedProxies lists the CIDRs whose X-Forwarded-For is believed.
	// Empty means the socket peer is always the client.
	TrustedProxies []netip.Prefix `env:"TRUSTED_PROXIES" envSeparator:","`

	// A failed second-factor code spends one of SecondFactorAttempts per
	// email; the budget refills over SecondFactorWindow.
	SecondFactorAttempts int           `env:"TOTP_MAX_ATTEMPTS"   envDefault:"5"`
	SecondFactorWindow   time.Duration `env:"TOTP_ATTEMPT_WINDOW" envDefault:"15m"`

	// ReadinessInterval is how often the gRPC health status re-pings the
	// store.
	ReadinessInterval time.Duration `env:"READINESS_INTERVAL" envDefault:"10s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Version  string `env:"VERSION"   envDefault:"dev"`
}

// Load reads the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: envPrefix})
}

// LoadFrom reads vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: envPrefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if len(c.SessionSecret) < 32 {
		errs = append(errs, errors.New("ORBIT_SESSION_SECRET must be at least 32 bytes"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("ORBIT_SESSION_TTL must be positive"))
	}
	if c.RatePerSecond <= 0 || c.RateBurst <= 0 {
		errs = append(errs, errors.New("ORBIT_AUTH_RATE_* must be positive"))
	}
	if c.ReadinessInterval <= 0 {
		errs = append(errs, errors.New("ORBIT_READINESS_INTERVAL must be positive"))
	}
	if c.SecondFactorAttempts <= 0 || c.SecondFactorWindow <= 0 {
		errs = append(errs, errors.New("ORBIT_TOTP_MAX_ATTEMPTS and ORBIT_TOTP_ATTEMPT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}
