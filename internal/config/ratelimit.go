package config

import (
    "time"

    "github.com/kelseyhightower/envconfig"
)

// RateLimitConfig drives the login throttle. It guards POST /api/auth/login
// against credential stuffing; no other route is limited. Fields are read
// from LOGIN_RATE_LIMIT_* variables.
type RateLimitConfig struct {
    Enabled        bool          `envconfig:"ENABLED" default:"true"`
    Capacity       int           `envconfig:"CAPACITY" default:"10"`
    RefillTokens   int           `envconfig:"REFILL_TOKENS" default:"1"`
    RefillInterval time.Duration `envconfig:"REFILL_INTERVAL" default:"6s"`
    TTL            time.Duration `envconfig:"TTL" default:"10m"`
    KeyStrategy    string        `envconfig:"KEY_STRATEGY" default:"ip_route"`
    Prefix         string        `envconfig:"PREFIX" default:"rl:login"`
    Debug          bool          `envconfig:"DEBUG"`
}

func LoadRateLimitConfig() (RateLimitConfig, error) {
    var c RateLimitConfig
    if err := envconfig.Process("LOGIN_RATE_LIMIT", &c); err != nil {
        return RateLimitConfig{}, err
    }
    return c.normalize(), nil
}

// normalize clamps values the Lua script cannot work with. Buckets must
// outlive a few refill intervals or they would reset between attempts.
func (c RateLimitConfig) normalize() RateLimitConfig {
    if c.Capacity < 1 {
        c.Capacity = 1
    }
    if c.RefillTokens < 1 {
        c.RefillTokens = 1
    }
    if c.RefillInterval <= 0 {
        c.RefillInterval = time.Second
    }
    if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
        c.TTL = minTTL
    }
    if c.Prefix == "" {
        c.Prefix = "rl:login"
    }
    return c
}
