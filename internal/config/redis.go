package config

import (
    "context"
    "crypto/tls"
    "fmt"
    "net"
    "time"

    "github.com/kelseyhightower/envconfig"
    "github.com/redis/go-redis/v9"
)

// RedisConfig is read from REDIS_* variables. REDIS_HOST and REDIS_PORT
// together take precedence over REDIS_ADDR.
type RedisConfig struct {
    Disabled bool   `envconfig:"DISABLED"`
    Addr     string `envconfig:"ADDR" default:"localhost:6379"`
    Host     string `envconfig:"HOST"`
    Port     string `envconfig:"PORT"`
    Password string `envconfig:"PASSWORD"`
    DB       int    `envconfig:"DB"`
    TLS      bool   `envconfig:"TLS"`
}

func LoadRedisConfig() (RedisConfig, error) {
    var c RedisConfig
    if err := envconfig.Process("REDIS", &c); err != nil {
        return RedisConfig{}, err
    }
    return c, nil
}

// Address is the host:port to dial.
func (c RedisConfig) Address() string {
    if c.Host != "" && c.Port != "" {
        return net.JoinHostPort(c.Host, c.Port)
    }
    return c.Addr
}

// NewRedisClient connects and pings the server. Redis backs the login
// throttle only, so callers treat an error as "throttle off" rather than
// fatal. A disabled config yields a nil client and no error.
func NewRedisClient(ctx context.Context, c RedisConfig) (*redis.Client, error) {
    if c.Disabled {
        return nil, nil
    }
    opts := &redis.Options{
        Addr:     c.Address(),
        Password: c.Password,
        DB:       c.DB,
    }
    if c.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(opts)

    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
    }
    return client, nil
}
