package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. JWT_SECRET and SESSION_SECRET are required; the
// database is configured either through DATABASE_URL (a MySQL DSN) or the
// DB_* parts.
type Config struct {
	Env  string `envconfig:"APP_ENV" default:"development"`
	Host string `envconfig:"APP_HOST" default:"0.0.0.0"`
	Port string `envconfig:"APP_PORT" default:"5000"`

	// Store selects the persistence backend: "mysql" or "memory".
	Store       string `envconfig:"STORE" default:"mysql"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBUser      string `envconfig:"DB_USER"`
	DBPass      string `envconfig:"DB_PASS"`
	DBHost      string `envconfig:"DB_HOST"`
	DBPort      string `envconfig:"DB_PORT" default:"3306"`
	DBName      string `envconfig:"DB_NAME"`

	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	AccessTTL     time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	BcryptCost    int           `envconfig:"BCRYPT_COST" default:"10"`

	FrontendURL    string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	ImportMaxBytes int64  `envconfig:"IMPORT_MAX_BYTES" default:"5242880"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	RabbitMQURL    string `envconfig:"RABBITMQ_URL"`

	// Optional bootstrap administrator created on startup when absent.
	AdminUsername string `envconfig:"ADMIN_USERNAME"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

// Load reads an optional .env file, then processes the environment into a
// Config and validates it. Callers treat any error as fatal.
func Load() (Config, error) {
	_ = godotenv.Load() // a missing .env file is fine
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("missing required env var: JWT_SECRET")
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		return errors.New("missing required env var: SESSION_SECRET")
	}
	switch c.Store {
	case "memory":
	case "mysql":
		dsn, err := c.DSN()
		if err != nil {
			return err
		}
		if dsn == "" {
			return errors.New("missing database configuration: set DATABASE_URL or DB_USER/DB_HOST/DB_NAME")
		}
	default:
		return fmt.Errorf("unknown STORE %q (want mysql or memory)", c.Store)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("invalid BCRYPT_COST %d", c.BcryptCost)
	}
	if c.AccessTTL <= 0 {
		return fmt.Errorf("invalid ACCESS_TOKEN_TTL %s", c.AccessTTL)
	}
	return nil
}

// DSN returns the MySQL data source name, or "" when nothing is
// configured. DATABASE_URL wins when set. Whatever the source, the result
// parses DATETIME into time.Time in UTC and reports matched rather than
// changed rows, so an UPDATE that rewrites identical values still counts
// the row.
func (c Config) DSN() (string, error) {
	var mc *mysql.Config
	switch {
	case c.DatabaseURL != "":
		parsed, err := mysql.ParseDSN(c.DatabaseURL)
		if err != nil {
			return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		mc = parsed
	case c.DBUser != "" && c.DBHost != "" && c.DBName != "":
		mc = mysql.NewConfig()
		mc.User = c.DBUser
		mc.Passwd = c.DBPass
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.DBHost, c.DBPort)
		mc.DBName = c.DBName
		if err := mc.Apply(mysql.Charset("utf8mb4", "")); err != nil {
			return "", err
		}
	default:
		return "", nil
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.ClientFoundRows = true
	return mc.FormatDSN(), nil
}

// Addr is the host:port the HTTP server binds to.
func (c Config) Addr() string { return net.JoinHostPort(c.Host, c.Port) }

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}
