// Package app assembles the application context: store, token issuer,
// event publisher and the optional Redis client. Everything the HTTP layer
// needs is constructed here and passed in explicitly.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/address-book/internal/config"
	"github.com/iliyamo/address-book/internal/database"
	"github.com/iliyamo/address-book/internal/handler"
	"github.com/iliyamo/address-book/internal/memstore"
	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/repository"
	"github.com/iliyamo/address-book/internal/router"
	"github.com/iliyamo/address-book/internal/service"
	"github.com/iliyamo/address-book/internal/utils"
)

// App is the explicitly constructed application context.
type App struct {
	Config    config.Config
	RateLimit config.RateLimitConfig
	Log       *logrus.Logger

	DB      *sql.DB // nil on the memory store
	Redis   *redis.Client
	Users   handler.UserStore
	Entries service.EntryStore
	Tokens  *utils.TokenIssuer
	Events  service.EventPublisher
}

// New opens the configured store, applies migrations and connects the
// optional services. Redis and RabbitMQ are optional; the database is not.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	rl, err := config.LoadRateLimitConfig()
	if err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}
	a := &App{
		Config:    cfg,
		RateLimit: rl,
		Log:       log,
		Tokens:    utils.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL),
		Events:    service.NopPublisher{},
	}

	switch cfg.Store {
	case "memory":
		st := memstore.New(cfg.BcryptCost)
		a.Users, a.Entries = st.Users, st.Entries
		log.Warn("using in-memory store; data is lost on exit")
	default:
		dsn, err := cfg.DSN()
		if err != nil {
			return nil, err
		}
		db, err := database.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.Users = repository.NewUserRepo(db, cfg.BcryptCost)
		a.Entries = repository.NewEntryRepo(db)
	}

	if a.RateLimit.Enabled {
		rc, err := config.LoadRedisConfig()
		if err != nil {
			a.closeDB()
			return nil, fmt.Errorf("redis config: %w", err)
		}
		a.Redis, err = config.NewRedisClient(ctx, rc)
		switch {
		case err != nil:
			log.WithError(err).Warn("redis unavailable; login throttle disabled")
		case a.Redis == nil:
			log.Info("redis disabled; login throttle off")
		}
	}
	if cfg.RabbitMQURL != "" {
		a.Events = service.NewAMQPPublisher(cfg.RabbitMQURL, log)
	}
	return a, nil
}

// BootstrapAdmin creates the configured administrator when no user has
// that name. The account must change its password at first login.
func (a *App) BootstrapAdmin(ctx context.Context) error {
	name, pass := a.Config.AdminUsername, a.Config.AdminPassword
	if name == "" || pass == "" {
		return nil
	}
	_, err := a.Users.GetByUsername(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	id, err := a.Users.Create(ctx, name, pass, model.RoleAdmin)
	if err != nil && !errors.Is(err, repository.ErrUsernameExists) {
		return err
	}
	a.Log.WithFields(logrus.Fields{"user_id": id, "username": repository.NormalizeUsername(name)}).Info("bootstrap admin created")
	return nil
}

// Router builds the HTTP surface on top of the application context.
func (a *App) Router() *echo.Echo {
	d := router.Deps{
		Log:            a.Log,
		Tokens:         a.Tokens,
		Users:          a.Users,
		Entries:        a.Entries,
		Events:         a.Events,
		Redis:          a.Redis,
		RateLimit:      a.RateLimit,
		KeySecret:      a.Config.SessionSecret,
		FrontendURL:    a.Config.FrontendURL,
		MaxImportBytes: a.Config.ImportMaxBytes,
	}
	if a.DB != nil {
		d.DB = a.DB
	}
	return router.New(d)
}

func (a *App) closeDB() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
