// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/address-book/internal/config"
	"github.com/iliyamo/address-book/internal/handler"
	"github.com/iliyamo/address-book/internal/middleware"
	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/service"
	"github.com/iliyamo/address-book/internal/utils"
)

// ImportPath is the CSV upload route. It gets its own body limit.
const ImportPath = "/api/entries/import/csv"

const jsonBodyLimit = "1M"

// Deps is everything the HTTP surface needs. DB may be nil when running on
// the in-memory store; Redis may be nil to disable the login throttle.
type Deps struct {
	Log            *logrus.Logger
	Tokens         *utils.TokenIssuer
	Users          handler.UserStore
	Entries        service.EntryStore
	Events         service.EventPublisher
	DB             handler.Pinger
	Redis          *redis.Client
	RateLimit      config.RateLimitConfig
	KeySecret      string
	FrontendURL    string
	MaxImportBytes int64
}

// New builds the Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.MaxImportBytes <= 0 {
		d.MaxImportBytes = service.DefaultImportMaxBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{d.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   jsonBodyLimit,
		Skipper: func(c echo.Context) bool { return c.Request().URL.Path == ImportPath },
	}))

	entries := service.NewEntryService(d.Entries, d.Events, d.Log)
	transfer := service.NewTransferService(d.Entries, d.Events, d.Log)

	authH := handler.NewAuthHandler(d.Users, d.Tokens, d.Log)
	entryH := handler.NewEntryHandler(entries, transfer, d.MaxImportBytes)
	usersH := handler.NewUserAdminHandler(d.Users, d.Log)

	authn := middleware.Authenticate(d.Tokens, d.Users)
	throttle := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.KeySecret, d.Log)

	e.GET("/api/health", handler.Health(d.DB))

	a := e.Group("/api/auth")
	a.POST("/login", authH.Login, throttle)
	a.POST("/beacon-logout", authH.BeaconLogout)
	a.POST("/logout", authH.Logout, authn)
	a.POST("/change-password", authH.ChangePassword, authn)
	a.GET("/me", authH.Me, authn)

	e.GET("/api/protected", authH.Protected, authn, middleware.Authorize(model.PermViewContent))

	// Authentication runs at group level so that any /api/entries request
	// without a valid token is rejected before permission checks or body
	// parsing, including paths that match no route.
	g := e.Group("/api/entries", authn)
	read := middleware.Authorize(model.PermReadEntries)
	g.POST("", entryH.Create, middleware.Authorize(model.PermCreateEntry))
	g.GET("/query", entryH.Query, read)
	g.GET("/export/csv", entryH.Export, read)
	g.POST("/import/csv", entryH.Import,
		middleware.Authorize(model.PermCreateEntry),
		echomw.BodyLimit(strconv.FormatInt(d.MaxImportBytes+1<<20, 10)))
	g.GET("/:id", entryH.Get, read)
	g.PUT("/:id", entryH.Update, middleware.Authorize(model.PermUpdateEntry))
	g.DELETE("/:id", entryH.Delete, middleware.Authorize(model.PermDeleteEntry))

	u := e.Group("/api/users", authn, middleware.Authorize(model.PermManageUsers))
	u.GET("", usersH.List)
	u.POST("", usersH.Create)
	u.PUT("/:id/role", usersH.UpdateRole)
	u.PUT("/:id/password", usersH.SetPassword)
	u.POST("/:id/force-reset", usersH.ForceReset)
	u.DELETE("/:id", usersH.Delete)

	return e
}
