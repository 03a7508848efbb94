package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/middleware"
	"github.com/iliyamo/address-book/internal/repository"
	"github.com/iliyamo/address-book/internal/utils"
)

// Password bounds apply to every password a user or admin sets. The
// minimum counts characters; the maximum counts bytes because bcrypt
// rejects input longer than 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

// checkPassword returns a field error for field when p is out of bounds.
func checkPassword(field, p string) *apperr.FieldError {
	switch {
	case utf8.RuneCountInString(p) < MinPasswordLength:
		return &apperr.FieldError{Field: field, Message: "must be at least 8 characters"}
	case len(p) > MaxPasswordBytes:
		return &apperr.FieldError{Field: field, Message: "must be at most 72 bytes"}
	}
	return nil
}

const msgInvalidCredentials = "Invalid username or password."

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Users  UserStore
	Tokens *utils.TokenIssuer
	Log    *logrus.Logger
}

func NewAuthHandler(users UserStore, tokens *utils.TokenIssuer, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{Users: users, Tokens: tokens, Log: log}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordReq struct {
	NewPassword string `json:"newPassword"`
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnCompare runs a bcrypt comparison against a fixed hash so that an
// unknown username costs as much as a wrong password.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = utils.HashPassword("not-a-real-password", utils.DefaultBcryptCost)
	})
	_ = utils.VerifyPassword(dummyHash, password)
}

// Login verifies credentials and returns an access token with the public
// user profile. Unknown user and wrong password are indistinguishable.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	req.Username = repository.NormalizeUsername(req.Username)
	if req.Username == "" || req.Password == "" {
		return apperr.Validation("Username and password are required.")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			burnCompare(req.Password)
			return apperr.Unauthenticated(msgInvalidCredentials)
		}
		return apperr.Unexpected("Server error during login.", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return apperr.Unauthenticated(msgInvalidCredentials)
	}

	access, err := h.Tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return apperr.Unexpected("Server error during login.", err)
	}
	h.Log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("login succeeded")
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Login successful",
		"token":   access.Token,
		"user":    u.Public(),
	})
}

// Logout acknowledges a logout. Tokens are stateless and stay valid until
// they expire; the client discards its copy.
func (h *AuthHandler) Logout(c echo.Context) error {
	if u, ok := middleware.CurrentUser(c); ok {
		h.Log.WithField("user_id", u.ID).Info("logout")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Logout acknowledged by server."})
}

// BeaconLogout is the fire-and-forget signal browsers send on tab close.
// It is unauthenticated and always answers 204.
func (h *AuthHandler) BeaconLogout(c echo.Context) error {
	h.Log.WithField("remote_ip", c.RealIP()).Debug("beacon logout")
	return c.NoContent(http.StatusNoContent)
}

// ChangePassword sets a new password for the current user and clears the
// must-change flag.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return apperr.Unauthenticated("Unauthorized: Authorization token required.")
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	if fe := checkPassword("newPassword", req.NewPassword); fe != nil {
		return apperr.Validation("New password must be 8 characters to 72 bytes long.", *fe)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.ChangeOwnPassword(ctx, u.ID, req.NewPassword); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Unauthenticated("Unauthorized: User not found.")
		}
		return apperr.Unexpected("Server error changing password.", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Password changed successfully."})
}

// Me returns the current user's profile as the store sees it now.
func (h *AuthHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return apperr.Unauthenticated("Unauthorized: Authorization token required.")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": u.Public()})
}

// Protected is a probe for the view_content permission.
func (h *AuthHandler) Protected(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Welcome, " + strings.TrimSpace(u.Username) + ". You can view protected content.",
		"user":    u.Public(),
	})
}
