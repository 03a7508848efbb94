package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/middleware"
	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/repository"
)

// UserAdminHandler serves /api/users for holders of manage_users.
type UserAdminHandler struct {
	Users UserStore
	Log   *logrus.Logger
}

func NewUserAdminHandler(users UserStore, log *logrus.Logger) *UserAdminHandler {
	return &UserAdminHandler{Users: users, Log: log}
}

type createUserReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type roleReq struct {
	Role string `json:"role"`
}

type setPasswordReq struct {
	NewPassword string `json:"newPassword"`
}

func parseUserID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("Invalid user ID format")
	}
	return id, nil
}

func userStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("User not found")
	case errors.Is(err, repository.ErrUsernameExists):
		return apperr.Conflict("Username already exists.", err)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict("User still owns entries and cannot be deleted.", err)
	}
	return apperr.Unexpected("Server error managing users.", err)
}

func (h *UserAdminHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	users, err := h.Users.List(ctx)
	if err != nil {
		return userStoreError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": users})
}

// Create adds a user. New users must change their password at first login.
func (h *UserAdminHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	username := repository.NormalizeUsername(req.Username)
	var fields []apperr.FieldError
	if len(username) < 3 || len(username) > 191 || strings.ContainsAny(username, " \t") {
		fields = append(fields, apperr.FieldError{Field: "username", Message: "Username must be 3-191 characters without spaces"})
	}
	if fe := checkPassword("password", req.Password); fe != nil {
		fields = append(fields, *fe)
	}
	role := model.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		r, ok := model.ParseRole(req.Role)
		if !ok {
			fields = append(fields, apperr.FieldError{Field: "role", Message: "Role must be one of user, editor, admin"})
		}
		role = r
	}
	if len(fields) > 0 {
		return apperr.Validation("Validation failed", fields...)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	id, err := h.Users.Create(ctx, username, req.Password, role)
	if err != nil {
		return userStoreError(err)
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return userStoreError(err)
	}
	h.audit(c, "user.created", id)
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": u})
}

func (h *UserAdminHandler) UpdateRole(c echo.Context) error {
	id, err := parseUserID(c)
	if err != nil {
		return err
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		return apperr.Validation("Role must be one of user, editor, admin",
			apperr.FieldError{Field: "role", Message: "unknown role"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.UpdateRole(ctx, id, role); err != nil {
		return userStoreError(err)
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return userStoreError(err)
	}
	h.audit(c, "user.role_updated", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": u})
}

// SetPassword replaces a user's password on their behalf. The user must
// choose a new one at next login.
func (h *UserAdminHandler) SetPassword(c echo.Context) error {
	id, err := parseUserID(c)
	if err != nil {
		return err
	}
	var req setPasswordReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	if fe := checkPassword("newPassword", req.NewPassword); fe != nil {
		return apperr.Validation("New password must be 8 characters to 72 bytes long.", *fe)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.SetPasswordByAdmin(ctx, id, req.NewPassword); err != nil {
		return userStoreError(err)
	}
	h.audit(c, "user.password_set", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Password updated. The user must change it at next login."})
}

func (h *UserAdminHandler) ForceReset(c echo.Context) error {
	id, err := parseUserID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.ForcePasswordReset(ctx, id); err != nil {
		return userStoreError(err)
	}
	h.audit(c, "user.password_reset_forced", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "User must change password at next login."})
}

// Delete removes a user. Admins cannot delete themselves, and users who
// still own entries are kept.
func (h *UserAdminHandler) Delete(c echo.Context) error {
	id, err := parseUserID(c)
	if err != nil {
		return err
	}
	if me, ok := middleware.CurrentUser(c); ok && me.ID == id {
		return apperr.Validation("You cannot delete your own account.")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.Delete(ctx, id); err != nil {
		return userStoreError(err)
	}
	h.audit(c, "user.deleted", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"id": id}})
}

func (h *UserAdminHandler) audit(c echo.Context, action string, target uint64) {
	f := logrus.Fields{"action": action, "target_user_id": target}
	if me, ok := middleware.CurrentUser(c); ok {
		f["user_id"] = me.ID
	}
	h.Log.WithFields(f).Info("user admin")
}
