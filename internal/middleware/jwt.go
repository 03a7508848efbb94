package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/repository"
	"github.com/iliyamo/address-book/internal/utils"
)

// UserLookup loads the current state of a user by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Authenticate validates the Bearer access token and re-fetches the user it
// names, so that role changes and deletions take effect before the token
// expires. The loaded user is available through CurrentUser.
func Authenticate(tokens *utils.TokenIssuer, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperr.Unauthenticated("Unauthorized: Authorization token required.")
			}

			res := tokens.Verify(raw)
			switch res.Status {
			case utils.TokenExpired:
				return apperr.Unauthenticated("Token has expired.")
			case utils.TokenInvalid:
				return apperr.Unauthenticated("Token is invalid.")
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.GetByID(ctx, res.Claims.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.Unauthenticated("Unauthorized: User not found.")
				}
				return apperr.Unexpected("Server error during authentication.", err)
			}
			SetCurrentUser(c, &u)
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
