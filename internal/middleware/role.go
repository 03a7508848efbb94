package middleware

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/address-book/internal/apperr"
    "github.com/iliyamo/address-book/internal/model"
)

// Authorize returns a middleware that lets the request through only when
// the authenticated user's role grants perm. It must run after
// Authenticate. Permissions are looked up from the role on every request,
// never cached on the token.
func Authorize(perm model.Permission) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            u, ok := CurrentUser(c)
            if !ok || u.Role == "" {
                return apperr.Unauthenticated("Unauthorized: Missing user credentials or role.")
            }
            perms, known := u.Role.Permissions()
            if !known {
                return apperr.Forbidden("Forbidden: Your user role is unrecognized.")
            }
            if !perms.Has(perm) {
                return apperr.Forbidden("Forbidden: You do not have sufficient permissions for this action.")
            }
            return next(c)
        }
    }
}
