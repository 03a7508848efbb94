package middleware

// identity.go holds the context keys and accessors shared by the auth
// middleware and the handlers.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/address-book/internal/model"
)

const userKey = "user"

// SetCurrentUser stores the authenticated user on the request context.
func SetCurrentUser(c echo.Context, u *model.User) { c.Set(userKey, u) }

// CurrentUser returns the user loaded by Authenticate.
func CurrentUser(c echo.Context) (*model.User, bool) {
    u, ok := c.Get(userKey).(*model.User)
    return u, ok && u != nil
}

// userID returns the authenticated user id as a string, or "anon" when the
// request is not authenticated.
func userID(c echo.Context) string {
    if u, ok := CurrentUser(c); ok {
        return strconv.FormatUint(u.ID, 10)
    }
    return "anon"
}
