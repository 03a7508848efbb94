package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/repository"
	"github.com/iliyamo/address-book/internal/utils"
)

type fakeUsers map[uint64]model.User

func (f fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	if id == 500 {
		return model.User{}, errors.New("db down")
	}
	u, ok := f[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func newContext(header string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/entries/query", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error { return c.NoContent(http.StatusOK) }

func assertAppErr(t *testing.T, err error, status int, msg string) {
	t.Helper()
	ae, isApp := apperr.As(err)
	require.True(t, isApp, "got %v", err)
	assert.Equal(t, status, ae.Status())
	if msg != "" {
		assert.Equal(t, msg, ae.Message)
	}
}

func TestAuthenticate(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	iss := utils.NewTokenIssuer("secret", time.Hour).WithClock(func() time.Time { return now })
	users := fakeUsers{1: {ID: 1, Username: "ann", Role: model.RoleEditor}}

	valid, err := iss.Issue(1, "admin")
	require.NoError(t, err)
	ghost, err := iss.Issue(2, "user")
	require.NoError(t, err)
	broken, err := iss.Issue(500, "user")
	require.NoError(t, err)

	t.Run("missing header", func(t *testing.T) {
		c, _ := newContext("")
		assertAppErr(t, Authenticate(iss, users)(okHandler)(c), http.StatusUnauthorized, "Unauthorized: Authorization token required.")
	})
	t.Run("wrong scheme", func(t *testing.T) {
		c, _ := newContext("Basic abc")
		assertAppErr(t, Authenticate(iss, users)(okHandler)(c), http.StatusUnauthorized, "Unauthorized: Authorization token required.")
	})
	t.Run("invalid token", func(t *testing.T) {
		c, _ := newContext("Bearer nope")
		assertAppErr(t, Authenticate(iss, users)(okHandler)(c), http.StatusUnauthorized, "Token is invalid.")
	})
	t.Run("expired token", func(t *testing.T) {
		later := iss.WithClock(func() time.Time { return now.Add(61 * time.Minute) })
		c, _ := newContext("Bearer " + valid.Token)
		assertAppErr(t, Authenticate(later, users)(okHandler)(c), http.StatusUnauthorized, "Token has expired.")
	})
	t.Run("deleted user", func(t *testing.T) {
		c, _ := newContext("Bearer " + ghost.Token)
		assertAppErr(t, Authenticate(iss, users)(okHandler)(c), http.StatusUnauthorized, "Unauthorized: User not found.")
	})
	t.Run("store failure", func(t *testing.T) {
		c, _ := newContext("Bearer " + broken.Token)
		assertAppErr(t, Authenticate(iss, users)(okHandler)(c), http.StatusInternalServerError, "")
	})
	t.Run("valid token loads current role", func(t *testing.T) {
		c, rec := newContext("bearer " + valid.Token)
		require.NoError(t, Authenticate(iss, users)(okHandler)(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		u, found := CurrentUser(c)
		require.True(t, found)
		assert.Equal(t, model.RoleEditor, u.Role, "role comes from the store, not the token")
	})
}

func TestAuthorize(t *testing.T) {
	run := func(u *model.User, perm model.Permission) error {
		c, _ := newContext("")
		if u != nil {
			SetCurrentUser(c, u)
		}
		return Authorize(perm)(okHandler)(c)
	}

	assertAppErr(t, run(nil, model.PermReadEntries), http.StatusUnauthorized, "Unauthorized: Missing user credentials or role.")
	assertAppErr(t, run(&model.User{ID: 1}, model.PermReadEntries), http.StatusUnauthorized, "Unauthorized: Missing user credentials or role.")
	assertAppErr(t, run(&model.User{ID: 1, Role: "root"}, model.PermReadEntries), http.StatusForbidden, "Forbidden: Your user role is unrecognized.")
	assertAppErr(t, run(&model.User{ID: 1, Role: model.RoleUser}, model.PermCreateEntry), http.StatusForbidden,
		"Forbidden: You do not have sufficient permissions for this action.")
	assertAppErr(t, run(&model.User{ID: 1, Role: model.RoleViewer}, model.PermCreateEntry), http.StatusForbidden, "")
	assertAppErr(t, run(&model.User{ID: 1, Role: model.RoleEditor}, model.PermDeleteEntry), http.StatusForbidden, "")

	assert.NoError(t, run(&model.User{ID: 1, Role: model.RoleEditor}, model.PermCreateEntry))
	assert.NoError(t, run(&model.User{ID: 1, Role: model.RoleAdmin}, model.PermManageUsers))
	assert.NoError(t, run(&model.User{ID: 1, Role: model.RoleUser}, model.PermReadEntries))
}

func TestBearerToken(t *testing.T) {
	tok, found := bearerToken("Bearer abc.def")
	assert.True(t, found)
	assert.Equal(t, "abc.def", tok)

	for _, h := range []string{"", "Bearer", "Bearer   ", "Token abc", "abc"} {
		_, found := bearerToken(h)
		assert.False(t, found, h)
	}
}
