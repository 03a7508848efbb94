package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/address-book/internal/config"
	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/service"
)

func memoryConfig() config.Config {
	return config.Config{
		Store:         "memory",
		JWTSecret:     "jwt",
		SessionSecret: "session",
		AccessTTL:     time.Hour,
		BcryptCost:    4,
		AdminUsername: "Root",
		AdminPassword: "root-pass-1",
	}
}

func TestNew_MemoryStore(t *testing.T) {
	t.Setenv("LOGIN_RATE_LIMIT_ENABLED", "false")
	log := logrus.New()
	log.SetOutput(io.Discard)

	a, err := New(context.Background(), memoryConfig(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.IsType(t, service.NopPublisher{}, a.Events)

	ctx := context.Background()
	require.NoError(t, a.BootstrapAdmin(ctx))
	require.NoError(t, a.BootstrapAdmin(ctx), "second run finds the existing admin")

	admin, err := a.Users.GetByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.True(t, admin.MustChangePassword)
	users, err := a.Users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db_state":"memory"`)
}
