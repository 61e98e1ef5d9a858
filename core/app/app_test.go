package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membo/vtubot/core/bootstrap"
	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/database/databasetest"
	"github.com/membo/vtubot/core/flow"
	"github.com/membo/vtubot/core/session"
	"github.com/membo/vtubot/core/users"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		WhatsApp: config.WhatsAppConfig{
			Enabled:       true,
			Token:         "wa-token",
			PhoneNumberID: "1000",
			VerifyToken:   "verify-me",
			AppSecret:     "app-secret",
		},
		Database: databasetest.Config(t),
		Admin:    config.AdminConfig{Phone: "+234 800 000 0000"},
		AI:       config.AIConfig{APIKey: "sk-test"},
		Security: config.SecurityConfig{JWTSecret: "jwt-secret", BcryptCost: 4},
	}
	require.NoError(t, config.Normalize(cfg))
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := testConfig(t)
	a, err := New(cfg, &bootstrap.Result{DB: databasetest.Open(t)})
	require.NoError(t, err)
	return a
}

func TestHealthAndWebhookAreMounted(t *testing.T) {
	a := newTestApp(t)
	h := a.server.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSeedersProvisionAdmin(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	require.NoError(t, bootstrap.RunSeeders(ctx, a.Seeders()...))
	// Seeding twice must not fail on the existing account.
	require.NoError(t, bootstrap.RunSeeders(ctx, a.Seeders()...))

	admin, err := a.users.FindByPhone(ctx, "2348000000000")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, admin.Role)

	sess, err := a.sessions.Get(ctx, "2348000000000")
	require.NoError(t, err)
	assert.Equal(t, session.StateAdminMenu, sess.State)
}

func TestAdminTurnThroughEngine(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	reply, err := a.engine.Handle(ctx, flow.Inbound{Identity: "2348000000000", Text: "1", Channel: "whatsapp"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Total Users: 1")
}
