package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tally/internal/tally/app"
	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/tenancy"
)

func testConfig(t *testing.T) app.Config {
	t.Helper()

	dir := t.TempDir()
	return app.Config{
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "text",
		DatabaseDriver:       app.DriverSQLite,
		DatabaseDSN:          filepath.Join(dir, "tally.db"),
		PepperFile:           filepath.Join(dir, "pepper"),
		InvitationTTL:        time.Hour,
		ResetTokenTTL:        time.Minute,
		RedisTTL:             time.Minute,
		HousekeepingInterval: time.Hour,
		OpsAddr:              "127.0.0.1:0",
		ShutdownGracePeriod:  time.Second,
	}
}

func TestApplicationWiring(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	a, err := app.New(ctx, cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"cache":"ok"`)

	u, err := a.Services.Users.Register(ctx, "Owner@Example.com", "Owner", "correct horse battery")
	require.NoError(t, err)
	scope, err := tenancy.Load(ctx, a.Store(), u.ID)
	require.NoError(t, err)

	b := domain.Budget{Name: "Groceries", Amount: 50_000, StartDate: time.Now().UTC()}
	require.NoError(t, a.Services.Budgets.Create(ctx, scope, &b))
	_, err = a.Services.Budgets.Summary(ctx, scope, b.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists("tally:budget:"+b.ID+":summary"))

	require.NoError(t, a.Shutdown())
}

func TestApplicationRunStopsOnCancel(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRejectsUnreachableCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := app.New(context.Background(), cfg)
	require.Error(t, err)
}
