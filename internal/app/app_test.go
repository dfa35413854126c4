package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmark/internal/config"
)

func newTestApplication(t *testing.T) *Application {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Storage.DatabasePath = filepath.Join(dir, "shelfmark.db")
	cfg.Covers.CacheDir = filepath.Join(dir, "covers")
	cfg.Export.Dir = filepath.Join(dir, "exports")
	cfg.Licensing.LicenseFile = filepath.Join(dir, "license.json")
	cfg.Logging.Output = "console"

	a, err := NewApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Verifier.Close()
		a.Hub.Stop()
		a.Store.Close()
	})
	return a
}

func TestApplicationHealthBypassesGate(t *testing.T) {
	a := newTestApplication(t)

	srv := httptest.NewServer(a.Server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestApplicationGateBlocksShelfWhenUnlicensed(t *testing.T) {
	a := newTestApplication(t)

	srv := httptest.NewServer(a.Server.Handler)
	defer srv.Close()

	// Verification never started, so the state is Idle and the shelf is
	// behind the gate.
	resp, err := http.Get(srv.URL + "/api/bookmarks")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestApplicationLicenseStatusReachableWhenUnlicensed(t *testing.T) {
	a := newTestApplication(t)

	srv := httptest.NewServer(a.Server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/license/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	state, ok := body["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "idle", state["kind"])
}
