package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmark/internal/entitlement"
)

type fakeVerifier struct {
	state     entitlement.State
	checks    atomic.Int32
	purchases atomic.Int32
}

func (f *fakeVerifier) Current() entitlement.State { return f.state }
func (f *fakeVerifier) CheckAgain()                { f.checks.Add(1) }
func (f *fakeVerifier) PurchaseRequested()         { f.purchases.Add(1) }

func TestLicenseStatus(t *testing.T) {
	verifier := &fakeVerifier{state: entitlement.Checking(1, "retrying in 300ms")}
	h := NewLicenseHandler(verifier, "https://shelfmark.app/buy", nil)

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, entitlement.KindChecking, body.State.Kind)
	assert.Equal(t, uint(1), body.State.Attempt)
	assert.Equal(t, "retrying in 300ms", body.State.Message)
}

func TestLicenseCheckTriggersVerification(t *testing.T) {
	verifier := &fakeVerifier{state: entitlement.Failed("down")}
	h := NewLicenseHandler(verifier, "https://shelfmark.app/buy", nil)

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/check", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, int32(1), verifier.checks.Load())
}

func TestLicensePurchase(t *testing.T) {
	verifier := &fakeVerifier{state: entitlement.Unlicensed(entitlement.ReasonNoPurchase)}
	h := NewLicenseHandler(verifier, "https://shelfmark.app/buy", nil)

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/purchase", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, int32(1), verifier.purchases.Load())

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "https://shelfmark.app/buy", body["purchase_url"])
}

func TestHealthCheck(t *testing.T) {
	verifier := &fakeVerifier{state: entitlement.Licensed()}
	h := NewHealthHandler(verifier)

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, entitlement.KindLicensed, body.License)
}
