package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pysugar/llm-auth-hub/internal/auth"
	"github.com/pysugar/llm-auth-hub/internal/db"
	"github.com/pysugar/llm-auth-hub/internal/hub"
	"github.com/pysugar/llm-auth-hub/internal/registry"
	"github.com/pysugar/llm-auth-hub/internal/store"
)

func testServer(t *testing.T) (*httptest.Server, *hub.Service) {
	t.Helper()
	gdb, err := db.OpenInMemory()
	require.NoError(t, err)
	service := hub.New(registry.New(store.New(t.TempDir())), db.NewEventLog(gdb), zerolog.Nop())
	srv := httptest.NewServer(New(service, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv, service
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func doReq(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	var body map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestListAccounts(t *testing.T) {
	srv, service := testServer(t)
	require.NoError(t, service.SaveLogin(auth.Record{
		Provider: auth.ProviderCodex, AccountID: "acct-1", AccessToken: "at",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}))

	var body struct {
		Accounts []registry.Summary `json:"accounts"`
	}
	resp := getJSON(t, srv.URL+"/api/providers/codex/accounts", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "acct-1", body.Accounts[0].AccountID)
	assert.True(t, body.Accounts[0].Active)

	resp = doReq(t, http.MethodGet, srv.URL+"/api/providers/nonsense/accounts", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActivateAndRemove(t *testing.T) {
	srv, service := testServer(t)
	require.NoError(t, service.SaveLogin(auth.Record{Provider: auth.ProviderCopilot, AccountID: "a", AccessToken: "t"}))
	require.NoError(t, service.SaveLogin(auth.Record{Provider: auth.ProviderCopilot, AccountID: "b", AccessToken: "t"}))

	resp := doReq(t, http.MethodPost, srv.URL+"/api/providers/copilot/accounts/a/activate", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	accounts, err := service.Accounts(auth.ProviderCopilot)
	require.NoError(t, err)
	assert.Equal(t, "a", accounts[0].AccountID)
	assert.True(t, accounts[0].Active)

	resp = doReq(t, http.MethodDelete, srv.URL+"/api/providers/copilot/accounts/a", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doReq(t, http.MethodPost, srv.URL+"/api/providers/copilot/accounts/ghost/activate", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefreshEndpointSkipsFreshToken(t *testing.T) {
	srv, service := testServer(t)
	require.NoError(t, service.SaveLogin(auth.Record{
		Provider: auth.ProviderCodex, AccountID: "acct-1", AccessToken: "secret-token",
		RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}))

	resp := doReq(t, http.MethodPost, srv.URL+"/api/providers/codex/accounts/acct-1/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "acct-1", body["account_id"])
	for k, v := range body {
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, "secret-token", "tokens must never appear in responses", k)
		}
	}
}

func TestValidateEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp := doReq(t, http.MethodPost, srv.URL+"/api/providers/codex/validate", `{"model": "gpt-5.2"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doReq(t, http.MethodPost, srv.URL+"/api/providers/codex/validate", `{"model": "gpt-4o"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "gpt-4o", body["model"])
}

func TestStatusAndEventsEndpoints(t *testing.T) {
	srv, service := testServer(t)
	require.NoError(t, service.SaveLogin(auth.Record{Provider: auth.ProviderCodex, AccountID: "a", AccessToken: "t"}))

	var status struct {
		Providers []hub.ProviderStatus `json:"providers"`
	}
	resp := getJSON(t, srv.URL+"/api/status", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, status.Providers, 3)

	var events struct {
		Events []db.AuthEvent `json:"events"`
	}
	resp = getJSON(t, srv.URL+"/api/events?limit=5", &events)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, events.Events, 1)
	assert.Equal(t, db.EventLogin, events.Events[0].Kind)
}

func TestAdminPasswordGuardsAPI(t *testing.T) {
	t.Setenv("AUTHHUB_ADMIN_PASSWORD", "hunter2")
	srv, _ := testServer(t)

	resp := doReq(t, http.MethodGet, srv.URL+"/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/status", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "hunter2")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)

	// Health stays open.
	open := doReq(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, open.StatusCode)
}
