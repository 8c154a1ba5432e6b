package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// deviceServer fakes the GitHub login and API hosts. tokenResponses are
// served in order; the last one repeats.
func deviceServer(t *testing.T, tokenResponses []map[string]any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/device/code":
			json.NewEncoder(w).Encode(map[string]any{
				"device_code":      "dev-123",
				"user_code":        "ABCD-1234",
				"verification_uri": "https://github.com/login/device",
				"expires_in":       900,
				"interval":         0, // exercise the default
			})
		case "/login/oauth/access_token":
			i := int(polls.Add(1)) - 1
			if i >= len(tokenResponses) {
				i = len(tokenResponses) - 1
			}
			json.NewEncoder(w).Encode(tokenResponses[i])
		case "/user":
			json.NewEncoder(w).Encode(map[string]any{"id": 4242, "login": "octocat"})
		case "/user/emails":
			json.NewEncoder(w).Encode([]map[string]any{
				{"email": "oc@example.com", "primary": true, "verified": true},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func overrideBases(t *testing.T, url string) {
	t.Helper()
	oldLogin, oldAPI := loginBaseOverride, apiBaseOverride
	loginBaseOverride, apiBaseOverride = url, url
	t.Cleanup(func() {
		loginBaseOverride, apiBaseOverride = oldLogin, oldAPI
	})
}

func TestDeviceFlowPendingThenSuccess(t *testing.T) {
	srv, polls := deviceServer(t, []map[string]any{
		{"error": "authorization_pending"},
		{"access_token": "gho_token"},
	})
	overrideBases(t, srv.URL)

	flow, err := RequestDeviceCode(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", flow.Authorization().UserCode)
	assert.Equal(t, auth.StateInit, flow.State())

	flow.interval = time.Millisecond // keep the test fast

	rec, err := flow.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateComplete, flow.State())
	assert.Equal(t, "4242", rec.AccountID)
	assert.Equal(t, "octocat", rec.Meta(auth.MetaLogin))
	assert.Equal(t, "oc@example.com", rec.Meta(auth.MetaEmail))
	assert.Empty(t, rec.RefreshToken)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestDeviceFlowSlowDownAdoptsServerInterval(t *testing.T) {
	srv, _ := deviceServer(t, []map[string]any{
		{"error": "slow_down", "interval": 1},
		{"access_token": "gho_token"},
	})
	overrideBases(t, srv.URL)

	flow, err := RequestDeviceCode(context.Background(), "")
	require.NoError(t, err)
	flow.interval = time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := flow.Poll(context.Background())
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("poll loop did not finish after slow_down")
	}
	assert.Equal(t, time.Second, flow.interval)
}

func TestDeviceFlowExpiredCode(t *testing.T) {
	srv, _ := deviceServer(t, []map[string]any{{"error": "expired_token"}})
	overrideBases(t, srv.URL)

	flow, err := RequestDeviceCode(context.Background(), "")
	require.NoError(t, err)

	_, err = flow.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrCodeExpired))
	assert.Equal(t, auth.StateFailed, flow.State())
}

func TestDeviceFlowAccessDenied(t *testing.T) {
	srv, _ := deviceServer(t, []map[string]any{{"error": "access_denied"}})
	overrideBases(t, srv.URL)

	flow, err := RequestDeviceCode(context.Background(), "")
	require.NoError(t, err)

	_, err = flow.Poll(context.Background())
	assert.True(t, errors.Is(err, auth.ErrAccessDenied))
}

func TestDeviceFlowDeadlineStopsPolling(t *testing.T) {
	flow := &Flow{
		domain:   "github.com",
		interval: time.Millisecond,
		deadline: time.Now().Add(-time.Second),
		client:   http.DefaultClient,
	}

	_, err := flow.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrLoginTimeout))
	assert.Equal(t, auth.StateFailed, flow.State())
}

func TestDeviceFlowIsSingleUse(t *testing.T) {
	srv, _ := deviceServer(t, []map[string]any{{"access_token": "gho_token"}})
	overrideBases(t, srv.URL)

	flow, err := RequestDeviceCode(context.Background(), "")
	require.NoError(t, err)
	flow.interval = time.Millisecond

	_, err = flow.Poll(context.Background())
	require.NoError(t, err)

	_, err = flow.Poll(context.Background())
	assert.True(t, errors.Is(err, auth.ErrFlowConsumed))
}

func TestEnterpriseDomainRecorded(t *testing.T) {
	srv, _ := deviceServer(t, []map[string]any{{"access_token": "gho_token"}})
	overrideBases(t, srv.URL)

	flow, err := RequestDeviceCode(context.Background(), "https://ghe.corp.example/")
	require.NoError(t, err)
	flow.interval = time.Millisecond

	rec, err := flow.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghe.corp.example", rec.Meta(auth.MetaEnterpriseURL))
}

func TestFromPATResolvesProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghp_pat", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/user":
			json.NewEncoder(w).Encode(map[string]any{"id": 7, "login": "patuser", "email": "pat@example.com"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	overrideBases(t, srv.URL)

	rec, err := FromPAT(context.Background(), "ghp_pat", "")
	require.NoError(t, err)
	assert.Equal(t, "7", rec.AccountID)
	assert.Equal(t, "patuser", rec.Meta(auth.MetaLogin))
	assert.Equal(t, int64(0), rec.ExpiresAt)
}

func TestFromPATFallsBackToDerivedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()
	overrideBases(t, srv.URL)

	rec, err := FromPAT(context.Background(), "ghp_opaque", "")
	require.NoError(t, err)
	assert.True(t, len(rec.AccountID) == len("pat-")+12)
	assert.Contains(t, rec.AccountID, "pat-")

	// Same token, same derived id.
	again, err := FromPAT(context.Background(), "ghp_opaque", "")
	require.NoError(t, err)
	assert.Equal(t, rec.AccountID, again.AccountID)

	_, err = FromPAT(context.Background(), "   ", "")
	require.Error(t, err)
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://ghe.corp.example", "ghe.corp.example"},
		{"http://ghe.corp.example/path/x", "ghe.corp.example"},
		{"ghe.corp.example/", "ghe.corp.example"},
		{"  github.com  ", "github.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDomain(tt.in), tt.in)
	}
}
