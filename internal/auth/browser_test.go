package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testFlow(t *testing.T, tokenURL string, complete CompleteFunc) *CodeFlow {
	t.Helper()
	if complete == nil {
		complete = func(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (Record, error) {
			return Record{AccountID: "acct", AccessToken: tok.AccessToken}, nil
		}
	}
	return NewCodeFlow(CodeFlowConfig{
		Provider: ProviderCodex,
		OAuth: &oauth2.Config{
			ClientID: "test-client",
			Endpoint: oauth2.Endpoint{AuthURL: "https://example.com/auth", TokenURL: tokenURL},
		},
		CallbackPath: "/callback",
		Timeout:      5 * time.Second,
	}, complete)
}

// redirect simulates the browser hitting the local callback.
func redirect(t *testing.T, f *CodeFlow, query url.Values) *http.Response {
	t.Helper()
	resp, err := http.Get(f.cfg.OAuth.RedirectURL + "?" + query.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestCodeFlowHappyPath(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.NotEmpty(t, r.Form.Get("code_verifier"), "PKCE verifier must ride along")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "at", "token_type": "Bearer", "expires_in": 3600}`)
	}))
	defer tokenSrv.Close()

	f := testFlow(t, tokenSrv.URL, nil)
	authURL, err := f.Start()
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingRedirect, f.State())
	assert.Contains(t, authURL, "code_challenge=")

	go redirect(t, f, url.Values{"code": {"the-code"}, "state": {stateFrom(t, authURL)}})

	rec, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, f.State())
	assert.Equal(t, ProviderCodex, rec.Provider)
	assert.Equal(t, "at", rec.AccessToken)
	assert.Greater(t, rec.ExpiresAt, int64(0))
}

func TestCodeFlowRejectsStateMismatch(t *testing.T) {
	f := testFlow(t, "http://unused", nil)
	_, err := f.Start()
	require.NoError(t, err)

	go redirect(t, f, url.Values{"code": {"stolen"}, "state": {"forged"}})

	_, err = f.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStateMismatch))
	assert.Equal(t, StateFailed, f.State())

	var fe *FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ProviderCodex, fe.Provider)
}

func TestCodeFlowAccessDenied(t *testing.T) {
	f := testFlow(t, "http://unused", nil)
	_, err := f.Start()
	require.NoError(t, err)

	go redirect(t, f, url.Values{"error": {"access_denied"}})

	_, err = f.Wait(context.Background())
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestCodeFlowTimesOut(t *testing.T) {
	f := testFlow(t, "http://unused", nil)
	f.cfg.Timeout = 20 * time.Millisecond

	_, err := f.Start()
	require.NoError(t, err)

	_, err = f.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoginTimeout))
	assert.Equal(t, StateFailed, f.State())
}

func TestCodeFlowIsSingleUse(t *testing.T) {
	f := testFlow(t, "http://unused", nil)
	f.cfg.Timeout = 20 * time.Millisecond

	_, err := f.Start()
	require.NoError(t, err)
	_, err = f.Start()
	assert.True(t, errors.Is(err, ErrFlowConsumed))

	_, _ = f.Wait(context.Background())
	_, err = f.Wait(context.Background())
	assert.True(t, errors.Is(err, ErrFlowConsumed))
}

func TestStateTokensAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		tok := NewStateToken()
		assert.Len(t, tok, 32)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}
