package codex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// fakeJWT builds an unsigned token with the given payload claims.
func fakeJWT(t *testing.T, payload map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

func TestParseClaims(t *testing.T) {
	token := fakeJWT(t, map[string]any{
		"email": "user@example.com",
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_account_id": "acct-uuid",
			"chatgpt_plan_type":  "plus",
		},
	})

	claims, err := parseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-uuid", claims.Auth.ChatGPTAccountID)
	assert.Equal(t, "plus", claims.Auth.ChatGPTPlanType)
	assert.Equal(t, "user@example.com", claims.emailFrom())

	_, err = parseClaims("not-a-jwt")
	require.Error(t, err)
}

func TestEmailCandidateOrder(t *testing.T) {
	claims := tokenClaims{
		PreferredUsername: "user2@example.com",
		Auth:              authClaims{UserEmail: "user3@example.com"},
	}
	assert.Equal(t, "user2@example.com", claims.emailFrom())

	// Non-email usernames are skipped.
	claims.PreferredUsername = "just-a-handle"
	assert.Equal(t, "user3@example.com", claims.emailFrom())
}

func TestCompleteLoginPrefersAccountID(t *testing.T) {
	access := fakeJWT(t, map[string]any{
		"https://api.openai.com/auth": map[string]any{"chatgpt_account_id": "acct-1"},
	})
	idToken := fakeJWT(t, map[string]any{
		"email": "id@example.com",
		"https://api.openai.com/auth": map[string]any{"chatgpt_plan_type": "pro"},
	})

	tok := (&oauth2.Token{AccessToken: access, RefreshToken: "rt"}).
		WithExtra(map[string]interface{}{"id_token": idToken})

	rec, err := completeLogin(context.Background(), nil, tok)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", rec.AccountID)
	assert.Equal(t, "id@example.com", rec.Meta(auth.MetaEmail))
	assert.Equal(t, "pro", rec.Meta(auth.MetaPlanType))
}

func TestCompleteLoginRejectsAnonymousToken(t *testing.T) {
	access := fakeJWT(t, map[string]any{"sub": "nothing-useful"})
	_, err := completeLogin(context.Background(), nil, &oauth2.Token{AccessToken: access})
	require.Error(t, err)
}

func TestRefreshUpdatesIdentityMetadata(t *testing.T) {
	fresh := fakeJWT(t, map[string]any{
		"email": "user@example.com",
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_account_id": "acct-1",
			"chatgpt_plan_type":  "plus",
		},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token": %q, "refresh_token": "rt2", "expires_in": 600, "token_type": "Bearer"}`, fresh)
	}))
	defer srv.Close()

	old := endpoint
	endpoint = oauth2.Endpoint{TokenURL: srv.URL}
	t.Cleanup(func() { endpoint = old })

	rec, err := Refresh(context.Background(), auth.Record{
		Provider:     auth.ProviderCodex,
		AccountID:    "acct-1",
		RefreshToken: "rt1",
	})
	require.NoError(t, err)
	assert.Equal(t, fresh, rec.AccessToken)
	assert.Equal(t, "rt2", rec.RefreshToken, "rotated refresh token adopted")
	assert.Equal(t, "plus", rec.Meta(auth.MetaPlanType))
}

func TestRefreshInvalidGrantRequiresReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_grant"}`)
	}))
	defer srv.Close()

	old := endpoint
	endpoint = oauth2.Endpoint{TokenURL: srv.URL}
	t.Cleanup(func() { endpoint = old })

	_, err := Refresh(context.Background(), auth.Record{RefreshToken: "dead"})
	require.Error(t, err)
	assert.True(t, auth.IsReauthRequired(err))
}

func TestRefreshServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream blew up", http.StatusBadGateway)
	}))
	defer srv.Close()

	old := endpoint
	endpoint = oauth2.Endpoint{TokenURL: srv.URL}
	t.Cleanup(func() { endpoint = old })

	_, err := Refresh(context.Background(), auth.Record{RefreshToken: "rt"})
	require.Error(t, err)
	assert.True(t, auth.IsTransientRefresh(err))
}
