package antigravity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// NewLoginFlow builds a browser login session. The caller opens the
// returned auth URL and then calls Wait for the finished record.
func NewLoginFlow() *auth.CodeFlow {
	return auth.NewCodeFlow(auth.CodeFlowConfig{
		Provider:      auth.ProviderAntigravity,
		OAuth:         OAuthConfig(),
		PreferredPort: CallbackPort,
		CallbackPath:  CallbackPath,
		AuthCodeOptions: []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
		},
	}, completeLogin)
}

// completeLogin fetches the account identity and Code Assist project after
// the code exchange. The email is the account's identity; a login without
// a resolvable email cannot be stored.
func completeLogin(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (auth.Record, error) {
	client := cfg.Client(ctx, tok)

	email, name, err := fetchUserInfo(ctx, client)
	if err != nil {
		return auth.Record{}, err
	}
	if email == "" {
		return auth.Record{}, fmt.Errorf("userinfo response carried no email address")
	}

	rec := auth.Record{
		AccountID:    email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	rec = rec.WithMeta(auth.MetaEmail, email).WithMeta("name", name)

	// Project discovery is best effort. A missing project id degrades some
	// API calls but must not fail the login.
	projectID, tier, err := FetchProjectInfo(ctx, client)
	if err == nil {
		rec = rec.WithMeta(auth.MetaProjectID, projectID).WithMeta(auth.MetaPlanType, tier)
	}
	return rec, nil
}

func fetchUserInfo(ctx context.Context, client *http.Client) (email, name string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("userinfo request returned %s", resp.Status)
	}

	var userInfo struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", "", fmt.Errorf("failed to decode user info: %w", err)
	}
	return userInfo.Email, userInfo.Name, nil
}
