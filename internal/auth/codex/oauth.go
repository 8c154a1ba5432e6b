// Package codex implements the OpenAI Codex browser login and refresh.
// Codex is a public OAuth client: PKCE instead of a client secret, and the
// account identity rides inside the issued JWTs.
package codex

import (
	"os"

	"golang.org/x/oauth2"
)

const DefaultClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

const (
	CallbackPort = 1455
	CallbackPath = "/auth/callback"
)

var Scopes = []string{"openid", "profile", "email", "offline_access"}

// endpoint is a var so tests can point the flow at a local server.
var endpoint = oauth2.Endpoint{
	AuthURL:  "https://auth.openai.com/oauth/authorize",
	TokenURL: "https://auth.openai.com/oauth/token",
}

// OAuthConfig returns the OAuth2 config for Codex authentication.
func OAuthConfig() *oauth2.Config {
	clientID := os.Getenv("CODEX_CLIENT_ID")
	if clientID == "" {
		clientID = DefaultClientID
	}
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   Scopes,
		Endpoint: endpoint,
	}
}
