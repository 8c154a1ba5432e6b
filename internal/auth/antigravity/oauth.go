// Package antigravity implements the Google-backed Antigravity login,
// refresh and project discovery.
package antigravity

import (
	"os"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// OAuth credentials from Antigravity (for learning/research purposes)
// Default values are used if environment variables are not set.
const (
	DefaultClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	DefaultClientSecret = "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"
)

// CallbackPort is registered with the OAuth client; a random port is used
// when it is already taken.
const (
	CallbackPort = 51121
	CallbackPath = "/oauth-callback"
)

// Scopes required for accessing Google's internal Gemini API
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/cclog",
	"https://www.googleapis.com/auth/experimentsandconfigs",
}

// endpoint is a var so tests can point the flow at a local server.
var endpoint = googleOAuth.Endpoint

// userInfoURL is a var for the same reason.
var userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// OAuthConfig returns the OAuth2 config for Antigravity authentication.
func OAuthConfig() *oauth2.Config {
	clientID := os.Getenv("ANTIGRAVITY_CLIENT_ID")
	if clientID == "" {
		clientID = DefaultClientID
	}

	clientSecret := os.Getenv("ANTIGRAVITY_CLIENT_SECRET")
	if clientSecret == "" {
		clientSecret = DefaultClientSecret
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}
