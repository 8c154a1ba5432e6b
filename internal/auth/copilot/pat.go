package copilot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// patAccountID derives a stable opaque id for tokens whose owner cannot
// be resolved from the API.
func patAccountID(token string) string {
	digest := sha256.Sum256([]byte(token))
	return "pat-" + hex.EncodeToString(digest[:])[:12]
}

// FromPAT builds a credential record from a personal access token,
// skipping the device flow entirely. PATs never expire from our point of
// view and have no refresh token.
func FromPAT(ctx context.Context, token, enterpriseURL string) (auth.Record, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Record{}, fmt.Errorf("missing personal access token")
	}

	domain := "github.com"
	if enterpriseURL != "" {
		domain = NormalizeDomain(enterpriseURL)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	rec := auth.Record{
		Provider:    auth.ProviderCopilot,
		AccessToken: token,
	}

	// Profile resolution is best effort; a PAT without read:user still works
	// for API calls, it just gets a derived account id.
	if p, err := fetchProfile(ctx, client, apiBase(domain), token); err == nil {
		rec.AccountID = p.id
		if rec.AccountID == "" {
			rec.AccountID = p.login
		}
		rec = rec.WithMeta(auth.MetaLogin, p.login).WithMeta(auth.MetaEmail, p.email)
	}
	if rec.AccountID == "" {
		rec.AccountID = patAccountID(token)
	}
	if isEnterpriseDomain(domain) {
		rec = rec.WithMeta(auth.MetaEnterpriseURL, domain)
	}
	return rec, nil
}
