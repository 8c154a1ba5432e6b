// Package auth defines the credential model shared by all OAuth providers
// and the token refresh machinery built on top of it.
package auth

import (
	"fmt"
	"time"
)

// Provider identifies one of the supported OAuth backends.
type Provider string

const (
	// ProviderAntigravity is the Google-backed Antigravity API (browser code flow with PKCE).
	ProviderAntigravity Provider = "antigravity"
	// ProviderCodex is the OpenAI Codex backend (browser code flow with PKCE).
	ProviderCodex Provider = "codex"
	// ProviderCopilot is GitHub Copilot (device-code flow).
	ProviderCopilot Provider = "copilot"
)

// Providers lists all supported providers in display order.
var Providers = []Provider{ProviderAntigravity, ProviderCodex, ProviderCopilot}

// ParseProvider validates a provider name from user input.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderAntigravity, ProviderCodex, ProviderCopilot:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown provider %q (expected one of antigravity, codex, copilot)", s)
}

// Record holds one account's OAuth credentials for a provider.
// AccountID is opaque and provider-specific: an email for antigravity,
// a ChatGPT account UUID for codex, a numeric user id or login for copilot.
type Record struct {
	Provider     Provider          `json:"provider"`
	AccountID    string            `json:"account_id"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    int64             `json:"expires_at"` // unix seconds; 0 means no known expiry
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Common metadata keys. Providers only set the ones they know about.
const (
	MetaEmail         = "email"
	MetaProjectID     = "project_id"
	MetaPlanType      = "plan_type"
	MetaLogin         = "login"
	MetaScopes        = "scopes"
	MetaEnterpriseURL = "enterprise_url"
)

// Meta returns a metadata value or "" when absent.
func (r Record) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// WithMeta returns a copy of the record with one metadata key set.
// Empty values are dropped so records round-trip cleanly through JSON.
func (r Record) WithMeta(key, value string) Record {
	meta := make(map[string]string, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	if value == "" {
		delete(meta, key)
	} else {
		meta[key] = value
	}
	if len(meta) == 0 {
		meta = nil
	}
	r.Metadata = meta
	return r
}

// ExpiresIn reports how long until the access token expires.
// Records without a known expiry report a very large duration.
func (r Record) ExpiresIn(now time.Time) time.Duration {
	if r.ExpiresAt == 0 {
		return time.Duration(1<<62 - 1)
	}
	return time.Unix(r.ExpiresAt, 0).Sub(now)
}

// Key returns the dedup key for this record, unique across providers.
func (r Record) Key() string {
	return string(r.Provider) + "/" + r.AccountID
}
