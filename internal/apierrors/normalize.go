// Package apierrors folds provider-specific backend error codes into a
// small, stable taxonomy with actionable guidance. The mapping is a closed
// table per provider; anything unrecognized passes through as Unknown with
// the original message preserved for diagnostics.
package apierrors

import (
	"strings"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// Category is the normalized error class surfaced to callers.
type Category string

const (
	ContextLengthExceeded Category = "context_length_exceeded"
	QuotaExhausted        Category = "quota_exhausted"
	PlanUpgradeRequired   Category = "plan_upgrade_required"
	InvalidPrompt         Category = "invalid_prompt"
	RateLimited           Category = "rate_limited"
	AuthExpired           Category = "auth_expired"
	Unknown               Category = "unknown"
)

// Normalized is the classified form of a provider error.
type Normalized struct {
	Provider auth.Provider
	Category Category
	Code     string // the raw provider code
	Message  string // original provider message, always preserved
	Guidance string // human-readable next step
}

func (n Normalized) Error() string {
	if n.Guidance != "" {
		return n.Guidance
	}
	if n.Message != "" {
		return n.Message
	}
	return string(n.Category)
}

var guidance = map[Category]string{
	ContextLengthExceeded: "request exceeds the model's context window - shorten the conversation or prompt",
	QuotaExhausted:        "quota exhausted - check billing or wait for the usage window to reset",
	PlanUpgradeRequired:   "this model is not included in the current plan - upgrade the subscription to use it",
	InvalidPrompt:         "the prompt was rejected by the provider's content policy",
	RateLimited:           "rate limited - retry after a short backoff",
	AuthExpired:           "credentials rejected by the API - run 'authhub login' again",
}

// codexCodes covers the ChatGPT/Codex backend error codes.
var codexCodes = map[string]Category{
	"context_length_exceeded": ContextLengthExceeded,
	"usage_limit_reached":     QuotaExhausted,
	"usage_quota_exceeded":    QuotaExhausted,
	"usage_not_included":      PlanUpgradeRequired,
	"model_not_included":      PlanUpgradeRequired,
	"invalid_prompt":          InvalidPrompt,
	"rate_limit_exceeded":     RateLimited,
	"token_expired":           AuthExpired,
	"invalid_api_key":         AuthExpired,
}

// antigravityCodes covers the Google RPC status strings the Antigravity
// endpoints return.
var antigravityCodes = map[string]Category{
	"resource_exhausted":      QuotaExhausted,
	"quota_exceeded":          QuotaExhausted,
	"rate_limit_exceeded":     RateLimited,
	"permission_denied":       PlanUpgradeRequired,
	"invalid_argument":        InvalidPrompt,
	"failed_precondition":     PlanUpgradeRequired,
	"unauthenticated":         AuthExpired,
	"context_length_exceeded": ContextLengthExceeded,
}

// copilotCodes covers the Copilot chat API error codes.
var copilotCodes = map[string]Category{
	"model_not_supported":     PlanUpgradeRequired,
	"quota_exceeded":          QuotaExhausted,
	"quota_limit_reached":     QuotaExhausted,
	"off_topic":               InvalidPrompt,
	"content_filter":          InvalidPrompt,
	"rate_limit_exceeded":     RateLimited,
	"token_expired":           AuthExpired,
	"bad_credentials":         AuthExpired,
	"context_length_exceeded": ContextLengthExceeded,
}

func tableFor(p auth.Provider) map[string]Category {
	switch p {
	case auth.ProviderCodex:
		return codexCodes
	case auth.ProviderAntigravity:
		return antigravityCodes
	case auth.ProviderCopilot:
		return copilotCodes
	}
	return nil
}

// Normalize classifies a raw provider error code and message. It never
// fails: an unmapped code yields Unknown with the original text intact.
func Normalize(p auth.Provider, code, message string) Normalized {
	normalized := strings.ToLower(strings.TrimSpace(code))

	category, ok := tableFor(p)[normalized]
	if !ok {
		msg := strings.TrimSpace(message)
		if msg == "" {
			msg = normalized
		}
		return Normalized{Provider: p, Category: Unknown, Code: code, Message: msg}
	}

	return Normalized{
		Provider: p,
		Category: category,
		Code:     normalized,
		Message:  strings.TrimSpace(message),
		Guidance: guidance[category],
	}
}
