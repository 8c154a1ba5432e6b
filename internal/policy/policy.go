// Package policy validates requested model ids against each provider's
// OAuth-tier model policy before any network call is issued, so a rejected
// request never consumes quota or a round trip.
package policy

import (
	"fmt"
	"strings"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// ModelNotAllowedError is the policy rejection for a model id.
type ModelNotAllowedError struct {
	Provider auth.Provider
	Model    string
}

func (e *ModelNotAllowedError) Error() string {
	return fmt.Sprintf("model not permitted under current %s OAuth plan: %s", e.Provider, e.Model)
}

// Validate checks a requested model id against the provider's policy table.
// It is pure: same inputs, same answer, no I/O.
func Validate(p auth.Provider, model string) error {
	rules, ok := providerRules(p)
	if !ok {
		return &ModelNotAllowedError{Provider: p, Model: model}
	}

	normalized := NormalizeModel(p, model)
	if rules.allows(normalized) {
		return nil
	}
	return &ModelNotAllowedError{Provider: p, Model: model}
}

// NormalizeModel resolves user-facing aliases to the backend model id
// before the policy check (e.g. reasoning-effort suffixes on codex ids).
func NormalizeModel(p auth.Provider, model string) string {
	m := strings.TrimSpace(model)
	if p == auth.ProviderCodex {
		if mapped, ok := codexAliases[strings.ToLower(m)]; ok {
			return mapped
		}
	}
	return m
}

// modelRules is one provider's policy: a model passes when it matches any
// rule. The zero value allows nothing.
type modelRules struct {
	Substrings []string
	Prefixes   []string
	Exact      map[string]struct{}
}

func (r modelRules) allows(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return false
	}
	if _, ok := r.Exact[m]; ok {
		return true
	}
	for _, sub := range r.Substrings {
		if strings.Contains(m, sub) {
			return true
		}
	}
	for _, prefix := range r.Prefixes {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func exactSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[strings.ToLower(id)] = struct{}{}
	}
	return set
}

// codexAliases maps the user-facing codex model names (with reasoning
// suffixes and legacy gpt-5 names) onto backend model ids.
var codexAliases = map[string]string{
	"gpt-5.2":                "gpt-5.2",
	"gpt-5.2-low":            "gpt-5.2",
	"gpt-5.2-medium":         "gpt-5.2",
	"gpt-5.2-high":           "gpt-5.2",
	"gpt-5.2-xhigh":          "gpt-5.2",
	"gpt-5.2-codex-low":      "gpt-5.2-codex",
	"gpt-5.2-codex-high":     "gpt-5.2-codex",
	"gpt-5.1-codex-low":      "gpt-5.1-codex",
	"gpt-5.1-codex-high":     "gpt-5.1-codex",
	"gpt-5-codex":            "gpt-5.1-codex",
	"gpt-5-codex-mini":       "gpt-5.1-codex-mini",
	"codex-mini-latest":      "gpt-5.1-codex-mini",
	"gpt-5.1-codex-max-low":  "gpt-5.1-codex-max",
	"gpt-5.1-codex-max-high": "gpt-5.1-codex-max",
}

// defaultRules is the built-in policy table, overridable from the YAML
// policy file (see catalog.go).
func defaultRules() map[auth.Provider]modelRules {
	return map[auth.Provider]modelRules{
		// Codex OAuth plans only expose the codex family plus the base
		// gpt-5.2 model the flow retains.
		auth.ProviderCodex: {
			Substrings: []string{"codex"},
			Exact:      exactSet("gpt-5.2"),
		},
		auth.ProviderAntigravity: {
			Prefixes: []string{"antigravity-", "gemini-", "claude-"},
		},
		auth.ProviderCopilot: {
			Exact: exactSet(
				"claude-sonnet-4.5", "claude-haiku-4.5", "claude-opus-4.5", "claude-sonnet-4",
				"gpt-5.2-codex", "gpt-5.1-codex-max", "gpt-5.1-codex", "gpt-5.1-codex-mini",
				"gpt-5.2", "gpt-5.1", "gpt-5", "gpt-5-mini", "gpt-4.1",
				"gemini-3-pro-preview",
			),
		},
	}
}

// copilotRequiredScopes are the scopes a pre-provisioned fine-grained token
// must carry to stand in for the device flow.
var copilotRequiredScopes = []string{"read:user"}

// ValidateCopilotScopes checks a PAT's granted scopes (comma- or
// space-separated, as reported by GitHub's X-OAuth-Scopes header).
func ValidateCopilotScopes(scopes string) error {
	granted := map[string]struct{}{}
	for _, s := range strings.FieldsFunc(scopes, func(r rune) bool { return r == ',' || r == ' ' }) {
		if s = strings.TrimSpace(s); s != "" {
			granted[s] = struct{}{}
		}
	}
	for _, required := range copilotRequiredScopes {
		if _, ok := granted[required]; !ok {
			return fmt.Errorf("copilot token missing required scope %q (granted: %s)", required, scopes)
		}
	}
	return nil
}
