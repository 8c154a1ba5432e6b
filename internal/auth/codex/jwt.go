package codex

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// tokenClaims is the subset of the Codex JWT payload we care about. The
// interesting fields live under the https://api.openai.com/auth claim.
type tokenClaims struct {
	Email             string     `json:"email"`
	PreferredUsername string     `json:"preferred_username"`
	Auth              authClaims `json:"https://api.openai.com/auth"`
}

type authClaims struct {
	ChatGPTAccountID string `json:"chatgpt_account_id"`
	ChatGPTPlanType  string `json:"chatgpt_plan_type"`
	Email            string `json:"email"`
	UserEmail        string `json:"user_email"`
}

// parseClaims decodes a JWT payload without verifying the signature. The
// token came straight from the issuer over TLS; we only read identity
// hints out of it.
func parseClaims(token string) (tokenClaims, error) {
	var claims tokenClaims
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return claims, fmt.Errorf("token is not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return claims, fmt.Errorf("failed to decode JWT payload: %w", err)
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return claims, fmt.Errorf("failed to parse JWT payload: %w", err)
	}
	return claims, nil
}

// emailFrom returns the first plausible email among the claim candidates.
func (c tokenClaims) emailFrom() string {
	for _, candidate := range []string{c.Email, c.PreferredUsername, c.Auth.Email, c.Auth.UserEmail} {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" && strings.Contains(candidate, "@") {
			return candidate
		}
	}
	return ""
}
