package codex

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// Refresh exchanges the stored refresh token for fresh tokens.
// Satisfies auth.RefreshFunc.
func Refresh(ctx context.Context, rec auth.Record) (auth.Record, error) {
	cfg := OAuthConfig()
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return auth.Record{}, auth.ClassifyRefreshError(retrieve.ErrorCode, err)
		}
		return auth.Record{}, auth.ClassifyRefreshError("", err)
	}

	rec.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		rec.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		rec.ExpiresAt = tok.Expiry.Unix()
	}

	// Tokens are rotated wholesale; keep identity metadata in sync with
	// what the fresh token says.
	if claims, err := parseClaims(tok.AccessToken); err == nil {
		if claims.Auth.ChatGPTPlanType != "" {
			rec = rec.WithMeta(auth.MetaPlanType, claims.Auth.ChatGPTPlanType)
		}
		if e := claims.emailFrom(); e != "" {
			rec = rec.WithMeta(auth.MetaEmail, e)
		}
	}
	return rec, nil
}
