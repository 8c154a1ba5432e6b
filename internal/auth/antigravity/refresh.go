package antigravity

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// Refresh exchanges the stored refresh token for a fresh access token.
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
	return rec, nil
}
