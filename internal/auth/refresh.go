package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew is how early before expiry a token is treated as stale.
// Overridable via AUTHHUB_REFRESH_SKEW (a Go duration string).
const DefaultRefreshSkew = 60 * time.Second

// RefreshFunc performs the provider's refresh-grant call and returns a
// record with a fresh access token (and a rotated refresh token when the
// provider issues one). It must not persist anything.
type RefreshFunc func(ctx context.Context, rec Record) (Record, error)

// RefreshError classifies a failed refresh attempt.
// Reauth means the grant itself is invalid or revoked: the caller must
// delete the record and prompt for a new login. Anything else is transient
// and may be retried without touching the stored credential.
type RefreshError struct {
	Code   string // oauth error code when the response carried one
	Reauth bool
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Reauth {
		return fmt.Sprintf("refresh token revoked (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("transient refresh failure: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// IsReauthRequired reports whether err means the stored credential is dead.
func IsReauthRequired(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && re.Reauth
}

// IsTransientRefresh reports whether err is a retryable refresh failure.
func IsTransientRefresh(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && !re.Reauth
}

// Refresher guarantees a record is valid for immediate use, refreshing
// through the provider's token endpoint when the access token is stale.
// Concurrent EnsureValid calls for the same account share one in-flight
// refresh: refresh tokens may be single-use, so issuing two parallel
// refresh calls can invalidate the first.
type Refresher struct {
	skew    time.Duration
	refresh map[Provider]RefreshFunc
	group   singleflight.Group
}

// NewRefresher builds a refresher over per-provider refresh functions.
func NewRefresher(funcs map[Provider]RefreshFunc) *Refresher {
	return &Refresher{skew: refreshSkewFromEnv(), refresh: funcs}
}

func refreshSkewFromEnv() time.Duration {
	if raw := strings.TrimSpace(os.Getenv("AUTHHUB_REFRESH_SKEW")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return DefaultRefreshSkew
}

// EnsureValid returns a record whose access token is good for at least the
// skew margin. Fresh records are returned unchanged with no network call.
func (r *Refresher) EnsureValid(ctx context.Context, rec Record) (Record, error) {
	if rec.ExpiresIn(time.Now()) > r.skew {
		return rec, nil
	}

	if rec.RefreshToken == "" {
		// Refresh-less credential (e.g. a copilot device token or PAT).
		// Without a known expiry it stays usable; once expired there is
		// nothing to refresh with.
		if rec.ExpiresAt == 0 {
			return rec, nil
		}
		return Record{}, &RefreshError{Code: "no_refresh_token", Reauth: true,
			Err: fmt.Errorf("%s credential for %s expired and has no refresh token", rec.Provider, rec.AccountID)}
	}

	fn, ok := r.refresh[rec.Provider]
	if !ok {
		return Record{}, &RefreshError{Reauth: false, Err: fmt.Errorf("no refresh support for provider %s", rec.Provider)}
	}

	v, err, _ := r.group.Do(rec.Key(), func() (interface{}, error) {
		fresh, err := fn(ctx, rec)
		if err != nil {
			var re *RefreshError
			if errors.As(err, &re) {
				return Record{}, err
			}
			return Record{}, ClassifyRefreshError("", err)
		}
		// The provider may not rotate the refresh token; never lose the old one.
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = rec.RefreshToken
		}
		return fresh, nil
	})
	if err != nil {
		return Record{}, err
	}
	return v.(Record), nil
}

// revokedCodes are oauth error codes that always mean the grant is dead.
var revokedCodes = map[string]bool{
	"invalid_grant":             true,
	"invalid_client":            true,
	"unauthorized_client":       true,
	"refresh_token_invalidated": true,
	"refresh_token_reused":      true,
	"refresh_token_expired":     true,
}

// revokedMarkers catch revocation reported only in free-form messages.
var revokedMarkers = []string{
	"token has been expired or revoked",
	"token was revoked",
	"token revoked",
	"token invalidated",
	"already used",
}

// ClassifyRefreshError folds a raw token-endpoint failure into a
// RefreshError. Network errors, timeouts and 5xx responses are transient;
// a recognized revocation code or message requires re-authentication.
func ClassifyRefreshError(code string, err error) *RefreshError {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if revokedCodes[normalized] {
		return &RefreshError{Code: normalized, Reauth: true, Err: err}
	}
	if err != nil {
		msg := strings.ToLower(err.Error())
		for _, marker := range revokedMarkers {
			if strings.Contains(msg, marker) {
				return &RefreshError{Code: normalized, Reauth: true, Err: err}
			}
		}
		for revoked := range revokedCodes {
			if strings.Contains(msg, revoked) {
				return &RefreshError{Code: revoked, Reauth: true, Err: err}
			}
		}
	}
	return &RefreshError{Code: normalized, Reauth: false, Err: err}
}
