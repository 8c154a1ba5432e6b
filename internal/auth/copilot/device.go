// Package copilot implements GitHub Copilot authentication. Copilot uses
// the OAuth device-code flow instead of a browser redirect, and also
// accepts a personal access token as a non-interactive bypass.
package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

const DefaultClientID = "Iv1.b507a08c87ecfe98"

const DefaultScope = "read:user user:email"

// pollSafetyMargin pads every poll interval so we never poll faster than
// the server asked for.
const pollSafetyMargin = 500 * time.Millisecond

// loginBaseOverride and apiBaseOverride reroute GitHub endpoints in tests.
var (
	loginBaseOverride string
	apiBaseOverride   string
)

func loginBase(domain string) string {
	if loginBaseOverride != "" {
		return loginBaseOverride
	}
	return "https://" + domain
}

func apiBase(domain string) string {
	if apiBaseOverride != "" {
		return apiBaseOverride
	}
	if domain == "" || domain == "github.com" {
		return "https://api.github.com"
	}
	return "https://" + domain + "/api/v3"
}

func clientID() string {
	if id := strings.TrimSpace(os.Getenv("COPILOT_CLIENT_ID")); id != "" {
		return id
	}
	return DefaultClientID
}

func scope() string {
	if s := strings.TrimSpace(os.Getenv("COPILOT_SCOPE")); s != "" {
		return s
	}
	return DefaultScope
}

// NormalizeDomain reduces an enterprise URL to its bare host.
func NormalizeDomain(url string) string {
	cleaned := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(url), "https://"), "http://")
	if i := strings.IndexByte(cleaned, '/'); i >= 0 {
		cleaned = cleaned[:i]
	}
	return strings.TrimSuffix(cleaned, "/")
}

func isEnterpriseDomain(domain string) bool {
	return domain != "" && domain != "github.com"
}

// DeviceAuthorization is what the user needs to approve the login on
// another device.
type DeviceAuthorization struct {
	UserCode        string
	VerificationURI string
}

// Flow is one device-code login session:
// Init -> Polling -> Complete/Failed.
type Flow struct {
	domain     string
	deviceCode string
	authz      DeviceAuthorization
	interval   time.Duration
	deadline   time.Time
	client     *http.Client

	mu    sync.Mutex
	state auth.FlowState
}

// RequestDeviceCode starts a device login against github.com, or against
// an enterprise host when enterpriseURL is set.
func RequestDeviceCode(ctx context.Context, enterpriseURL string) (*Flow, error) {
	domain := "github.com"
	if enterpriseURL != "" {
		domain = NormalizeDomain(enterpriseURL)
	}

	body, _ := json.Marshal(map[string]string{"client_id": clientID(), "scope": scope()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginBase(domain)+"/login/device/code", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to reach %s device endpoint: %w", domain, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device code request returned %s", resp.Status)
	}

	var payload struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode device code response: %w", err)
	}
	if payload.DeviceCode == "" || payload.UserCode == "" {
		return nil, fmt.Errorf("device code response missing codes")
	}

	interval := payload.Interval
	if interval <= 0 {
		interval = 5
	}
	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 900
	}

	return &Flow{
		domain:     domain,
		deviceCode: payload.DeviceCode,
		authz: DeviceAuthorization{
			UserCode:        payload.UserCode,
			VerificationURI: payload.VerificationURI,
		},
		interval: time.Duration(interval) * time.Second,
		deadline: time.Now().Add(time.Duration(expiresIn) * time.Second),
		client:   client,
	}, nil
}

// Authorization returns the code and URL to show the user.
func (f *Flow) Authorization() DeviceAuthorization { return f.authz }

// State reports the session's current lifecycle state.
func (f *Flow) State() auth.FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s auth.FlowState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Flow) fail(err error) (auth.Record, error) {
	f.mu.Lock()
	state := f.state
	f.state = auth.StateFailed
	f.mu.Unlock()
	return auth.Record{}, &auth.FlowError{Provider: auth.ProviderCopilot, State: state, Err: err}
}

// Poll blocks until the user approves the login, the device code expires,
// or ctx is cancelled. Honors authorization_pending and slow_down so the
// loop always terminates and never out-polls the server.
func (f *Flow) Poll(ctx context.Context) (auth.Record, error) {
	if f.State() != auth.StateInit {
		return auth.Record{}, auth.ErrFlowConsumed
	}
	f.setState(auth.StatePolling)

	for {
		if time.Now().After(f.deadline) {
			return f.fail(auth.ErrLoginTimeout)
		}

		token, pollErr := f.pollOnce(ctx)
		switch {
		case pollErr == nil && token != "":
			rec, err := f.complete(ctx, token)
			if err != nil {
				return f.fail(err)
			}
			f.setState(auth.StateComplete)
			return rec, nil
		case pollErr != nil:
			return f.fail(pollErr)
		}

		select {
		case <-time.After(f.interval + pollSafetyMargin):
		case <-ctx.Done():
			return f.fail(ctx.Err())
		}
	}
}

// pollOnce returns ("", nil) when authorization is still pending.
func (f *Flow) pollOnce(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"client_id":   clientID(),
		"device_code": f.deviceCode,
		"grant_type":  "urn:ietf:params:oauth:grant-type:device_code",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginBase(f.domain)+"/login/oauth/access_token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("unable to reach %s token endpoint: %w", f.domain, err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
		Interval    int    `json:"interval"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	if payload.AccessToken != "" {
		return payload.AccessToken, nil
	}

	switch payload.Error {
	case "authorization_pending":
		return "", nil
	case "slow_down":
		// Server either names a new interval or we back off by 5s.
		if payload.Interval > 0 {
			f.interval = time.Duration(payload.Interval) * time.Second
		} else {
			f.interval += 5 * time.Second
		}
		return "", nil
	case "expired_token":
		return "", auth.ErrCodeExpired
	case "access_denied":
		return "", auth.ErrAccessDenied
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("device authorization failed: %s", payload.Error)
	}
}

// complete fetches the GitHub profile behind the fresh token and builds
// the credential record.
func (f *Flow) complete(ctx context.Context, token string) (auth.Record, error) {
	profile, err := fetchProfile(ctx, f.client, apiBase(f.domain), token)
	if err != nil {
		return auth.Record{}, err
	}

	accountID := profile.id
	if accountID == "" {
		accountID = profile.login
	}
	if accountID == "" {
		return auth.Record{}, fmt.Errorf("token resolved to no usable account identity")
	}

	rec := auth.Record{
		Provider:    auth.ProviderCopilot,
		AccountID:   accountID,
		AccessToken: token,
	}
	rec = rec.WithMeta(auth.MetaLogin, profile.login).
		WithMeta(auth.MetaEmail, profile.email).
		WithMeta(auth.MetaScopes, scope())
	if isEnterpriseDomain(f.domain) {
		rec = rec.WithMeta(auth.MetaEnterpriseURL, f.domain)
	}
	return rec, nil
}
