package auth

import (
	"errors"
	"fmt"
)

// FlowState is the lifecycle of one interactive login session.
// Browser-redirect flows move Init -> AwaitingRedirect -> ExchangingCode -> Complete/Failed.
// Device-code flows move Init -> Polling -> Complete/Failed.
// Complete and Failed are terminal; sessions are single-use.
type FlowState int

const (
	StateInit FlowState = iota
	StateAwaitingRedirect
	StateExchangingCode
	StatePolling
	StateComplete
	StateFailed
)

func (s FlowState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingRedirect:
		return "awaiting_redirect"
	case StateExchangingCode:
		return "exchanging_code"
	case StatePolling:
		return "polling"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal failure causes for a login attempt. All of them require the
// caller to start a fresh session; a failed flow is never retried in place.
var (
	// ErrStateMismatch means the redirect carried a state value that does not
	// match the one this session issued. Always fatal: silently accepting it
	// would let a forged redirect complete someone else's login.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrAccessDenied means the user rejected the authorization request.
	ErrAccessDenied = errors.New("authorization denied by user")
	// ErrCodeExpired means the device or authorization code expired before use.
	ErrCodeExpired = errors.New("authorization code expired")
	// ErrLoginTimeout means the overall flow deadline elapsed.
	ErrLoginTimeout = errors.New("login timed out")
	// ErrFlowConsumed means Wait was called on a session already terminal.
	ErrFlowConsumed = errors.New("login session already consumed")
)

// FlowError wraps a terminal login failure with the provider and the
// state the session was in when it failed.
type FlowError struct {
	Provider Provider
	State    FlowState
	Err      error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s login failed in state %s: %v", e.Provider, e.State, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }
