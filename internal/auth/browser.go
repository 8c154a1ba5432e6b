package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultLoginTimeout bounds one interactive login from auth-URL issue to
// redirect receipt.
const DefaultLoginTimeout = 5 * time.Minute

// CompleteFunc turns an exchanged token into a credential record, typically
// by fetching account identity from the provider.
type CompleteFunc func(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (Record, error)

// CodeFlowConfig describes one provider's authorization-code flow.
type CodeFlowConfig struct {
	Provider        Provider
	OAuth           *oauth2.Config // RedirectURL is filled in from the bound port
	PreferredPort   int            // fixed port registered with the provider; 0 for any
	CallbackPath    string
	AuthCodeOptions []oauth2.AuthCodeOption // provider extras beyond PKCE and state
	Timeout         time.Duration           // 0 means DefaultLoginTimeout
}

type redirectResult struct {
	code string
	err  error
}

// CodeFlow drives a single browser-redirect login:
// Init -> AwaitingRedirect -> ExchangingCode -> Complete/Failed.
// The caller is responsible for opening the returned URL in a browser;
// the flow only listens for the redirect coming back.
type CodeFlow struct {
	cfg      CodeFlowConfig
	complete CompleteFunc

	state    string
	verifier string

	mu        sync.Mutex
	flowState FlowState

	listener net.Listener
	srv      *http.Server
	resultCh chan redirectResult
	received bool
}

// NewCodeFlow builds a single-use login session.
func NewCodeFlow(cfg CodeFlowConfig, complete CompleteFunc) *CodeFlow {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLoginTimeout
	}
	return &CodeFlow{
		cfg:       cfg,
		complete:  complete,
		state:     NewStateToken(),
		verifier:  oauth2.GenerateVerifier(),
		flowState: StateInit,
		resultCh:  make(chan redirectResult, 1),
	}
}

// State reports the session's current lifecycle state.
func (f *CodeFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flowState
}

func (f *CodeFlow) setState(s FlowState) {
	f.mu.Lock()
	f.flowState = s
	f.mu.Unlock()
}

func (f *CodeFlow) fail(err error) (Record, error) {
	f.mu.Lock()
	state := f.flowState
	f.flowState = StateFailed
	f.mu.Unlock()
	return Record{}, &FlowError{Provider: f.cfg.Provider, State: state, Err: err}
}

// Start binds the local callback listener and returns the authorization URL
// for the caller to open. Tries the provider's registered port first and
// falls back to a random high port when it is taken.
func (f *CodeFlow) Start() (string, error) {
	if f.State() != StateInit {
		return "", ErrFlowConsumed
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.cfg.PreferredPort))
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", fmt.Errorf("failed to start callback listener: %w", err)
		}
	}
	f.listener = listener

	port := listener.Addr().(*net.TCPAddr).Port
	f.cfg.OAuth.RedirectURL = fmt.Sprintf("http://localhost:%d%s", port, f.cfg.CallbackPath)

	mux := http.NewServeMux()
	mux.HandleFunc(f.cfg.CallbackPath, f.handleRedirect)
	f.srv = &http.Server{Handler: mux}
	go func() {
		if err := f.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case f.resultCh <- redirectResult{err: fmt.Errorf("callback server: %w", err)}:
			default:
			}
		}
	}()

	opts := append([]oauth2.AuthCodeOption{oauth2.S256ChallengeOption(f.verifier)}, f.cfg.AuthCodeOptions...)
	url := f.cfg.OAuth.AuthCodeURL(f.state, opts...)
	f.setState(StateAwaitingRedirect)
	return url, nil
}

func (f *CodeFlow) handleRedirect(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if f.received {
		f.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	f.received = true
	f.mu.Unlock()

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		err := fmt.Errorf("provider returned %q: %s", errCode, q.Get("error_description"))
		if errCode == "access_denied" {
			err = ErrAccessDenied
		}
		f.resultCh <- redirectResult{err: err}
		http.Error(w, "Authentication failed: "+errCode, http.StatusBadRequest)
		return
	}
	if q.Get("state") != f.state {
		f.resultCh <- redirectResult{err: ErrStateMismatch}
		http.Error(w, "Invalid state token", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html><body style="font-family: system-ui; text-align: center; padding: 50px;">
<h1>Authentication Successful</h1>
<p>You can close this window and return to your terminal.</p>
</body></html>`)

	f.resultCh <- redirectResult{code: q.Get("code")}
}

// Wait blocks until the redirect arrives, the flow deadline elapses, or ctx
// is cancelled, then exchanges the code and completes the record. The
// session is terminal afterwards.
func (f *CodeFlow) Wait(ctx context.Context) (Record, error) {
	if f.State() != StateAwaitingRedirect {
		return Record{}, ErrFlowConsumed
	}
	defer f.Close()

	timer := time.NewTimer(f.cfg.Timeout)
	defer timer.Stop()

	var result redirectResult
	select {
	case result = <-f.resultCh:
	case <-timer.C:
		return f.fail(ErrLoginTimeout)
	case <-ctx.Done():
		return f.fail(ctx.Err())
	}
	if result.err != nil {
		return f.fail(result.err)
	}

	f.setState(StateExchangingCode)
	tok, err := f.cfg.OAuth.Exchange(ctx, result.code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return f.fail(fmt.Errorf("token exchange failed: %w", err))
	}

	rec, err := f.complete(ctx, f.cfg.OAuth, tok)
	if err != nil {
		return f.fail(err)
	}
	rec.Provider = f.cfg.Provider
	if rec.ExpiresAt == 0 && !tok.Expiry.IsZero() {
		rec.ExpiresAt = tok.Expiry.Unix()
	}
	f.setState(StateComplete)
	return rec, nil
}

// Close releases the callback listener. Safe to call more than once.
func (f *CodeFlow) Close() {
	if f.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.srv.Shutdown(ctx)
		f.srv = nil
	}
}
