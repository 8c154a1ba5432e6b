package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/pysugar/llm-auth-hub/internal/auth"
	"github.com/pysugar/llm-auth-hub/internal/auth/antigravity"
	"github.com/pysugar/llm-auth-hub/internal/auth/codex"
	"github.com/pysugar/llm-auth-hub/internal/auth/copilot"
	"github.com/pysugar/llm-auth-hub/internal/server"
)

// CLI is the top-level command tree.
type CLI struct {
	ConfigDir string           `help:"Credential store directory" env:"AUTHHUB_CONFIG_DIR" optional:""`
	Version   kong.VersionFlag `help:"Print version and exit"`

	Login    LoginCmd    `cmd:"" help:"Authenticate a provider account and store its credentials"`
	Logout   LogoutCmd   `cmd:"" help:"Remove a stored account"`
	Accounts AccountsCmd `cmd:"" help:"List stored accounts or switch the active one"`
	Status   StatusCmd   `cmd:"" help:"Show credential state for every provider"`
	Events   EventsCmd   `cmd:"" help:"Show the credential audit trail"`
	Validate ValidateCmd `cmd:"" help:"Check whether a model id is allowed for a provider"`
	Serve    ServeCmd    `cmd:"" help:"Run the management API server"`
}

type LoginCmd struct {
	Provider      string `arg:"" help:"Provider: antigravity, codex or copilot"`
	EnterpriseURL string `help:"GitHub Enterprise host for copilot logins" optional:""`
	PAT           string `help:"Copilot personal access token, skips the device flow" env:"COPILOT_PAT" optional:""`
}

func (c *LoginCmd) Run(app *App) error {
	provider, err := auth.ParseProvider(c.Provider)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var rec auth.Record
	switch provider {
	case auth.ProviderCopilot:
		rec, err = c.loginCopilot(ctx)
	case auth.ProviderAntigravity:
		rec, err = runBrowserLogin(ctx, antigravity.NewLoginFlow())
	case auth.ProviderCodex:
		rec, err = runBrowserLogin(ctx, codex.NewLoginFlow())
	}
	if err != nil {
		app.Service.RecordLoginFailure(provider, err.Error())
		return err
	}

	if err := app.Service.SaveLogin(rec); err != nil {
		return err
	}
	fmt.Printf("Logged in to %s as %s\n", provider, rec.AccountID)
	return nil
}

func runBrowserLogin(ctx context.Context, flow *auth.CodeFlow) (auth.Record, error) {
	url, err := flow.Start()
	if err != nil {
		return auth.Record{}, err
	}
	fmt.Println("Open this URL in your browser to continue:")
	fmt.Println()
	fmt.Println("  " + url)
	fmt.Println()
	return flow.Wait(ctx)
}

func (c *LoginCmd) loginCopilot(ctx context.Context) (auth.Record, error) {
	if c.PAT != "" {
		return copilot.FromPAT(ctx, c.PAT, c.EnterpriseURL)
	}

	flow, err := copilot.RequestDeviceCode(ctx, c.EnterpriseURL)
	if err != nil {
		return auth.Record{}, err
	}
	authz := flow.Authorization()
	fmt.Printf("Visit %s and enter code: %s\n", authz.VerificationURI, authz.UserCode)
	fmt.Println("Waiting for approval...")
	return flow.Poll(ctx)
}

type LogoutCmd struct {
	Provider  string `arg:"" help:"Provider: antigravity, codex or copilot"`
	AccountID string `arg:"" optional:"" help:"Account to remove; defaults to the active one"`
}

func (c *LogoutCmd) Run(app *App) error {
	provider, err := auth.ParseProvider(c.Provider)
	if err != nil {
		return err
	}
	removed, err := app.Service.Logout(provider, c.AccountID)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s account %s\n", provider, removed)
	return nil
}

type AccountsCmd struct {
	Provider string `arg:"" help:"Provider: antigravity, codex or copilot"`
	Set      string `help:"Make this account the active one" optional:""`
}

func (c *AccountsCmd) Run(app *App) error {
	provider, err := auth.ParseProvider(c.Provider)
	if err != nil {
		return err
	}

	if c.Set != "" {
		if err := app.Service.SetActive(provider, c.Set); err != nil {
			return err
		}
		fmt.Printf("Active %s account is now %s\n", provider, c.Set)
		return nil
	}

	accounts, err := app.Service.Accounts(provider)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Printf("No %s accounts stored. Run 'authhub login %s' first.\n", provider, provider)
		return nil
	}
	for _, acct := range accounts {
		marker := " "
		if acct.Active {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s", marker, acct.AccountID)
		if acct.Email != "" && acct.Email != acct.AccountID {
			line += fmt.Sprintf(" (%s)", acct.Email)
		}
		if acct.PlanType != "" {
			line += " [" + acct.PlanType + "]"
		}
		fmt.Println(line)
	}
	return nil
}

type StatusCmd struct{}

func (c *StatusCmd) Run(app *App) error {
	statuses, err := app.Service.Status()
	if err != nil {
		return err
	}
	for _, st := range statuses {
		if st.Accounts == 0 {
			fmt.Printf("%-12s no accounts\n", st.Provider)
			continue
		}
		line := fmt.Sprintf("%-12s %d account(s), active: %s, token: %s",
			st.Provider, st.Accounts, st.ActiveAccount, st.TokenState)
		if st.ExpiresAt > 0 {
			line += fmt.Sprintf(" (expires %s)", time.Unix(st.ExpiresAt, 0).Format(time.RFC3339))
		}
		fmt.Println(line)
	}
	return nil
}

type EventsCmd struct {
	Limit int `help:"Maximum events to show" default:"20"`
}

func (c *EventsCmd) Run(app *App) error {
	events, err := app.Service.Events(c.Limit)
	if err != nil {
		return err
	}
	for _, e := range events {
		line := fmt.Sprintf("%s %-12s %-8s %-16s %s",
			time.Unix(e.Timestamp, 0).Format(time.RFC3339), e.Provider, e.Kind, e.Outcome, e.AccountID)
		if e.Detail != "" {
			line += " - " + e.Detail
		}
		fmt.Println(line)
	}
	return nil
}

type ValidateCmd struct {
	Provider string `arg:"" help:"Provider: antigravity, codex or copilot"`
	Model    string `arg:"" help:"Model id to check"`
}

func (c *ValidateCmd) Run(app *App) error {
	provider, err := auth.ParseProvider(c.Provider)
	if err != nil {
		return err
	}
	if err := app.Service.ValidateModel(provider, c.Model); err != nil {
		return err
	}
	fmt.Printf("%s is allowed for %s\n", c.Model, provider)
	return nil
}

type ServeCmd struct {
	Addr string `help:"Listen address" default:"127.0.0.1:8787" env:"AUTHHUB_ADDR"`
}

func (c *ServeCmd) Run(app *App) error {
	srv := &http.Server{
		Addr:    c.Addr,
		Handler: server.New(app.Service, app.Log).Router(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		app.Log.Info().Str("addr", c.Addr).Msg("management API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
