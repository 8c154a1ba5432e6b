// Package hub wires the credential store, token refresh and audit trail
// into the operations the CLI and management API expose.
package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pysugar/llm-auth-hub/internal/auth"
	"github.com/pysugar/llm-auth-hub/internal/auth/antigravity"
	"github.com/pysugar/llm-auth-hub/internal/auth/codex"
	"github.com/pysugar/llm-auth-hub/internal/db"
	"github.com/pysugar/llm-auth-hub/internal/policy"
	"github.com/pysugar/llm-auth-hub/internal/registry"
	"github.com/pysugar/llm-auth-hub/internal/store"
)

// Service is the shared entry point for credential lifecycle operations.
type Service struct {
	registry  *registry.Registry
	refresher *auth.Refresher
	events    *db.EventLog
	log       zerolog.Logger
}

// New builds a service over a registry. events may be nil to disable
// auditing.
func New(reg *registry.Registry, events *db.EventLog, logger zerolog.Logger) *Service {
	s := &Service{
		registry: reg,
		refresher: auth.NewRefresher(map[auth.Provider]auth.RefreshFunc{
			auth.ProviderAntigravity: antigravity.Refresh,
			auth.ProviderCodex:       codex.Refresh,
		}),
		events: events,
		log:    logger,
	}
	reg.Store().OnMigrate(s.recordMigration)
	return s
}

// recordMigration audits a legacy-store conversion the moment the store
// performs it.
func (s *Service) recordMigration(p auth.Provider, state *store.State, saveErr error) {
	detail := fmt.Sprintf("migrated %d legacy account(s)", len(state.Accounts))
	outcome := db.OutcomeSuccess
	if saveErr != nil {
		outcome = db.OutcomeFailure
		detail = fmt.Sprintf("%s, canonical store write failed: %v", detail, saveErr)
		s.log.Warn().Str("provider", string(p)).Err(saveErr).
			Msg("legacy migration could not write canonical store")
	} else {
		s.log.Info().Str("provider", string(p)).Int("accounts", len(state.Accounts)).
			Msg("legacy credentials migrated")
	}
	s.recordEvent(p, state.ActiveAccountID, db.EventMigrate, outcome, detail)
}

// Registry exposes the underlying account registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// SaveLogin persists a freshly authenticated record and makes it active.
func (s *Service) SaveLogin(rec auth.Record) error {
	if err := s.registry.Upsert(rec); err != nil {
		s.recordEvent(rec.Provider, rec.AccountID, db.EventLogin, db.OutcomeFailure, err.Error())
		return err
	}
	s.recordEvent(rec.Provider, rec.AccountID, db.EventLogin, db.OutcomeSuccess, "")
	s.log.Info().Str("provider", string(rec.Provider)).Str("account", rec.AccountID).Msg("login stored")
	return nil
}

// RecordLoginFailure notes a login attempt that never produced a record.
func (s *Service) RecordLoginFailure(p auth.Provider, detail string) {
	s.recordEvent(p, "", db.EventLogin, db.OutcomeFailure, detail)
}

// Token returns a ready-to-use access token record for the named account
// (or the active one when id is empty), refreshing and persisting as
// needed. A revoked grant deletes the record entirely: retrying a dead
// refresh token cannot succeed, only a new login can.
func (s *Service) Token(ctx context.Context, p auth.Provider, accountID string) (auth.Record, error) {
	rec, err := s.registry.Resolve(p, accountID)
	if err != nil {
		return auth.Record{}, err
	}

	if p == auth.ProviderCopilot {
		if scopes := rec.Meta(auth.MetaScopes); scopes != "" {
			if err := policy.ValidateCopilotScopes(scopes); err != nil {
				return auth.Record{}, err
			}
		}
	}

	fresh, err := s.refresher.EnsureValid(ctx, rec)
	if err != nil {
		if auth.IsReauthRequired(err) {
			s.recordEvent(p, rec.AccountID, db.EventRefresh, db.OutcomeReauth, err.Error())
			s.log.Warn().Str("provider", string(p)).Str("account", rec.AccountID).
				Err(err).Msg("refresh token revoked, login required")
			if rerr := s.registry.Remove(p, rec.AccountID); rerr != nil {
				var notFound *registry.NotFoundError
				if !errors.As(rerr, &notFound) {
					s.log.Error().Err(rerr).Msg("failed to delete revoked credential")
				}
			}
		} else {
			s.recordEvent(p, rec.AccountID, db.EventRefresh, db.OutcomeFailure, err.Error())
		}
		return auth.Record{}, err
	}

	if fresh.AccessToken != rec.AccessToken || fresh.ExpiresAt != rec.ExpiresAt {
		if err := s.registry.Update(fresh); err != nil {
			var notFound *registry.NotFoundError
			if !errors.As(err, &notFound) {
				return auth.Record{}, err
			}
			// Account was removed mid-refresh; hand out the token anyway.
		}
		s.recordEvent(p, fresh.AccountID, db.EventRefresh, db.OutcomeSuccess, "")
	}
	return fresh, nil
}

// Logout removes one account (or the active one when id is empty).
func (s *Service) Logout(p auth.Provider, accountID string) (string, error) {
	if accountID == "" {
		active, err := s.registry.Active(p)
		if err != nil {
			return "", err
		}
		if active == "" {
			return "", &registry.NotFoundError{Provider: p, AccountID: "(no active account)"}
		}
		accountID = active
	}
	if err := s.registry.Remove(p, accountID); err != nil {
		return "", err
	}
	s.recordEvent(p, accountID, db.EventLogout, db.OutcomeSuccess, "")
	return accountID, nil
}

// Accounts lists stored accounts for one provider.
func (s *Service) Accounts(p auth.Provider) ([]registry.Summary, error) {
	return s.registry.List(p)
}

// SetActive switches the provider's active account.
func (s *Service) SetActive(p auth.Provider, accountID string) error {
	return s.registry.SetActive(p, accountID)
}

// ValidateModel checks a model id against the provider's plan policy.
func (s *Service) ValidateModel(p auth.Provider, model string) error {
	return policy.Validate(p, model)
}

// ProviderStatus is a read-only snapshot; producing it never triggers a
// refresh or any network traffic.
type ProviderStatus struct {
	Provider      auth.Provider `json:"provider"`
	Accounts      int           `json:"accounts"`
	ActiveAccount string        `json:"active_account,omitempty"`
	ExpiresAt     int64         `json:"expires_at,omitempty"`
	TokenState    string        `json:"token_state"` // valid, stale, expired, none
}

// Status reports every provider's credential state.
func (s *Service) Status() ([]ProviderStatus, error) {
	now := time.Now()
	statuses := make([]ProviderStatus, 0, len(auth.Providers))
	for _, p := range auth.Providers {
		summaries, err := s.registry.List(p)
		if err != nil {
			return nil, err
		}
		status := ProviderStatus{Provider: p, Accounts: len(summaries), TokenState: "none"}
		for _, sum := range summaries {
			if !sum.Active {
				continue
			}
			status.ActiveAccount = sum.AccountID
			status.ExpiresAt = sum.ExpiresAt
			status.TokenState = tokenState(sum.ExpiresAt, now)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func tokenState(expiresAt int64, now time.Time) string {
	if expiresAt == 0 {
		return "valid"
	}
	switch remaining := time.Unix(expiresAt, 0).Sub(now); {
	case remaining <= 0:
		return "expired"
	case remaining <= auth.DefaultRefreshSkew:
		return "stale"
	default:
		return "valid"
	}
}

// Events returns the newest audit entries.
func (s *Service) Events(limit int) ([]db.AuthEvent, error) {
	return s.events.Recent(limit)
}

func (s *Service) recordEvent(p auth.Provider, accountID string, kind db.EventKind, outcome db.Outcome, detail string) {
	if err := s.events.Record(string(p), accountID, kind, outcome, detail); err != nil {
		s.log.Warn().Err(err).Msg("failed to record audit event")
	}
}
