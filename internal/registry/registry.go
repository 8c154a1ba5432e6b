// Package registry tracks stored accounts and the active-account pointer
// per provider, layered on the credential store. Every operation re-reads
// the store from disk so cooperating processes see each other's changes.
package registry

import (
	"fmt"
	"sort"

	"github.com/pysugar/llm-auth-hub/internal/auth"
	"github.com/pysugar/llm-auth-hub/internal/store"
)

// NotFoundError means no record exists for the requested account id.
type NotFoundError struct {
	Provider  auth.Provider
	AccountID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s account %q - run 'authhub login %s' first", e.Provider, e.AccountID, e.Provider)
}

// Summary is what account listings expose; tokens stay out of it.
type Summary struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	PlanType  string `json:"plan_type,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
	Active    bool   `json:"active"`
}

// Registry enumerates, selects and removes stored accounts.
type Registry struct {
	store *store.Store
}

// New builds a registry over a credential store.
func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// Store exposes the underlying credential store.
func (r *Registry) Store() *store.Store { return r.store }

// List returns summaries for every stored account, sorted by account id
// with the active account first.
func (r *Registry) List(p auth.Provider) ([]Summary, error) {
	state, err := r.store.Load(p)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(state.Accounts))
	for id, rec := range state.Accounts {
		summaries = append(summaries, Summary{
			AccountID: id,
			Email:     rec.Meta(auth.MetaEmail),
			ProjectID: rec.Meta(auth.MetaProjectID),
			PlanType:  rec.Meta(auth.MetaPlanType),
			ExpiresAt: rec.ExpiresAt,
			Active:    id == state.ActiveAccountID,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Active != summaries[j].Active {
			return summaries[i].Active
		}
		return summaries[i].AccountID < summaries[j].AccountID
	})
	return summaries, nil
}

// Active returns the active account id, or "" when none is set.
func (r *Registry) Active(p auth.Provider) (string, error) {
	state, err := r.store.Load(p)
	if err != nil {
		return "", err
	}
	if state.ActiveAccountID == "" {
		return "", nil
	}
	if _, ok := state.Accounts[state.ActiveAccountID]; !ok {
		// Dangling pointer, e.g. edited by hand. Treat as unset.
		return "", nil
	}
	return state.ActiveAccountID, nil
}

// Resolve returns the record to use: the named account when id is given,
// otherwise the active one.
func (r *Registry) Resolve(p auth.Provider, id string) (auth.Record, error) {
	state, err := r.store.Load(p)
	if err != nil {
		return auth.Record{}, err
	}
	if id == "" {
		id = state.ActiveAccountID
	}
	if id == "" {
		return auth.Record{}, &NotFoundError{Provider: p, AccountID: "(no active account)"}
	}
	rec, ok := state.Accounts[id]
	if !ok {
		return auth.Record{}, &NotFoundError{Provider: p, AccountID: id}
	}
	return rec, nil
}

// SetActive points the provider at an existing account. It never creates
// a placeholder for an unknown id.
func (r *Registry) SetActive(p auth.Provider, id string) error {
	state, err := r.store.Load(p)
	if err != nil {
		return err
	}
	if _, ok := state.Accounts[id]; !ok {
		return &NotFoundError{Provider: p, AccountID: id}
	}
	state.ActiveAccountID = id
	return r.store.Save(p, state)
}

// Remove deletes one account. Removing the active account clears the
// active pointer rather than guessing a replacement.
func (r *Registry) Remove(p auth.Provider, id string) error {
	state, err := r.store.Load(p)
	if err != nil {
		return err
	}
	if _, ok := state.Accounts[id]; !ok {
		return &NotFoundError{Provider: p, AccountID: id}
	}
	delete(state.Accounts, id)
	if state.ActiveAccountID == id {
		state.ActiveAccountID = ""
	}
	return r.store.Save(p, state)
}

// Upsert inserts or replaces a record and makes it the active account:
// the account you just authenticated is the one you mean to use.
func (r *Registry) Upsert(rec auth.Record) error {
	state, err := r.store.Load(rec.Provider)
	if err != nil {
		return err
	}
	state.Accounts[rec.AccountID] = rec
	state.ActiveAccountID = rec.AccountID
	return r.store.Save(rec.Provider, state)
}

// Update persists a refreshed record without touching the active pointer,
// re-reading the store first so a concurrent login is not clobbered. An
// account that disappeared in the meantime is not resurrected.
func (r *Registry) Update(rec auth.Record) error {
	state, err := r.store.Load(rec.Provider)
	if err != nil {
		return err
	}
	if _, ok := state.Accounts[rec.AccountID]; !ok {
		return &NotFoundError{Provider: rec.Provider, AccountID: rec.AccountID}
	}
	state.Accounts[rec.AccountID] = rec
	return r.store.Save(rec.Provider, state)
}
