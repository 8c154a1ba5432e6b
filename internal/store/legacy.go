package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// legacyFile is the account layout written by the prior opencode-based tool:
// a versioned array of accounts with an activeIndex pointer instead of a map
// keyed by account id.
type legacyFile struct {
	Version     int             `json:"version"`
	Accounts    []legacyAccount `json:"accounts"`
	ActiveIndex int             `json:"activeIndex"`
}

type legacyAccount struct {
	Email            string `json:"email"`
	RefreshToken     string `json:"refreshToken"`
	ProjectID        string `json:"projectId"`
	ManagedProjectID string `json:"managedProjectId"`
}

// legacyPathOverride lets tests point migration at a fixture file.
var legacyPathOverride string

// SetLegacyPathForTest points migration at a fixture file. Pass "" to
// restore the real path resolution.
func SetLegacyPathForTest(path string) { legacyPathOverride = path }

// LegacyPath returns the old tool's account file for a provider, or ""
// when that provider never had a legacy layout.
func LegacyPath(p auth.Provider) string {
	if legacyPathOverride != "" {
		return legacyPathOverride
	}
	if p != auth.ProviderAntigravity {
		return ""
	}
	if runtime.GOOS == "windows" {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			return filepath.Join(appdata, "opencode", "antigravity-accounts.json")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "opencode", "antigravity-accounts.json")
}

// migrateLegacy converts the legacy file into the canonical shape and writes
// it to the canonical path. Detection is by path existence only; an
// unreadable or malformed legacy file is ignored rather than treated as an
// error, and the legacy file is left untouched either way.
func (s *Store) migrateLegacy(p auth.Provider) (*State, bool) {
	legacyPath := LegacyPath(p)
	if legacyPath == "" {
		return nil, false
	}
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return nil, false
	}

	var legacy legacyFile
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, false
	}

	state := NewState()
	for i, acc := range legacy.Accounts {
		if acc.Email == "" {
			continue
		}
		rec := auth.Record{
			Provider:     p,
			AccountID:    acc.Email,
			RefreshToken: acc.RefreshToken,
		}
		rec = rec.WithMeta(auth.MetaEmail, acc.Email)
		rec = rec.WithMeta(auth.MetaProjectID, acc.ProjectID)
		state.Accounts[rec.AccountID] = rec
		if i == legacy.ActiveIndex {
			state.ActiveAccountID = rec.AccountID
		}
	}
	if state.ActiveAccountID == "" && len(legacy.Accounts) > 0 && len(state.Accounts) > 0 {
		// Out-of-range activeIndex in the legacy file; fall back to the first account.
		state.ActiveAccountID = legacy.Accounts[0].Email
	}

	// Migration is best effort: the converted state is still usable in
	// memory even if the canonical file could not be written. The hook
	// sees the write error so callers can log and audit it.
	saveErr := s.Save(p, state)
	if s.onMigrate != nil {
		s.onMigrate(p, state, saveErr)
	}
	return state, true
}
