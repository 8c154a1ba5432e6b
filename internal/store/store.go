// Package store persists per-provider credential files.
//
// Each provider gets one JSON file holding every stored account plus the
// active-account pointer. Load and Save always operate on the whole file so
// the on-disk shape stays internally consistent; mutations go through
// load-modify-save with an atomic rename, never in-place edits.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// State is the full persisted content for one provider namespace.
type State struct {
	ActiveAccountID string                 `json:"active_account_id"`
	Accounts        map[string]auth.Record `json:"accounts"`
}

// NewState returns an empty store state.
func NewState() *State {
	return &State{Accounts: map[string]auth.Record{}}
}

// CorruptError means the persisted file exists but is not well-formed.
// Callers treat this as "no usable credentials", not a crash.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt credential store %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store reads and writes provider credential files under a config directory.
type Store struct {
	dir       string
	onMigrate func(p auth.Provider, state *State, saveErr error)
}

// New opens a store rooted at dir. When dir is empty the default config
// directory is used (AUTHHUB_CONFIG_DIR, else ~/.config/llm-auth-hub,
// %APPDATA%\llm-auth-hub on Windows).
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{dir: dir}
}

// DefaultDir resolves the canonical config directory.
func DefaultDir() string {
	if explicit := os.Getenv("AUTHHUB_CONFIG_DIR"); explicit != "" {
		return explicit
	}
	if runtime.GOOS == "windows" {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			return filepath.Join(appdata, "llm-auth-hub")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "llm-auth-hub"
	}
	return filepath.Join(home, ".config", "llm-auth-hub")
}

// OnMigrate registers a hook invoked once whenever a legacy file is
// converted. saveErr reports whether the canonical file could be written;
// the converted state is handed out either way, so a non-nil saveErr means
// the migration will repeat on the next load.
func (s *Store) OnMigrate(fn func(p auth.Provider, state *State, saveErr error)) {
	s.onMigrate = fn
}

// Path returns the credential file path for a provider.
func (s *Store) Path(p auth.Provider) string {
	return filepath.Join(s.dir, string(p), "accounts.json")
}

// Load reads the full state for a provider. A missing file yields an empty
// state. When the canonical file is absent but a legacy file exists, the
// legacy content is converted and written to the canonical path first; the
// legacy file itself is never modified.
func (s *Store) Load(p auth.Provider) (*State, error) {
	path := s.Path(p)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if state, ok := s.migrateLegacy(p); ok {
			return state, nil
		}
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential store: %w", err)
	}
	return decodeState(path, data)
}

func decodeState(path string, data []byte) (*State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if state.Accounts == nil {
		state.Accounts = map[string]auth.Record{}
	}
	return &state, nil
}

// Save atomically replaces the provider's credential file. The content is
// written to a temp file in the same directory and renamed over the target,
// so a crash mid-write never leaves a truncated file behind.
func (s *Store) Save(p auth.Provider, state *State) error {
	path := s.Path(p)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential store: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp credential file: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp credential file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Windows cannot rename over an existing file; replace explicitly.
		if removeErr := os.Remove(path); removeErr == nil || errors.Is(removeErr, os.ErrNotExist) {
			if retryErr := os.Rename(tmpPath, path); retryErr == nil {
				return nil
			}
		}
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}
