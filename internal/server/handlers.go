package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/llm-auth-hub/internal/auth"
	"github.com/pysugar/llm-auth-hub/internal/policy"
	"github.com/pysugar/llm-auth-hub/internal/registry"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// providerFrom resolves the {provider} route param; a nil return means the
// response has already been written.
func providerFrom(w http.ResponseWriter, r *http.Request) (auth.Provider, bool) {
	p, err := auth.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return p, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.service.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": statuses})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	events, err := s.service.Events(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFrom(w, r)
	if !ok {
		return
	}
	accounts, err := s.service.Accounts(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": p, "accounts": accounts})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.service.SetActive(p, id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "active_account": id})
}

// handleRefresh forces a refresh check for one account. The response never
// includes the tokens themselves.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFrom(w, r)
	if !ok {
		return
	}
	rec, err := s.service.Token(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		if auth.IsReauthRequired(err) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":  err.Error(),
				"action": "login_required",
			})
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"account_id": rec.AccountID,
		"expires_at": rec.ExpiresAt,
	})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	removed, err := s.service.Logout(p, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "removed": removed})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFrom(w, r)
	if !ok {
		return
	}
	var body struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.service.ValidateModel(p, body.Model); err != nil {
		var notAllowed *policy.ModelNotAllowedError
		if errors.As(err, &notAllowed) {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": notAllowed.Error(),
				"model": notAllowed.Model,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": true, "model": body.Model})
}

func statusFor(err error) int {
	var notFound *registry.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	if auth.IsTransientRefresh(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
