package app

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/louisbranch/recovery.space/internal/recovery/lifecycle"
	"github.com/louisbranch/recovery.space/internal/recovery/token"
)

// statusSaveSuccess is the only callback status the provider sends for a
// saved token; every other value means the token was not saved.
const statusSaveSuccess = "save-success"

type indexView struct {
	AppName string
}

type saveTokenView struct {
	AppName      string
	Username     string
	EncodedToken string
	State        string
	SaveTokenURL string
}

type invalidateTokenView struct {
	AppName      string
	Username     string
	EncodedToken string
	State        string
	SaveTokenURL string
	ObsoletesID  string
}

type saveResultView struct {
	AppName  string
	Username string
	RetryURL string
}

type unknownTokenView struct {
	AppName string
	ID      string
}

type errorView struct {
	AppName string
	Message string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := templates.ExecuteTemplate(w, "index.html", indexView{AppName: appName}); err != nil {
		http.Error(w, "failed to render index", http.StatusInternalServerError)
	}
}

// handleSaveToken mints a fresh recovery token for the username and asks the
// user to save it with the recovery provider. When a confirmed token already
// exists the renewal view is shown instead, with both ids in the state so the
// callback can retire the old token once the new one is saved.
func (s *Server) handleSaveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "recovery.save_token")
	defer span.End()

	unlock := s.lifecycle.LockUser(username)
	defer unlock()

	providerConfig, err := s.provider.Get(ctx)
	if err != nil {
		s.renderError(w, "The recovery provider is unavailable. Try again later.", http.StatusInternalServerError)
		return
	}

	existing, err := s.lifecycle.FindConfirmedForUser(ctx, username)
	if err != nil {
		s.renderError(w, "Failed to look up existing recovery tokens.", http.StatusInternalServerError)
		return
	}

	// A new token is needed either way: it sets up recovery for a user with
	// none, or replaces the confirmed token during renewal.
	issued, err := s.signer.Issue(providerConfig.Issuer, token.OptionStatusRequested, nil, nil)
	if err != nil {
		s.renderError(w, "Failed to issue a recovery token.", http.StatusInternalServerError)
		return
	}

	if _, err := s.lifecycle.Provision(ctx, username, providerConfig.Issuer, issued.ID, issued.Hash); err != nil {
		s.renderError(w, "Failed to record the recovery token.", http.StatusInternalServerError)
		return
	}

	if existing == nil {
		view := saveTokenView{
			AppName:      appName,
			Username:     username,
			EncodedToken: issued.Encoded,
			State:        State{TokenID: issued.ID}.Encode(),
			SaveTokenURL: providerConfig.SaveToken,
		}
		if err := templates.ExecuteTemplate(w, "save_token.html", view); err != nil {
			http.Error(w, "failed to render save token", http.StatusInternalServerError)
		}
		return
	}

	view := invalidateTokenView{
		AppName:      appName,
		Username:     username,
		EncodedToken: issued.Encoded,
		State:        State{TokenID: issued.ID, ObsoletesID: existing.ID}.Encode(),
		SaveTokenURL: providerConfig.SaveToken,
		ObsoletesID:  existing.ID,
	}
	if err := templates.ExecuteTemplate(w, "invalidate_token.html", view); err != nil {
		http.Error(w, "failed to render invalidate token", http.StatusInternalServerError)
	}
}

// handleSaveTokenReturn lands the browser after the provider acted on the
// token and updates the local record accordingly. An unknown token id is an
// expected condition: the service may have restarted with volatile storage,
// or the callback may be replayed or tampered with.
func (s *Server) handleSaveTokenReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "recovery.save_token_return")
	defer span.End()

	state := ParseState(r.URL.Query().Get("state"))

	rec, err := s.lifecycle.Get(ctx, state.TokenID)
	if err != nil {
		s.renderError(w, "Failed to look up the recovery token.", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		view := unknownTokenView{AppName: appName, ID: state.TokenID}
		if err := templates.ExecuteTemplate(w, "unknown_token.html", view); err != nil {
			http.Error(w, "failed to render unknown token", http.StatusInternalServerError)
		}
		return
	}

	unlock := s.lifecycle.LockUser(rec.Username)
	defer unlock()

	if r.URL.Query().Get("status") != statusSaveSuccess {
		// A declined provisional token never existed from the provider's
		// perspective; remove it rather than keeping an invalid tombstone.
		if err := s.lifecycle.Reject(ctx, state.TokenID); err != nil {
			s.renderError(w, "Failed to discard the recovery token.", http.StatusInternalServerError)
			return
		}
		view := saveResultView{
			AppName:  appName,
			Username: rec.Username,
			RetryURL: saveTokenURL(rec.Username),
		}
		if err := templates.ExecuteTemplate(w, "save_token_failure.html", view); err != nil {
			http.Error(w, "failed to render save failure", http.StatusInternalServerError)
		}
		return
	}

	// Confirm before invalidating the obsoleted record: the old token is
	// retired because the new one succeeded, so this order never leaves the
	// user without a usable token.
	if _, err := s.lifecycle.Confirm(ctx, state.TokenID); err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			view := unknownTokenView{AppName: appName, ID: state.TokenID}
			if renderErr := templates.ExecuteTemplate(w, "unknown_token.html", view); renderErr != nil {
				http.Error(w, "failed to render unknown token", http.StatusInternalServerError)
			}
			return
		}
		s.renderError(w, "Failed to confirm the recovery token.", http.StatusInternalServerError)
		return
	}
	if state.ObsoletesID != "" {
		if _, err := s.lifecycle.Invalidate(ctx, state.ObsoletesID); err != nil && !errors.Is(err, lifecycle.ErrNotFound) {
			s.renderError(w, "Failed to retire the replaced recovery token.", http.StatusInternalServerError)
			return
		}
	}

	view := saveResultView{AppName: appName, Username: rec.Username}
	if err := templates.ExecuteTemplate(w, "save_token_success.html", view); err != nil {
		http.Error(w, "failed to render save success", http.StatusInternalServerError)
	}
}

// handleInvalidateToken is the user-initiated "stop using this recovery
// method" path, independent of the provider callback. An unknown id is
// treated as already satisfied.
func (s *Server) handleInvalidateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "recovery.invalidate_token")
	defer span.End()

	id := r.URL.Query().Get("id")
	username := r.URL.Query().Get("username")

	if _, err := s.lifecycle.Invalidate(ctx, id); err != nil && !errors.Is(err, lifecycle.ErrNotFound) {
		s.renderError(w, "Failed to invalidate the recovery token.", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, saveTokenURL(username), http.StatusFound)
}

func (s *Server) renderError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	_ = templates.ExecuteTemplate(w, "error.html", errorView{AppName: appName, Message: message})
}

func saveTokenURL(username string) string {
	return "/save-token?username=" + url.QueryEscape(username)
}
