package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tipjar/slack-tip-server/internal/audit"
	"github.com/tipjar/slack-tip-server/internal/model"
	"github.com/tipjar/slack-tip-server/internal/service"
)

// Installer is satisfied by service.InstallationService.
type Installer interface {
	InstallURL() (string, error)
	CompleteInstall(ctx context.Context, code, state string) (*model.SlackInstallation, error)
}

type OAuthHandler struct {
	installer Installer
}

func NewOAuthHandler(installer Installer) *OAuthHandler {
	return &OAuthHandler{installer: installer}
}

// Register adds the install routes to r. They sit next to the Slack delivery
// routes but outside signature verification.
func (h *OAuthHandler) Register(r chi.Router) {
	r.Get("/install", h.Install)
	r.Get("/oauth_redirect", h.Callback)
}

func (h *OAuthHandler) Install(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.installer.InstallURL()
	if err != nil {
		if errors.Is(err, service.ErrInstallNotConfigured) {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "Slack install not configured"})
			return
		}
		log.Error().Err(err).Msg("failed to build Slack install URL")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to start install"})
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		log.Warn().Str("error", errMsg).Msg("Slack install cancelled")
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventInstallFailure,
			Details: map[string]interface{}{"stage": "authorize", "error": errMsg},
		})
		writePage(w, http.StatusBadRequest, pageData{
			Title:   "Installation cancelled",
			Message: "The app was not installed. You can close this window.",
		})
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	inst, err := h.installer.CompleteInstall(r.Context(), code, state)
	if err != nil {
		log.Error().Err(err).Msg("Slack install failed")
		switch {
		case errors.Is(err, service.ErrInvalidState):
			writePage(w, http.StatusBadRequest, pageData{
				Title:   "Installation link expired",
				Message: "Please start the installation again.",
			})
		case errors.Is(err, service.ErrMissingAuthorizeGrant):
			writePage(w, http.StatusBadRequest, pageData{
				Title:   "Installation failed",
				Message: "Slack did not return an authorization code.",
			})
		default:
			writePage(w, http.StatusInternalServerError, pageData{
				Title:   "Installation failed",
				Message: "Something went wrong while installing the app. Please try again.",
			})
		}
		return
	}

	log.Info().Str("teamId", inst.TeamID).Str("teamName", inst.TeamName).Msg("Slack app installed")

	writePage(w, http.StatusOK, pageData{
		Title:   "Installed",
		Message: "The app is now installed in " + inst.TeamName + ". Run /configure in Slack to set your tip URL.",
	})
}
