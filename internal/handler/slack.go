package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/jobs"
	"github.com/tipjar/slack-tip-server/internal/slackclient"
)

// EventRouter is satisfied by service.CommandRouter.
type EventRouter interface {
	Dispatch(ctx context.Context, api slackclient.API, cmd slack.SlashCommand) error
	DispatchInteraction(ctx context.Context, api slackclient.API, callback slack.InteractionCallback) error
}

// Submitter is satisfied by jobs.Dispatcher.
type Submitter interface {
	Submit(name string, task jobs.Task) bool
}

// SlackHandler acknowledges Slack deliveries immediately and hands the work
// to the dispatcher, since Slack expects an answer within three seconds.
type SlackHandler struct {
	clients slackclient.Factory
	router  EventRouter
	jobs    Submitter
}

func NewSlackHandler(clients slackclient.Factory, router EventRouter, jobs Submitter) *SlackHandler {
	return &SlackHandler{
		clients: clients,
		router:  router,
		jobs:    jobs,
	}
}

// Register adds the Slack delivery routes to r. The caller is expected to
// have installed signature verification on r.
func (h *SlackHandler) Register(r chi.Router) {
	r.Post("/commands", h.Command)
	r.Post("/interactions", h.Interaction)
}

func (h *SlackHandler) Command(w http.ResponseWriter, r *http.Request) {
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		log.Warn().Err(err).Msg("failed to parse slash command")
		writeError(w, apperrors.ValidationError("Malformed slash command"))
		return
	}

	log.Debug().
		Str("command", cmd.Command).
		Str("teamId", cmd.TeamID).
		Str("userId", cmd.UserID).
		Msg("slash command received")

	h.submit("command "+cmd.Command, cmd.TeamID, optional(cmd.EnterpriseID), func(ctx context.Context, api slackclient.API) error {
		return h.router.Dispatch(ctx, api, cmd)
	})

	w.WriteHeader(http.StatusOK)
}

func (h *SlackHandler) Interaction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, apperrors.ValidationError("Malformed form body"))
		return
	}

	payload := r.PostFormValue("payload")
	if payload == "" {
		writeError(w, apperrors.ValidationError("Missing payload"))
		return
	}

	var (
		callback slack.InteractionCallback
		envelope interactionEnvelope
	)
	if err := decodeInteraction(payload, &callback, &envelope); err != nil {
		log.Warn().Err(err).Msg("failed to decode interaction payload")
		writeError(w, apperrors.ValidationError("Malformed interaction payload"))
		return
	}

	teamID := callback.Team.ID
	if teamID == "" {
		teamID = callback.User.TeamID
	}

	log.Debug().
		Str("type", string(callback.Type)).
		Str("teamId", teamID).
		Str("userId", callback.User.ID).
		Msg("interaction received")

	h.submit("interaction "+string(callback.Type), teamID, optional(envelope.Enterprise.ID), func(ctx context.Context, api slackclient.API) error {
		return h.router.DispatchInteraction(ctx, api, callback)
	})

	// An empty 200 also closes a submitted modal.
	w.WriteHeader(http.StatusOK)
}

func (h *SlackHandler) submit(name, teamID string, enterpriseID *string, fn func(ctx context.Context, api slackclient.API) error) {
	accepted := h.jobs.Submit(name, func(ctx context.Context) error {
		api, err := h.clients.ClientFor(ctx, teamID, enterpriseID)
		if err != nil {
			return err
		}
		return fn(ctx, api)
	})
	if !accepted {
		log.Warn().Str("task", name).Str("teamId", teamID).Msg("dispatcher stopped, dropping slack event")
	}
}

// decodeInteraction unmarshals the same payload into each target.
func decodeInteraction(payload string, targets ...any) error {
	for _, target := range targets {
		if err := json.Unmarshal([]byte(payload), target); err != nil {
			return err
		}
	}
	return nil
}

// interactionEnvelope picks the enterprise of org-wide installs out of an
// interaction payload.
type interactionEnvelope struct {
	Enterprise struct {
		ID string `json:"id"`
	} `json:"enterprise"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
