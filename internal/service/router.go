package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/metrics"
	"github.com/tipjar/slack-tip-server/internal/model"
	"github.com/tipjar/slack-tip-server/internal/slackclient"
)

const (
	CommandTip       = "/tip"
	CommandConfigure = "/configure"

	subcommandConfigure = "configure"
)

// CommandRouter maps slash commands and interaction payloads onto the
// configuration and tip flows.
type CommandRouter struct {
	configs *ConfigurationService
	tips    *TipService
	metrics *metrics.Metrics
}

func NewCommandRouter(configs *ConfigurationService, tips *TipService, m *metrics.Metrics) *CommandRouter {
	return &CommandRouter{configs: configs, tips: tips, metrics: m}
}

func (r *CommandRouter) Dispatch(ctx context.Context, api slackclient.API, cmd slack.SlashCommand) error {
	switch cmd.Command {
	case CommandConfigure:
		return r.observe("command", r.configs.OpenConfigurationForm(ctx, api, formRequest(cmd)))
	case CommandTip:
		return r.observe("command", r.dispatchTip(ctx, api, cmd))
	default:
		return r.observe("command", r.replyUnknown(ctx, api, cmd))
	}
}

// dispatchTip opens the configuration form for "/tip configure" and for users
// without a stored URL, and posts the amount prompt otherwise.
func (r *CommandRouter) dispatchTip(ctx context.Context, api slackclient.API, cmd slack.SlashCommand) error {
	subcommand, _ := splitCommandText(cmd.Text)
	if subcommand == subcommandConfigure {
		return r.configs.OpenConfigurationForm(ctx, api, formRequest(cmd))
	}

	cfg, err := r.configs.Lookup(ctx, cmd.UserID, cmd.TeamID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return r.configs.OpenConfigurationForm(ctx, api, formRequest(cmd))
	}

	return r.tips.RequestTip(ctx, api, TipRequest{
		UserID:      cmd.UserID,
		TeamID:      cmd.TeamID,
		ChannelID:   cmd.ChannelID,
		ChannelName: cmd.ChannelName,
		ResponseURL: cmd.ResponseURL,
	})
}

func (r *CommandRouter) replyUnknown(ctx context.Context, api slackclient.API, cmd slack.SlashCommand) error {
	log.Info().Str("command", cmd.Command).Msg("unknown slash command")

	opts, viaURL := viaResponseURL(
		[]slack.MsgOption{slack.MsgOptionText(msgUnknownCommand, false)},
		cmd.ResponseURL,
		slack.ResponseTypeEphemeral,
	)
	var err error
	if viaURL {
		_, _, err = api.PostMessageContext(ctx, cmd.ChannelID, opts...)
	} else {
		_, err = api.PostEphemeralContext(ctx, cmd.ChannelID, cmd.UserID, opts...)
	}
	if err != nil {
		return apperrors.UpstreamDeliveryFailure("unknown command reply", err)
	}
	return nil
}

func formRequest(cmd slack.SlashCommand) FormRequest {
	return FormRequest{TriggerID: cmd.TriggerID, UserID: cmd.UserID, TeamID: cmd.TeamID}
}

// DispatchInteraction handles block actions and view submissions.
func (r *CommandRouter) DispatchInteraction(ctx context.Context, api slackclient.API, callback slack.InteractionCallback) error {
	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		var firstErr error
		for _, action := range callback.ActionCallback.BlockActions {
			if action == nil || !strings.HasPrefix(action.ActionID, model.AmountActionIDPrefix) {
				continue
			}
			err := r.tips.HandleAmountSelection(ctx, api, AmountSelection{
				ActionID:    action.ActionID,
				Value:       action.Value,
				ActorID:     callback.User.ID,
				ActorHandle: callback.User.Name,
				TeamID:      callback.Team.ID,
				ChannelID:   callback.Channel.ID,
				ChannelName: callback.Channel.Name,
				ResponseURL: callback.ResponseURL,
				DedupKey:    actionDedupKey(callback.TriggerID, action),
			})
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return r.observe("block_actions", firstErr)

	case slack.InteractionTypeViewSubmission:
		if callback.View.CallbackID != model.ConfigureModalCallbackID {
			log.Debug().Str("callbackId", callback.View.CallbackID).Msg("ignoring unknown view submission")
			return nil
		}
		return r.observe("view_submission", r.configs.SubmitConfiguration(ctx, api, SubmitParams{
			URL:        submittedURL(callback.View.State),
			TeamID:     callback.Team.ID,
			UserID:     callback.User.ID,
			UserHandle: callback.User.Name,
		}))

	default:
		log.Debug().Str("type", string(callback.Type)).Msg("ignoring interaction")
		return nil
	}
}

func (r *CommandRouter) observe(kind string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(apperrors.GetCode(err)))
	}
	r.metrics.SlackEvent(kind, outcome)
	return err
}

func splitCommandText(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func submittedURL(state *slack.ViewState) string {
	if state == nil {
		return ""
	}
	return state.Values[model.ConfigureURLBlockID][model.ConfigureURLActionID].Value
}

func actionDedupKey(triggerID string, action *slack.BlockAction) string {
	if triggerID == "" {
		return ""
	}
	return triggerID + ":" + action.ActionID
}
