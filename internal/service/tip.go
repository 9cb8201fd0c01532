package service

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/metrics"
	"github.com/tipjar/slack-tip-server/internal/model"
	"github.com/tipjar/slack-tip-server/internal/slackclient"
	"github.com/tipjar/slack-tip-server/internal/util"
)

// ImageSource returns the QR code PNG for a user's payment URL.
type ImageSource interface {
	Get(ctx context.Context, userID, paymentURL string) ([]byte, error)
}

// ImageURLFunc returns the public link of a user's QR image, or "" when the
// image endpoint is not reachable from Slack.
type ImageURLFunc func(userID string) string

const defaultActorName = "Someone"

type TipService struct {
	configs  ConfigurationLookup
	images   ImageSource
	dedup    Deduplicator
	imageURL ImageURLFunc
	metrics  *metrics.Metrics
}

func NewTipService(
	configs ConfigurationLookup,
	images ImageSource,
	dedup Deduplicator,
	imageURL ImageURLFunc,
	m *metrics.Metrics,
) *TipService {
	if imageURL == nil {
		imageURL = func(string) string { return "" }
	}
	return &TipService{
		configs:  configs,
		images:   images,
		dedup:    dedup,
		imageURL: imageURL,
		metrics:  m,
	}
}

type TipRequest struct {
	UserID      string
	TeamID      string
	ChannelID   string
	ChannelName string
	ResponseURL string
}

// RequestTip posts the amount prompt for the requesting user into the channel.
func (s *TipService) RequestTip(ctx context.Context, api slackclient.API, req TipRequest) error {
	if req.UserID == "" {
		return apperrors.MissingUserContext(req.TeamID)
	}

	cfg, err := s.configs.Lookup(ctx, req.UserID, req.TeamID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return s.postPrompt(ctx, api, req, slack.MsgOptionText(msgConfigureFirst, false))
	}

	return s.postPrompt(ctx, api, req,
		slack.MsgOptionText(amountPromptText(req.UserID), false),
		slack.MsgOptionBlocks(amountPromptBlocks(req.UserID)...),
	)
}

// postPrompt delivers a public message for a slash command. Direct message
// channels go through the command's response_url since the bot may not be a
// member of them.
func (s *TipService) postPrompt(ctx context.Context, api slackclient.API, req TipRequest, opts ...slack.MsgOption) error {
	if isDirectMessage(req.ChannelID, req.ChannelName) {
		opts, _ = viaResponseURL(opts, req.ResponseURL, slack.ResponseTypeInChannel)
	}

	_, _, err := api.PostMessageContext(ctx, req.ChannelID, opts...)
	if err == nil {
		return nil
	}

	reason := slackclient.ErrorReason(err)
	if !isChannelAccessError(reason) {
		return apperrors.UpstreamDeliveryFailure("chat.postMessage", err)
	}

	denied := apperrors.ChannelAccessDenied(req.ChannelID, reason)
	log.Warn().
		Str("channelId", req.ChannelID).
		Str("reason", reason).
		Msg("bot cannot post to channel, sending ephemeral fallback")

	fallback, viaURL := viaResponseURL(
		[]slack.MsgOption{slack.MsgOptionText(msgInviteBot, false)},
		req.ResponseURL,
		slack.ResponseTypeEphemeral,
	)
	if viaURL {
		_, _, err = api.PostMessageContext(ctx, req.ChannelID, fallback...)
	} else {
		_, err = api.PostEphemeralContext(ctx, req.ChannelID, req.UserID, fallback...)
	}
	if err != nil {
		log.Warn().Err(err).Str("channelId", req.ChannelID).Msg("ephemeral fallback failed")
	}
	return denied
}

func isChannelAccessError(reason string) bool {
	switch reason {
	case "channel_not_found", "not_in_channel", "channel_is_archived":
		return true
	}
	return false
}

type AmountSelection struct {
	ActionID    string
	Value       string
	ActorID     string
	ActorHandle string
	TeamID      string
	ChannelID   string
	ChannelName string
	ResponseURL string
	DedupKey    string
}

// HandleAmountSelection announces a tip publicly and sends the recipient's
// payment link and QR code privately to the actor.
func (s *TipService) HandleAmountSelection(ctx context.Context, api slackclient.API, sel AmountSelection) error {
	if !s.dedup.FirstSeen(ctx, sel.DedupKey) {
		log.Info().Str("dedupKey", sel.DedupKey).Msg("duplicate amount selection ignored")
		return nil
	}

	announced, err := s.tip(ctx, api, sel)
	if err == nil {
		return nil
	}

	// A retry may succeed as long as nobody has seen the announcement yet.
	if !announced && isTransient(err) {
		s.dedup.Forget(ctx, sel.DedupKey)
	}

	if sel.ChannelID != "" && sel.ActorID != "" {
		text := userMessage(err, msgTipFailed)
		if postErr := s.deliver(ctx, api, sel, slack.ResponseTypeEphemeral, slack.MsgOptionText(text, false)); postErr != nil {
			log.Warn().Err(postErr).Str("channelId", sel.ChannelID).Msg("failed to deliver tip error")
		}
	}

	if apperrors.HasCode(err, apperrors.ErrCodeNotConfigured) {
		log.Info().Str("actorId", sel.ActorID).Msg("tip for unconfigured recipient")
		return nil
	}
	return err
}

func isTransient(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeDatabase, apperrors.ErrCodeUpstreamDeliveryFailure:
		return true
	}
	return false
}

// tip reports whether the public announcement went out along with any error.
func (s *TipService) tip(ctx context.Context, api slackclient.API, sel AmountSelection) (bool, error) {
	amount, recipientID, err := parseAmountValue(sel.ActionID, sel.Value)
	if err != nil {
		return false, err
	}
	if sel.ActorID == "" {
		return false, apperrors.MissingUserContext(sel.TeamID)
	}

	recipient, err := s.configs.Lookup(ctx, recipientID, sel.TeamID)
	if err != nil {
		return false, err
	}
	if recipient == nil {
		return false, apperrors.NotConfigured(recipientID, sel.TeamID)
	}

	actor := displayName(ctx, api, sel.ActorID, sel.ActorHandle)
	if actor == "" {
		actor = defaultActorName
	}
	recipientName := recipient.DisplayName()
	if recipientName == "" {
		recipientName = fmt.Sprintf("<@%s>", recipientID)
	}

	announcement := fmt.Sprintf("%s tipped %s $%d!", actor, recipientName, amount)
	if err := s.deliver(ctx, api, sel, slack.ResponseTypeInChannel, slack.MsgOptionText(announcement, false)); err != nil {
		reason := slackclient.ErrorReason(err)
		if isChannelAccessError(reason) {
			return false, apperrors.ChannelAccessDenied(sel.ChannelID, reason)
		}
		return false, apperrors.UpstreamDeliveryFailure("chat.postMessage", err)
	}
	s.metrics.Tip(strconv.Itoa(amount))

	imageURL := s.versionedImageURL(recipient)
	err = s.deliver(ctx, api, sel, slack.ResponseTypeEphemeral,
		slack.MsgOptionText(recipient.URL, false),
		slack.MsgOptionBlocks(privateTipBlocks(recipientName, recipient.URL, imageURL)...),
	)
	if err != nil {
		return true, apperrors.UpstreamDeliveryFailure("chat.postEphemeral", err)
	}

	if imageURL == "" {
		return true, s.uploadQR(ctx, api, sel.ActorID, recipient, recipientName, amount)
	}
	return true, nil
}

// deliver posts into the selection's channel. Direct messages go through the
// interaction's response_url since the bot is usually not a member of them.
func (s *TipService) deliver(ctx context.Context, api slackclient.API, sel AmountSelection, responseType string, opts ...slack.MsgOption) error {
	if isDirectMessage(sel.ChannelID, sel.ChannelName) {
		if viaURL, ok := viaResponseURL(opts, sel.ResponseURL, responseType); ok {
			_, _, err := api.PostMessageContext(ctx, sel.ChannelID, viaURL...)
			return err
		}
	}

	if responseType == slack.ResponseTypeEphemeral {
		_, err := api.PostEphemeralContext(ctx, sel.ChannelID, sel.ActorID, opts...)
		return err
	}
	_, _, err := api.PostMessageContext(ctx, sel.ChannelID, opts...)
	return err
}

// versionedImageURL adds the team and a content version to the image link,
// so Slack's image proxy refetches after the URL changes.
func (s *TipService) versionedImageURL(recipient *model.UserConfiguration) string {
	base := s.imageURL(recipient.UserID)
	if base == "" {
		return ""
	}
	q := url.Values{}
	q.Set("team", recipient.TeamID)
	q.Set("v", util.HashKey(recipient.URL)[:12])
	return base + "?" + q.Encode()
}

func (s *TipService) uploadQR(ctx context.Context, api slackclient.API, actorID string, recipient *model.UserConfiguration, recipientName string, amount int) error {
	png, err := s.images.Get(ctx, recipient.UserID, recipient.URL)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}

	channel, _, _, err := api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{actorID},
	})
	if err != nil {
		return apperrors.UpstreamDeliveryFailure("conversations.open", err)
	}

	_, err = api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:        channel.ID,
		Reader:         bytes.NewReader(png),
		FileSize:       len(png),
		Filename:       fmt.Sprintf("payment-qr-%d.png", amount),
		Title:          fmt.Sprintf("Tip %s", recipientName),
		InitialComment: fmt.Sprintf("QR Code for $%d payment", amount),
	})
	if err != nil {
		return apperrors.UpstreamDeliveryFailure("files.uploadV2", err)
	}
	return nil
}
