package service

import (
	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
)

const (
	msgConfigureFirst   = "Please configure your payment URL first using `/tip configure`"
	msgNotConfigured    = "Error: Payment URL not configured"
	msgTipFailed        = "Sorry, something went wrong while preparing your tip."
	msgConfigSaved      = "Tip URL set to "
	msgConfigSaveFailed = "Sorry, there was an error saving your configuration."
	msgInviteBot        = "I can't post in this channel. Invite me with `/invite` and try again."
	msgUnknownCommand   = "Sorry, I don't know that command."
)

// userMessage maps an error to the text shown to the acting user. The
// underlying error text is never shown.
func userMessage(err error, fallback string) string {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotConfigured:
		return msgNotConfigured
	case apperrors.ErrCodeChannelAccessDenied:
		return msgInviteBot
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeMissingTeamContext,
		apperrors.ErrCodeMissingUserContext,
		apperrors.ErrCodeMalformedActionPayload,
		apperrors.ErrCodeUpstreamDeliveryFailure,
		apperrors.ErrCodeNotFound,
		apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeRateLimitExceeded,
		apperrors.ErrCodeDatabase,
		apperrors.ErrCodeUncaughtFatal,
		apperrors.ErrCodeInternal:
		return fallback
	default:
		return fallback
	}
}
