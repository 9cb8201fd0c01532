package slackclient

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/metrics"
)

// TokenSource returns the bot token installed for a workspace, or "" when the
// workspace never installed the app.
type TokenSource interface {
	BotToken(ctx context.Context, teamID string, enterpriseID *string) (string, error)
}

type Factory interface {
	ClientFor(ctx context.Context, teamID string, enterpriseID *string) (API, error)
}

type factory struct {
	tokens        TokenSource
	fallbackToken string
	metrics       *metrics.Metrics
	options       []slack.Option
}

// NewFactory returns a Factory that prefers the installed token of a
// workspace and falls back to fallbackToken for single-workspace setups.
func NewFactory(tokens TokenSource, fallbackToken string, m *metrics.Metrics, opts ...slack.Option) Factory {
	return &factory{
		tokens:        tokens,
		fallbackToken: fallbackToken,
		metrics:       m,
		options:       opts,
	}
}

func (f *factory) ClientFor(ctx context.Context, teamID string, enterpriseID *string) (API, error) {
	if teamID == "" {
		return nil, apperrors.MissingTeamContext("")
	}

	token, err := f.tokens.BotToken(ctx, teamID, enterpriseID)
	if err != nil {
		return nil, fmt.Errorf("resolve bot token: %w", err)
	}
	if token == "" {
		token = f.fallbackToken
	}
	if token == "" {
		return nil, apperrors.NotFound("Installation").
			WithDetails(apperrors.UserContext{TeamID: teamID})
	}

	return New(token, f.metrics, f.options...), nil
}
