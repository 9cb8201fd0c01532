package slackclient

import (
	"context"
	"net/http"

	"github.com/slack-go/slack"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
)

// OAuthExchanger performs the server side of the OAuth v2 install flow.
type OAuthExchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (*slack.OAuthV2Response, error)
	BotID(ctx context.Context, token string) (string, error)
}

type oauthExchanger struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	options      []slack.Option
}

func NewOAuthExchanger(clientID, clientSecret string, opts ...slack.Option) OAuthExchanger {
	return &oauthExchanger{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: apiTimeout},
		options:      opts,
	}
}

func (o *oauthExchanger) Exchange(ctx context.Context, code, redirectURI string) (*slack.OAuthV2Response, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, o.httpClient, o.clientID, o.clientSecret, code, redirectURI)
	if err != nil {
		return nil, apperrors.UpstreamDeliveryFailure("oauth.v2.access", err)
	}
	return resp, nil
}

// BotID resolves the bot id of token through auth.test.
func (o *oauthExchanger) BotID(ctx context.Context, token string) (string, error) {
	opts := append([]slack.Option{slack.OptionHTTPClient(o.httpClient)}, o.options...)
	resp, err := slack.New(token, opts...).AuthTestContext(ctx)
	if err != nil {
		return "", apperrors.UpstreamDeliveryFailure("auth.test", err)
	}
	return resp.BotID, nil
}
