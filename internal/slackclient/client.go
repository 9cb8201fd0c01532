// Package slackclient resolves workspace-scoped Slack Web API clients.
package slackclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/tipjar/slack-tip-server/internal/metrics"
)

// API is the subset of the Slack Web API used by the tip flows.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

var _ API = (*slack.Client)(nil)
var _ API = (*instrumented)(nil)

const apiTimeout = 10 * time.Second

// New builds a client for token. Extra options are passed through to slack.New.
func New(token string, m *metrics.Metrics, opts ...slack.Option) API {
	opts = append([]slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: apiTimeout})}, opts...)
	return &instrumented{client: slack.New(token, opts...), metrics: m}
}

// instrumented records a call counter and latency for every Web API method.
type instrumented struct {
	client  *slack.Client
	metrics *metrics.Metrics
}

func (c *instrumented) observe(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = ErrorReason(err)
	}
	c.metrics.SlackAPICall(method, status, time.Since(start).Seconds())
}

func (c *instrumented) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	start := time.Now()
	ch, ts, err := c.client.PostMessageContext(ctx, channelID, options...)
	c.observe("chat.postMessage", start, err)
	return ch, ts, err
}

func (c *instrumented) PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error) {
	start := time.Now()
	ts, err := c.client.PostEphemeralContext(ctx, channelID, userID, options...)
	c.observe("chat.postEphemeral", start, err)
	return ts, err
}

func (c *instrumented) OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error) {
	start := time.Now()
	resp, err := c.client.OpenViewContext(ctx, triggerID, view)
	c.observe("views.open", start, err)
	return resp, err
}

func (c *instrumented) GetUserInfoContext(ctx context.Context, user string) (*slack.User, error) {
	start := time.Now()
	u, err := c.client.GetUserInfoContext(ctx, user)
	c.observe("users.info", start, err)
	return u, err
}

func (c *instrumented) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	start := time.Now()
	ch, noOp, already, err := c.client.OpenConversationContext(ctx, params)
	c.observe("conversations.open", start, err)
	return ch, noOp, already, err
}

func (c *instrumented) UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	start := time.Now()
	f, err := c.client.UploadFileV2Context(ctx, params)
	c.observe("files.uploadV2", start, err)
	return f, err
}

// ErrorReason returns the Slack error string (e.g. "not_in_channel") of err,
// or "error" when err did not come from a Slack error response.
func ErrorReason(err error) string {
	if err == nil {
		return ""
	}
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) && slackErr.Err != "" {
		return slackErr.Err
	}
	return "error"
}
