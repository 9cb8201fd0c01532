package slackclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
)

type MockTokenSource struct {
	mock.Mock
}

func (m *MockTokenSource) BotToken(ctx context.Context, teamID string, enterpriseID *string) (string, error) {
	args := m.Called(ctx, teamID, enterpriseID)
	return args.String(0), args.Error(1)
}

func newSlackServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "", ErrorReason(nil))
	assert.Equal(t, "not_in_channel", ErrorReason(slack.SlackErrorResponse{Err: "not_in_channel"}))
	assert.Equal(t, "channel_not_found", ErrorReason(fmt.Errorf("post: %w", slack.SlackErrorResponse{Err: "channel_not_found"})))
	assert.Equal(t, "error", ErrorReason(errors.New("dial tcp: refused")))
}

func TestFactory_ClientFor(t *testing.T) {
	ctx := context.Background()

	t.Run("uses installed token", func(t *testing.T) {
		tokens := new(MockTokenSource)
		tokens.On("BotToken", ctx, "T1", (*string)(nil)).Return("xoxb-installed", nil)

		api, err := NewFactory(tokens, "xoxb-fallback", nil).ClientFor(ctx, "T1", nil)
		require.NoError(t, err)
		assert.NotNil(t, api)
		tokens.AssertExpectations(t)
	})

	t.Run("falls back to static token", func(t *testing.T) {
		tokens := new(MockTokenSource)
		tokens.On("BotToken", ctx, "T2", (*string)(nil)).Return("", nil)

		api, err := NewFactory(tokens, "xoxb-fallback", nil).ClientFor(ctx, "T2", nil)
		require.NoError(t, err)
		assert.NotNil(t, api)
	})

	t.Run("no token at all is not found", func(t *testing.T) {
		tokens := new(MockTokenSource)
		tokens.On("BotToken", ctx, "T3", (*string)(nil)).Return("", nil)

		_, err := NewFactory(tokens, "", nil).ClientFor(ctx, "T3", nil)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("missing team", func(t *testing.T) {
		_, err := NewFactory(new(MockTokenSource), "xoxb", nil).ClientFor(ctx, "", nil)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingTeamContext))
	})

	t.Run("token lookup failure propagates", func(t *testing.T) {
		tokens := new(MockTokenSource)
		tokens.On("BotToken", ctx, "T4", (*string)(nil)).Return("", errors.New("db down"))

		_, err := NewFactory(tokens, "xoxb", nil).ClientFor(ctx, "T4", nil)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestInstrumentedClient_SurfacesSlackErrors(t *testing.T) {
	srv := newSlackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"not_in_channel"}`))
	})

	api := New("xoxb-test", nil, slack.OptionAPIURL(srv.URL+"/"))
	_, _, err := api.PostMessageContext(context.Background(), "C1", slack.MsgOptionText("hi", false))
	require.Error(t, err)
	assert.Equal(t, "not_in_channel", ErrorReason(err))
}

func TestOAuthExchanger_BotID(t *testing.T) {
	srv := newSlackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth.test", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"user_id":"UB1","team_id":"T1","bot_id":"B123"}`))
	})

	ex := NewOAuthExchanger("id", "secret", slack.OptionAPIURL(srv.URL+"/"))
	botID, err := ex.BotID(context.Background(), "xoxb-test")
	require.NoError(t, err)
	assert.Equal(t, "B123", botID)
}
