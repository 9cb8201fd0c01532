package service

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/model"
)

const testResponseURL = "https://hooks.slack.com/commands/T1/123/abc"

var fakePNG = []byte{0x89, 'P', 'N', 'G'}

func newTipFixture(imageBase string) (*TipService, *mockConfigRepo, *fakeSlack) {
	repo := new(mockConfigRepo)
	var imageURL ImageURLFunc
	if imageBase != "" {
		imageURL = func(userID string) string { return imageBase + "/api/tip/" + userID }
	}
	svc := NewTipService(
		NewConfigurationService(repo, nil),
		staticImages{png: fakePNG},
		newMemoryDedup(),
		imageURL,
		nil,
	)
	return svc, repo, newFakeSlack()
}

func bob() *model.UserConfiguration {
	return &model.UserConfiguration{
		UserID:   "U2",
		TeamID:   "T1",
		URL:      "https://pay.example/bob",
		UserName: strPtr("Bob Smith"),
	}
}

func TestTipService_RequestTip(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured user gets only the configure hint", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U1", "T1").Return(nil, nil)

		err := svc.RequestTip(ctx, api, TipRequest{UserID: "U1", TeamID: "T1", ChannelID: "C1"})
		require.NoError(t, err)

		require.Len(t, api.messages, 1)
		assert.Equal(t, "Please configure your payment URL first using `/tip configure`", api.messages[0].Text())
		assert.Empty(t, api.messages[0].Blocks())
	})

	t.Run("configured user gets the amount prompt", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U1", "T1").
			Return(&model.UserConfiguration{UserID: "U1", TeamID: "T1", URL: "https://pay.example/u1"}, nil)

		err := svc.RequestTip(ctx, api, TipRequest{UserID: "U1", TeamID: "T1", ChannelID: "C1", ResponseURL: testResponseURL})
		require.NoError(t, err)

		require.Len(t, api.messages, 1)
		msg := api.messages[0]
		assert.Equal(t, "C1", msg.Channel)
		assert.Equal(t, "Select an amount to tip <@U1>:", msg.Text())
		assert.NotEqual(t, testResponseURL, msg.Endpoint)
		for _, want := range []string{
			`"block_id":"qr_amount_selection"`,
			`"action_id":"qr_amount_1"`, `"value":"1:U1"`,
			`"action_id":"qr_amount_5"`, `"value":"5:U1"`,
			`"action_id":"qr_amount_10"`, `"value":"10:U1"`,
			`"text":"$5"`,
		} {
			assert.Contains(t, msg.Blocks(), want)
		}
	})

	t.Run("direct messages go through response_url", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U1", "T1").
			Return(&model.UserConfiguration{UserID: "U1", TeamID: "T1", URL: "https://pay.example/u1"}, nil)

		err := svc.RequestTip(ctx, api, TipRequest{
			UserID: "U1", TeamID: "T1", ChannelID: "D1", ChannelName: "directmessage", ResponseURL: testResponseURL,
		})
		require.NoError(t, err)
		require.Len(t, api.messages, 1)
		assert.Equal(t, testResponseURL, api.messages[0].Endpoint)
	})

	t.Run("channel access failure falls back to ephemeral", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U1", "T1").
			Return(&model.UserConfiguration{UserID: "U1", TeamID: "T1", URL: "https://pay.example/u1"}, nil)
		api.postErrs["C1"] = slack.SlackErrorResponse{Err: "not_in_channel"}

		err := svc.RequestTip(ctx, api, TipRequest{UserID: "U1", TeamID: "T1", ChannelID: "C1", ResponseURL: testResponseURL})

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeChannelAccessDenied, appErr.Code)
		assert.Equal(t, apperrors.ChannelDetails{ChannelID: "C1", Reason: "not_in_channel"}, appErr.Details)

		require.Len(t, api.messages, 1)
		assert.Equal(t, testResponseURL, api.messages[0].Endpoint)
		assert.Contains(t, api.messages[0].Text(), "/invite")
	})

	t.Run("other upstream failures are not channel access", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U1", "T1").
			Return(&model.UserConfiguration{UserID: "U1", TeamID: "T1", URL: "https://pay.example/u1"}, nil)
		api.postErrs["C1"] = slack.SlackErrorResponse{Err: "ratelimited"}

		err := svc.RequestTip(ctx, api, TipRequest{UserID: "U1", TeamID: "T1", ChannelID: "C1"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUpstreamDeliveryFailure))
		assert.Empty(t, api.messages)
	})
}

func TestTipService_HandleAmountSelection(t *testing.T) {
	ctx := context.Background()

	selection := func() AmountSelection {
		return AmountSelection{
			ActionID:    "qr_amount_5",
			Value:       "5:U2",
			ActorID:     "U1",
			ActorHandle: "alice",
			TeamID:      "T1",
			ChannelID:   "C1",
			DedupKey:    "trigger-1:qr_amount_5",
		}
	}

	t.Run("announces publicly and sends the link privately", func(t *testing.T) {
		svc, repo, api := newTipFixture("https://tips.example")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(bob(), nil)
		api.users["U1"] = &slack.User{ID: "U1", RealName: "Alice Doe"}

		err := svc.HandleAmountSelection(ctx, api, selection())
		require.NoError(t, err)

		public := api.public()
		require.Len(t, public, 1)
		assert.Equal(t, "C1", public[0].Channel)
		assert.Equal(t, "Alice Doe tipped Bob Smith $5!", public[0].Text())

		private := api.ephemerals()
		require.Len(t, private, 1)
		assert.Equal(t, "U1", private[0].User)
		assert.Equal(t, "https://pay.example/bob", private[0].Text())
		assert.Contains(t, private[0].Blocks(), `"type":"image"`)
		assert.Contains(t, private[0].Blocks(), "https://tips.example/api/tip/U2?team=T1")
		assert.Empty(t, api.uploads)
	})

	t.Run("uploads the image into the actor's DM without a public base url", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(bob(), nil)

		err := svc.HandleAmountSelection(ctx, api, selection())
		require.NoError(t, err)

		private := api.ephemerals()
		require.Len(t, private, 1)
		assert.NotContains(t, private[0].Blocks(), `"type":"image"`)

		require.Len(t, api.uploads, 1)
		assert.Equal(t, "DU1", api.uploads[0].Channel)
		assert.Equal(t, "payment-qr-5.png", api.uploads[0].Filename)
		assert.Equal(t, len(fakePNG), api.uploads[0].FileSize)
	})

	t.Run("actor name falls back to handle then Someone", func(t *testing.T) {
		svc, repo, api := newTipFixture("https://tips.example")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(bob(), nil)

		sel := selection()
		require.NoError(t, svc.HandleAmountSelection(ctx, api, sel))
		assert.Equal(t, "alice tipped Bob Smith $5!", api.public()[0].Text())

		sel.ActorHandle = ""
		sel.DedupKey = "trigger-2:qr_amount_5"
		require.NoError(t, svc.HandleAmountSelection(ctx, api, sel))
		assert.Equal(t, "Someone tipped Bob Smith $5!", api.public()[1].Text())
	})

	t.Run("recipient without a stored name is mentioned", func(t *testing.T) {
		svc, repo, api := newTipFixture("https://tips.example")
		recipient := bob()
		recipient.UserName = nil
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(recipient, nil)

		require.NoError(t, svc.HandleAmountSelection(ctx, api, selection()))
		assert.Equal(t, "alice tipped <@U2> $5!", api.public()[0].Text())
	})

	t.Run("unconfigured recipient gets an ephemeral error only", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(nil, nil)

		err := svc.HandleAmountSelection(ctx, api, selection())
		require.NoError(t, err)

		assert.Empty(t, api.public())
		private := api.ephemerals()
		require.Len(t, private, 1)
		assert.Equal(t, "Error: Payment URL not configured", private[0].Text())
	})

	malformed := []string{"5", "5:", ":U2", "abc:U2", "0:U2", "-1:U2", ""}
	for _, value := range malformed {
		t.Run("malformed value "+value, func(t *testing.T) {
			svc, repo, api := newTipFixture("")

			sel := selection()
			sel.Value = value
			err := svc.HandleAmountSelection(ctx, api, sel)

			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMalformedActionPayload))
			assert.Empty(t, api.public())
			repo.AssertNotCalled(t, "FindByUserAndTeam", mock.Anything, mock.Anything, mock.Anything)

			private := api.ephemerals()
			require.Len(t, private, 1)
			assert.Equal(t, "Sorry, something went wrong while preparing your tip.", private[0].Text())
		})
	}

	t.Run("replayed action is announced once", func(t *testing.T) {
		svc, repo, api := newTipFixture("https://tips.example")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(bob(), nil)

		require.NoError(t, svc.HandleAmountSelection(ctx, api, selection()))
		require.NoError(t, svc.HandleAmountSelection(ctx, api, selection()))

		assert.Len(t, api.public(), 1)
		assert.Len(t, api.ephemerals(), 1)
	})

	t.Run("direct message tips go through the interaction response_url", func(t *testing.T) {
		svc, repo, api := newTipFixture("https://tips.example")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(bob(), nil)
		api.postErrs["D1"] = slack.SlackErrorResponse{Err: "channel_not_found"}

		sel := selection()
		sel.ChannelID = "D1"
		sel.ChannelName = "directmessage"
		sel.ResponseURL = testResponseURL
		require.NoError(t, svc.HandleAmountSelection(ctx, api, sel))

		require.Len(t, api.messages, 2)
		announcement, private := api.messages[0], api.messages[1]

		assert.Equal(t, testResponseURL, announcement.Endpoint)
		assert.Equal(t, slack.ResponseTypeInChannel, announcement.Values.Get("response_type"))
		assert.Equal(t, "alice tipped Bob Smith $5!", announcement.Text())

		assert.Equal(t, testResponseURL, private.Endpoint)
		assert.Equal(t, slack.ResponseTypeEphemeral, private.Values.Get("response_type"))
		assert.Equal(t, "https://pay.example/bob", private.Text())
		assert.Contains(t, private.Blocks(), `"type":"image"`)
	})

	t.Run("direct message errors go through the interaction response_url", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(nil, nil)
		api.postErrs["D1"] = slack.SlackErrorResponse{Err: "channel_not_found"}

		sel := selection()
		sel.ChannelID = "D1"
		sel.ResponseURL = testResponseURL
		require.NoError(t, svc.HandleAmountSelection(ctx, api, sel))

		require.Len(t, api.messages, 1)
		assert.Equal(t, testResponseURL, api.messages[0].Endpoint)
		assert.Equal(t, slack.ResponseTypeEphemeral, api.messages[0].Values.Get("response_type"))
		assert.Equal(t, "Error: Payment URL not configured", api.messages[0].Text())
	})

	t.Run("transient failure before the announcement can be retried", func(t *testing.T) {
		svc, repo, api := newTipFixture("https://tips.example")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(nil, errors.New("db down")).Once()
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(bob(), nil)

		err := svc.HandleAmountSelection(ctx, api, selection())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))

		require.NoError(t, svc.HandleAmountSelection(ctx, api, selection()))
		require.Len(t, api.public(), 1)
		assert.Equal(t, "alice tipped Bob Smith $5!", api.public()[0].Text())
	})

	t.Run("failure after the announcement is not retried", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(bob(), nil)
		api.uploadErr = errors.New("boom")

		assert.Error(t, svc.HandleAmountSelection(ctx, api, selection()))
		api.uploadErr = nil
		require.NoError(t, svc.HandleAmountSelection(ctx, api, selection()))

		assert.Len(t, api.public(), 1)
		assert.Empty(t, api.uploads)
	})

	t.Run("upload failure reports a generic error", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(bob(), nil)
		api.uploadErr = errors.New("boom")

		err := svc.HandleAmountSelection(ctx, api, selection())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUpstreamDeliveryFailure))

		private := api.ephemerals()
		require.Len(t, private, 2)
		assert.Equal(t, "Sorry, something went wrong while preparing your tip.", private[1].Text())
		assert.NotContains(t, private[1].Text(), "boom")
	})

	t.Run("failure to deliver the error is swallowed", func(t *testing.T) {
		svc, repo, api := newTipFixture("")
		repo.On("FindByUserAndTeam", mock.Anything, "U2", "T1").Return(nil, errors.New("db down"))
		api.ephemeralErr = errors.New("slack down")

		err := svc.HandleAmountSelection(ctx, api, selection())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
	})
}

func TestParseAmountValue(t *testing.T) {
	amount, userID, err := parseAmountValue("qr_amount_10", "10:U123")
	require.NoError(t, err)
	assert.Equal(t, 10, amount)
	assert.Equal(t, "U123", userID)

	_, _, err = parseAmountValue("qr_amount_10", "10")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ActionPayloadDetails{ActionID: "qr_amount_10", Value: "10"}, appErr.Details)
}
