package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/model"
)

func configurationModal(existingURL string) slack.ModalViewRequest {
	input := slack.NewURLTextInputBlockElement(
		slack.NewTextBlockObject(slack.PlainTextType, "Enter your URL", false, false),
		model.ConfigureURLActionID,
	)
	if existingURL != "" {
		input.InitialValue = existingURL
	}

	block := slack.NewInputBlock(
		model.ConfigureURLBlockID,
		slack.NewTextBlockObject(slack.PlainTextType, "URL", false, false),
		nil,
		input,
	)

	return slack.ModalViewRequest{
		Type:       slack.VTModal,
		CallbackID: model.ConfigureModalCallbackID,
		Title:      slack.NewTextBlockObject(slack.PlainTextType, "Configure Tips", false, false),
		Submit:     slack.NewTextBlockObject(slack.PlainTextType, "Save", false, false),
		Close:      slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks:     slack.Blocks{BlockSet: []slack.Block{block}},
	}
}

func amountPromptBlocks(userID string) []slack.Block {
	buttons := make([]slack.BlockElement, 0, len(model.TipAmounts))
	for _, amount := range model.TipAmounts {
		buttons = append(buttons, slack.NewButtonBlockElement(
			model.AmountActionIDPrefix+strconv.Itoa(amount),
			encodeAmountValue(amount, userID),
			slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("$%d", amount), true, false),
		))
	}

	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, amountPromptText(userID), false, false),
			nil, nil,
		),
		slack.NewActionBlock(model.AmountSelectionBlockID, buttons...),
	}
}

func amountPromptText(userID string) string {
	return fmt.Sprintf("Select an amount to tip <@%s>:", userID)
}

// privateTipBlocks shows the payment URL and, when imageURL is set, the QR
// code served by the image endpoint.
func privateTipBlocks(recipientName, paymentURL, imageURL string) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, paymentURL, false, false),
			nil, nil,
		),
	}
	if imageURL != "" {
		blocks = append(blocks, slack.NewImageBlock(
			imageURL,
			fmt.Sprintf("QR code to tip %s", recipientName),
			"",
			nil,
		))
	}
	return blocks
}

func encodeAmountValue(amount int, userID string) string {
	return fmt.Sprintf("%d:%s", amount, userID)
}

// parseAmountValue decodes an "<amount>:<userId>" button value.
func parseAmountValue(actionID, value string) (int, string, error) {
	amountPart, userID, found := strings.Cut(value, ":")
	if !found || amountPart == "" || userID == "" {
		return 0, "", apperrors.MalformedActionPayload(actionID, value)
	}

	amount, err := strconv.Atoi(amountPart)
	if err != nil || amount <= 0 {
		return 0, "", apperrors.MalformedActionPayload(actionID, value)
	}
	return amount, userID, nil
}
