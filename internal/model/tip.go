package model

// TipAmounts are the fixed amount choices offered by the tip prompt, in order.
var TipAmounts = []int{1, 5, 10}

const (
	ConfigureModalCallbackID = "configure_modal"
	ConfigureURLBlockID      = "url_input"
	ConfigureURLActionID     = "url"

	AmountSelectionBlockID = "qr_amount_selection"
	AmountActionIDPrefix   = "qr_amount_"
)
