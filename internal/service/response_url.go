package service

import (
	"net/url"
	"strings"

	"github.com/slack-go/slack"
)

var allowedResponseHosts = []string{
	".slack.com",
}

// isValidResponseURL accepts only https URLs on Slack's hosts so a forged
// response_url cannot turn the bot into a request proxy.
func isValidResponseURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if parsed.Scheme != "https" {
		return false
	}

	hostname := strings.ToLower(parsed.Hostname())
	for _, suffix := range allowedResponseHosts {
		if strings.HasSuffix(hostname, suffix) {
			return true
		}
	}

	return false
}

func isDirectMessage(channelID, channelName string) bool {
	return channelName == "directmessage" || strings.HasPrefix(channelID, "D")
}

// viaResponseURL appends a response_url delivery option when rawURL is usable.
func viaResponseURL(opts []slack.MsgOption, rawURL, responseType string) ([]slack.MsgOption, bool) {
	if !isValidResponseURL(rawURL) {
		return opts, false
	}
	return append(opts, slack.MsgOptionResponseURL(rawURL, responseType)), true
}
