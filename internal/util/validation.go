package util

import (
	"net/url"
	"regexp"
	"strings"
)

var slackIDRegex = regexp.MustCompile(`^[A-Z0-9]{2,}$`)

// IsValidSlackID reports whether s looks like a Slack user, team or channel id.
func IsValidSlackID(s string) bool {
	return slackIDRegex.MatchString(s)
}

// IsValidPaymentURL reports whether s is an absolute http(s) URL with a host.
func IsValidPaymentURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
