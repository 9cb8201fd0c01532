package audit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventInstallSuccess      EventType = "install_success"
	EventInstallFailure      EventType = "install_failure"
	EventOAuthStateInvalid   EventType = "oauth_state_invalid"
	EventSignatureFailure    EventType = "signature_failure"
	EventConfigurationSaved  EventType = "configuration_saved"
	EventConfigurationFailed EventType = "configuration_failed"
	EventRateLimitExceed     EventType = "rate_limit_exceeded"
)

// Events that indicate a rejected or failed operation are written at warn.
var warnEvents = map[EventType]bool{
	EventInstallFailure:      true,
	EventOAuthStateInvalid:   true,
	EventSignatureFailure:    true,
	EventConfigurationFailed: true,
	EventRateLimitExceed:     true,
}

// Event is one audit record: who did what in which workspace.
type Event struct {
	Type      EventType
	TeamID    string
	UserID    string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func (e Event) level() zerolog.Level {
	if warnEvents[e.Type] {
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

// Log writes event through the context logger, or the global logger when the
// context carries none.
func Log(ctx context.Context, event Event) {
	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	entry := logger.WithLevel(event.level()).
		Str("audit", "security").
		Str("event_type", string(event.Type))

	for key, value := range map[string]string{
		"team_id":    event.TeamID,
		"user_id":    event.UserID,
		"ip":         event.IP,
		"user_agent": event.UserAgent,
	} {
		if value != "" {
			entry = entry.Str(key, value)
		}
	}

	entry.Fields(event.Details).Msg("audit event")
}

// LogFromRequest fills the client address and user agent from r.
func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// socket host.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
