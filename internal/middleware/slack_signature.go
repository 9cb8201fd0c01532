package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/tipjar/slack-tip-server/internal/audit"
	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
)

// SlackSignatureMiddleware verifies the X-Slack-Signature of inbound requests
// and re-buffers the body for the next handler.
type SlackSignatureMiddleware struct {
	secret string
}

func NewSlackSignatureMiddleware(secret string) *SlackSignatureMiddleware {
	return &SlackSignatureMiddleware{secret: secret}
}

func (m *SlackSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			log.Warn().Msg("slack signature verification bypassed: SLACK_SIGNING_SECRET is not configured")
			next.ServeHTTP(w, r)
			return
		}

		verifier, err := slack.NewSecretsVerifier(r.Header, m.secret)
		if err != nil {
			m.reject(w, r, "headers", err)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("slack signature middleware: failed to read body")
			writeError(w, apperrors.ValidationError("Failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if _, err := verifier.Write(body); err != nil {
			m.reject(w, r, "hash", err)
			return
		}
		if err := verifier.Ensure(); err != nil {
			m.reject(w, r, "signature", err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *SlackSignatureMiddleware) reject(w http.ResponseWriter, r *http.Request, stage string, err error) {
	log.Warn().Err(err).Str("stage", stage).Str("path", r.URL.Path).Msg("slack signature rejected")
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventSignatureFailure,
		Details: map[string]interface{}{"stage": stage, "path": r.URL.Path},
	})
	writeError(w, apperrors.Unauthorized("Invalid Slack signature"))
}
