package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/httputil"
)

// Slack payloads are small; a full modal submission is a few KB.
const DefaultMaxBodySize = 1 << 20

// BodyLimitMiddleware rejects requests whose declared length exceeds maxSize
// and caps the body of the rest, so undeclared bodies fail on read.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > m.maxSize {
			log.Warn().
				Str("path", r.URL.Path).
				Int64("contentLength", r.ContentLength).
				Int64("limit", m.maxSize).
				Msg("request body too large")
			writeJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
				Error: "Request body too large",
				Code:  apperrors.ErrCodeValidation,
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
