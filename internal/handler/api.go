package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tipjar/slack-tip-server/internal/config"
	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/service"
	"github.com/tipjar/slack-tip-server/internal/util"
)

// Pinger is satisfied by database.DB and redis.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter is satisfied by the configuration and installation repositories.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

const helpText = `Tip bot commands:
  /tip configure   set or change the payment URL coworkers are sent to
  /tip             post a tip prompt for yourself in the current channel
  /configure       same as /tip configure
Choosing an amount on a prompt announces the tip in the channel and privately
shows you the recipient's payment link and QR code.
`

const privacyText = `Privacy
The app stores your Slack user id, workspace id, display name and the payment
URL you submit. It stores the bot token Slack issues when the app is installed.
Nothing else is collected and no data is shared with third parties. Payments
happen entirely on the site behind your URL.
`

const tosText = `Terms of service
The app only relays payment links chosen by their owners. It does not process,
hold or guarantee any payment. Use the links at your own discretion.
`

// APIHandler serves the public HTTP API: QR images, status and static text.
type APIHandler struct {
	configs service.ConfigurationLookup
	images  service.ImageSource
	checks  map[string]Pinger
	totals  map[string]Counter
	now     func() time.Time
}

func NewAPIHandler(configs service.ConfigurationLookup, images service.ImageSource, checks map[string]Pinger) *APIHandler {
	return &APIHandler{
		configs: configs,
		images:  images,
		checks:  checks,
		now:     time.Now,
	}
}

// WithTotals adds row counts to the status report.
func (h *APIHandler) WithTotals(totals map[string]Counter) *APIHandler {
	h.totals = totals
	return h
}

// Routes mounts the API. tipMiddleware wraps only the image route.
func (h *APIHandler) Routes(tipMiddleware ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.With(tipMiddleware...).Get("/tip/{userId}", h.TipImage)
	r.Get("/status", h.Status)
	r.Get("/help", h.static(helpText))
	r.Get("/privacy", h.static(privacyText))
	r.Get("/tos", h.static(tosText))

	return r
}

// TipImage streams the QR code of the user's payment URL.
func (h *APIHandler) TipImage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	teamID := r.URL.Query().Get("team")

	if !util.IsValidSlackID(userID) {
		writeError(w, apperrors.ValidationError("Invalid user id"))
		return
	}
	if teamID != "" && !util.IsValidSlackID(teamID) {
		writeError(w, apperrors.ValidationError("Invalid team id"))
		return
	}

	cfg, err := h.configs.Lookup(r.Context(), userID, teamID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("failed to look up configuration")
		writeError(w, err)
		return
	}
	if cfg == nil {
		writeError(w, apperrors.NotConfigured(userID, teamID))
		return
	}

	png, err := h.images.Get(r.Context(), cfg.UserID, cfg.URL)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("failed to render QR code")
		writeError(w, apperrors.Internal("Failed to render QR code"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(config.TipImageCacheMaxAge.Seconds())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *APIHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("dependency", name).Msg("status check failed")
			deps[name] = "unavailable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":       status,
		"timestamp":    h.now().UnixMilli(),
		"dependencies": deps,
	}
	if len(h.totals) > 0 {
		totals := make(map[string]int, len(h.totals))
		for name, counter := range h.totals {
			n, err := counter.Count(ctx)
			if err != nil {
				log.Warn().Err(err).Str("total", name).Msg("status count failed")
				continue
			}
			totals[name] = n
		}
		body["totals"] = totals
	}

	writeJSON(w, code, body)
}

func (h *APIHandler) static(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, body)
	}
}

// Health is the liveness probe shared by both servers.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
