package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/tipjar/slack-tip-server/internal/audit"
	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/metrics"
	"github.com/tipjar/slack-tip-server/internal/model"
	"github.com/tipjar/slack-tip-server/internal/repository"
	"github.com/tipjar/slack-tip-server/internal/slackclient"
	"github.com/tipjar/slack-tip-server/internal/util"
)

// ConfigurationLookup resolves the payment configuration of a user. An empty
// teamID matches the user's most recently updated configuration.
type ConfigurationLookup interface {
	Lookup(ctx context.Context, userID, teamID string) (*model.UserConfiguration, error)
}

type ConfigurationService struct {
	repo    repository.UserConfigurationRepository
	metrics *metrics.Metrics
}

func NewConfigurationService(repo repository.UserConfigurationRepository, m *metrics.Metrics) *ConfigurationService {
	return &ConfigurationService{repo: repo, metrics: m}
}

func (s *ConfigurationService) Lookup(ctx context.Context, userID, teamID string) (*model.UserConfiguration, error) {
	var (
		cfg *model.UserConfiguration
		err error
	)
	if teamID != "" {
		cfg, err = s.repo.FindByUserAndTeam(ctx, userID, teamID)
	} else {
		cfg, err = s.repo.FindByUserID(ctx, userID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return cfg, nil
}

type FormRequest struct {
	TriggerID string
	UserID    string
	TeamID    string
}

// OpenConfigurationForm opens the payment URL modal, pre-filled with the
// current URL when one exists.
func (s *ConfigurationService) OpenConfigurationForm(ctx context.Context, api slackclient.API, req FormRequest) error {
	var existing string
	if req.UserID != "" && req.TeamID != "" {
		cfg, err := s.Lookup(ctx, req.UserID, req.TeamID)
		if err != nil {
			log.Warn().Err(err).Str("userId", req.UserID).Msg("failed to load configuration for prefill")
		} else if cfg != nil {
			existing = cfg.URL
		}
	}

	if _, err := api.OpenViewContext(ctx, req.TriggerID, configurationModal(existing)); err != nil {
		return apperrors.UpstreamDeliveryFailure("views.open", err)
	}
	return nil
}

type SubmitParams struct {
	URL        string
	TeamID     string
	UserID     string
	UserHandle string
}

// SubmitConfiguration stores the submitted URL and reports the outcome to the
// user by direct message.
func (s *ConfigurationService) SubmitConfiguration(ctx context.Context, api slackclient.API, params SubmitParams) error {
	cfg, err := s.save(ctx, api, params)
	if err != nil {
		s.metrics.Configuration("failed")
		audit.Log(ctx, audit.Event{
			Type:    audit.EventConfigurationFailed,
			TeamID:  params.TeamID,
			UserID:  params.UserID,
			Details: map[string]interface{}{"code": string(apperrors.GetCode(err))},
		})
		if params.UserID != "" {
			s.notify(ctx, api, params.UserID, msgConfigSaveFailed)
		}
		return err
	}

	s.metrics.Configuration("saved")
	audit.Log(ctx, audit.Event{
		Type:   audit.EventConfigurationSaved,
		TeamID: cfg.TeamID,
		UserID: cfg.UserID,
	})
	s.notify(ctx, api, cfg.UserID, msgConfigSaved+cfg.URL)
	return nil
}

func (s *ConfigurationService) save(ctx context.Context, api slackclient.API, params SubmitParams) (*model.UserConfiguration, error) {
	if params.TeamID == "" {
		return nil, apperrors.MissingTeamContext(params.UserID)
	}
	if params.UserID == "" {
		return nil, apperrors.MissingUserContext(params.TeamID)
	}

	url := strings.TrimSpace(params.URL)
	if url == "" {
		return nil, apperrors.ValidationError("Payment URL is required")
	}
	if !util.IsValidPaymentURL(url) {
		return nil, apperrors.ValidationError("Payment URL must be an absolute http or https URL").
			WithDetails(map[string]string{"url": url})
	}

	var userName *string
	if name := displayName(ctx, api, params.UserID, params.UserHandle); name != "" {
		userName = &name
	}

	cfg, err := s.repo.Upsert(ctx, model.UpsertConfigurationParams{
		UserID:   params.UserID,
		TeamID:   params.TeamID,
		URL:      url,
		UserName: userName,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("userId", cfg.UserID).
		Str("teamId", cfg.TeamID).
		Msg("payment url configured")
	return cfg, nil
}

func (s *ConfigurationService) notify(ctx context.Context, api slackclient.API, userID, text string) {
	if _, _, err := api.PostMessageContext(ctx, userID, slack.MsgOptionText(text, false)); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to send configuration result")
	}
}

// displayName looks the user up in the directory and falls back to fallback
// when the lookup fails or yields no real name.
func displayName(ctx context.Context, api slackclient.API, userID, fallback string) string {
	user, err := api.GetUserInfoContext(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Str("userId", userID).Msg("users.info failed, using fallback name")
		return fallback
	}
	if user.RealName != "" {
		return user.RealName
	}
	if user.Profile.RealName != "" {
		return user.Profile.RealName
	}
	return fallback
}
