package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tipjar/slack-tip-server/internal/audit"
	"github.com/tipjar/slack-tip-server/internal/config"
	apperrors "github.com/tipjar/slack-tip-server/internal/errors"
	"github.com/tipjar/slack-tip-server/internal/model"
	"github.com/tipjar/slack-tip-server/internal/repository"
	"github.com/tipjar/slack-tip-server/internal/slackclient"
	"github.com/tipjar/slack-tip-server/internal/util"
)

const slackAuthorizeURL = "https://slack.com/oauth/v2/authorize"

var (
	ErrInvalidState          = errors.New("invalid or expired OAuth state")
	ErrInstallNotConfigured  = errors.New("slack OAuth install not configured")
	ErrMissingAuthorizeGrant = errors.New("missing authorization code")
)

// InstallationService runs the OAuth v2 install flow and serves the stored
// bot tokens to the Slack client factory.
type InstallationService struct {
	cfg       *config.Config
	repo      repository.InstallationRepository
	exchanger slackclient.OAuthExchanger
	tokens    *util.TokenCipher
	now       func() time.Time
}

func NewInstallationService(cfg *config.Config, repo repository.InstallationRepository, exchanger slackclient.OAuthExchanger) (*InstallationService, error) {
	tokens, err := util.NewTokenCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return &InstallationService{
		cfg:       cfg,
		repo:      repo,
		exchanger: exchanger,
		tokens:    tokens,
		now:       time.Now,
	}, nil
}

var _ slackclient.TokenSource = (*InstallationService)(nil)

// BotToken returns the decrypted bot token of the workspace, or "" when the
// workspace has not installed the app.
func (s *InstallationService) BotToken(ctx context.Context, teamID string, enterpriseID *string) (string, error) {
	inst, err := s.repo.Find(ctx, teamID, enterpriseID)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if inst == nil {
		return "", nil
	}
	token, err := s.tokens.Open(inst.TeamID, inst.BotToken)
	if err != nil {
		return "", fmt.Errorf("open bot token of %s: %w", inst.TeamID, err)
	}
	return token, nil
}

// InstallURL returns Slack's authorize URL carrying a freshly signed state.
func (s *InstallationService) InstallURL() (string, error) {
	if !s.cfg.OAuthEnabled() {
		return "", ErrInstallNotConfigured
	}

	params := url.Values{
		"client_id": {s.cfg.SlackClientID},
		"scope":     {s.cfg.SlackScopes},
		"state":     {s.NewState()},
	}
	if s.cfg.SlackRedirectURL != "" {
		params.Set("redirect_uri", s.cfg.SlackRedirectURL)
	}
	return slackAuthorizeURL + "?" + params.Encode(), nil
}

// NewState returns "<nonce>.<expiresUnix>.<hmac>".
func (s *InstallationService) NewState() string {
	payload := fmt.Sprintf("%s.%d", uuid.NewString(), s.now().Add(config.OAuthStateTTL).Unix())
	return payload + "." + util.HmacSHA256(s.cfg.SlackStateSecret, payload)
}

func (s *InstallationService) VerifyState(state string) error {
	idx := strings.LastIndex(state, ".")
	if idx <= 0 {
		return ErrInvalidState
	}
	payload, sig := state[:idx], state[idx+1:]
	if !util.ConstantTimeEqual(sig, util.HmacSHA256(s.cfg.SlackStateSecret, payload)) {
		return ErrInvalidState
	}

	_, expPart, found := strings.Cut(payload, ".")
	if !found {
		return ErrInvalidState
	}
	exp, err := strconv.ParseInt(expPart, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return ErrInvalidState
	}
	return nil
}

// CompleteInstall verifies state, exchanges code for a bot token and stores
// the installation.
func (s *InstallationService) CompleteInstall(ctx context.Context, code, state string) (*model.SlackInstallation, error) {
	if err := s.VerifyState(state); err != nil {
		audit.Log(ctx, audit.Event{Type: audit.EventOAuthStateInvalid})
		return nil, err
	}
	if code == "" {
		return nil, ErrMissingAuthorizeGrant
	}

	resp, err := s.exchanger.Exchange(ctx, code, s.cfg.SlackRedirectURL)
	if err != nil {
		audit.Log(ctx, audit.Event{Type: audit.EventInstallFailure, Details: map[string]interface{}{"stage": "exchange"}})
		return nil, err
	}

	botID, err := s.exchanger.BotID(ctx, resp.AccessToken)
	if err != nil {
		// The installation is still usable without the bot id.
		log.Warn().Err(err).Str("teamId", resp.Team.ID).Msg("auth.test failed during install")
	}

	params := model.UpsertInstallationParams{
		TeamID:              resp.Team.ID,
		TeamName:            resp.Team.Name,
		BotID:               botID,
		BotUserID:           resp.BotUserID,
		TokenType:           resp.TokenType,
		Scope:               resp.Scope,
		IsEnterpriseInstall: resp.IsEnterpriseInstall,
	}
	if resp.Enterprise.ID != "" {
		params.EnterpriseID = &resp.Enterprise.ID
		params.EnterpriseName = &resp.Enterprise.Name
	}
	if params.TeamID == "" && params.EnterpriseID != nil {
		// Org-wide installs carry no team.
		params.TeamID = *params.EnterpriseID
	}

	params.BotToken, err = s.tokens.Seal(params.TeamID, resp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal bot token: %w", err)
	}

	inst, err := s.repo.Upsert(ctx, params)
	if err != nil {
		audit.Log(ctx, audit.Event{Type: audit.EventInstallFailure, TeamID: resp.Team.ID, Details: map[string]interface{}{"stage": "store"}})
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:   audit.EventInstallSuccess,
		TeamID: inst.TeamID,
		Details: map[string]interface{}{
			"team_name":  inst.TeamName,
			"enterprise": inst.IsEnterpriseInstall,
		},
	})
	return inst, nil
}
