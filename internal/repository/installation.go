package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/tipjar/slack-tip-server/internal/model"
)

type InstallationRepository interface {
	// Find looks up the installation for teamID. When enterpriseID is non-nil
	// the row must also belong to that enterprise, and an org-wide install
	// stored under the enterprise id answers for any of its workspaces.
	Find(ctx context.Context, teamID string, enterpriseID *string) (*model.SlackInstallation, error)
	Upsert(ctx context.Context, params model.UpsertInstallationParams) (*model.SlackInstallation, error)
	Count(ctx context.Context) (int, error)
}

type installationRepo struct {
	db sqlxDB
}

func NewInstallationRepository(db *sqlx.DB) InstallationRepository {
	return &installationRepo{db: db}
}

func (r *installationRepo) Find(ctx context.Context, teamID string, enterpriseID *string) (*model.SlackInstallation, error) {
	var inst model.SlackInstallation
	err := r.db.GetContext(ctx, &inst, `
		SELECT * FROM slack_installations
		WHERE (team_id = $1 AND ($2::text IS NULL OR enterprise_id = $2))
			OR ($2::text IS NOT NULL AND team_id = $2 AND is_enterprise_install)
		ORDER BY (team_id = $1) DESC
		LIMIT 1
	`, teamID, enterpriseID)
	return HandleNotFound(&inst, err)
}

func (r *installationRepo) Upsert(ctx context.Context, params model.UpsertInstallationParams) (*model.SlackInstallation, error) {
	var inst model.SlackInstallation
	err := r.db.GetContext(ctx, &inst, `
		INSERT INTO slack_installations
			(team_id, team_name, enterprise_id, enterprise_name, bot_token, bot_id,
			 bot_user_id, token_type, scope, is_enterprise_install)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (team_id) DO UPDATE SET
			team_name = EXCLUDED.team_name,
			enterprise_id = EXCLUDED.enterprise_id,
			enterprise_name = EXCLUDED.enterprise_name,
			bot_token = EXCLUDED.bot_token,
			bot_id = EXCLUDED.bot_id,
			bot_user_id = EXCLUDED.bot_user_id,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			is_enterprise_install = EXCLUDED.is_enterprise_install,
			updated_at = NOW()
		RETURNING *
	`, params.TeamID, params.TeamName, params.EnterpriseID, params.EnterpriseName,
		params.BotToken, params.BotID, params.BotUserID, params.TokenType, params.Scope,
		params.IsEnterpriseInstall)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *installationRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM slack_installations`)
	return count, err
}
