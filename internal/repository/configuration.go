package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/tipjar/slack-tip-server/internal/model"
)

type UserConfigurationRepository interface {
	FindByUserAndTeam(ctx context.Context, userID, teamID string) (*model.UserConfiguration, error)
	// FindByUserID returns the most recently updated configuration of userID
	// across teams.
	FindByUserID(ctx context.Context, userID string) (*model.UserConfiguration, error)
	Upsert(ctx context.Context, params model.UpsertConfigurationParams) (*model.UserConfiguration, error)
	Count(ctx context.Context) (int, error)
}

type userConfigurationRepo struct {
	db sqlxDB
}

func NewUserConfigurationRepository(db *sqlx.DB) UserConfigurationRepository {
	return &userConfigurationRepo{db: db}
}

func (r *userConfigurationRepo) FindByUserAndTeam(ctx context.Context, userID, teamID string) (*model.UserConfiguration, error) {
	var cfg model.UserConfiguration
	err := r.db.GetContext(ctx, &cfg, `
		SELECT * FROM user_configurations WHERE user_id = $1 AND team_id = $2
	`, userID, teamID)
	return HandleNotFound(&cfg, err)
}

func (r *userConfigurationRepo) FindByUserID(ctx context.Context, userID string) (*model.UserConfiguration, error) {
	var cfg model.UserConfiguration
	err := r.db.GetContext(ctx, &cfg, `
		SELECT * FROM user_configurations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID)
	return HandleNotFound(&cfg, err)
}

func (r *userConfigurationRepo) Upsert(ctx context.Context, params model.UpsertConfigurationParams) (*model.UserConfiguration, error) {
	var cfg model.UserConfiguration
	err := r.db.GetContext(ctx, &cfg, `
		INSERT INTO user_configurations (user_id, team_id, url, user_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, team_id) DO UPDATE SET
			url = EXCLUDED.url,
			user_name = EXCLUDED.user_name,
			updated_at = NOW()
		RETURNING *
	`, params.UserID, params.TeamID, params.URL, params.UserName)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *userConfigurationRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM user_configurations`)
	return count, err
}
