package model

import (
	"time"
)

type SlackInstallation struct {
	ID                  string    `db:"id" json:"id"`
	TeamID              string    `db:"team_id" json:"teamId"`
	TeamName            string    `db:"team_name" json:"teamName"`
	EnterpriseID        *string   `db:"enterprise_id" json:"enterpriseId,omitempty"`
	EnterpriseName      *string   `db:"enterprise_name" json:"enterpriseName,omitempty"`
	BotToken            string    `db:"bot_token" json:"-"`
	BotID               string    `db:"bot_id" json:"botId"`
	BotUserID           string    `db:"bot_user_id" json:"botUserId"`
	TokenType           string    `db:"token_type" json:"tokenType"`
	Scope               string    `db:"scope" json:"scope"`
	IsEnterpriseInstall bool      `db:"is_enterprise_install" json:"isEnterpriseInstall"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time `db:"updated_at" json:"updatedAt"`
}

type UpsertInstallationParams struct {
	TeamID              string
	TeamName            string
	EnterpriseID        *string
	EnterpriseName      *string
	BotToken            string
	BotID               string
	BotUserID           string
	TokenType           string
	Scope               string
	IsEnterpriseInstall bool
}
