package model

import (
	"time"
)

type UserConfiguration struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	TeamID    string    `db:"team_id" json:"teamId"`
	URL       string    `db:"url" json:"url"`
	UserName  *string   `db:"user_name" json:"userName,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// DisplayName returns the cached directory name, or "" when none was stored.
func (c *UserConfiguration) DisplayName() string {
	if c.UserName == nil {
		return ""
	}
	return *c.UserName
}

type UpsertConfigurationParams struct {
	UserID   string
	TeamID   string
	URL      string
	UserName *string
}
