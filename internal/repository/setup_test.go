package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tipjar/slack-tip-server/internal/database"
	"github.com/tipjar/slack-tip-server/migrations"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, url)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, migrations.Files))
	_, err = db.ExecContext(ctx, `TRUNCATE user_configurations, slack_installations`)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strPtr(s string) *string { return &s }
