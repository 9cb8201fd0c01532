package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipjar/slack-tip-server/migrations"
)

func TestMigrationFiles(t *testing.T) {
	t.Run("orders sql files and skips everything else", func(t *testing.T) {
		fsys := fstest.MapFS{
			"002_second.sql": {Data: []byte("SELECT 2;")},
			"001_first.sql":  {Data: []byte("SELECT 1;")},
			"README.md":      {Data: []byte("docs")},
			"nested/003.sql": {Data: []byte("SELECT 3;")},
		}

		names, err := MigrationFiles(fsys)
		require.NoError(t, err)
		assert.Equal(t, []string{"001_first.sql", "002_second.sql"}, names)
	})

	t.Run("embedded migrations create both tables", func(t *testing.T) {
		names, err := MigrationFiles(migrations.Files)
		require.NoError(t, err)
		require.NotEmpty(t, names)

		var all string
		for _, name := range names {
			data, err := migrations.Files.ReadFile(name)
			require.NoError(t, err)
			all += string(data)
		}
		assert.Contains(t, all, "user_configurations")
		assert.Contains(t, all, "slack_installations")
		assert.Contains(t, all, "UNIQUE (user_id, team_id)")
	})
}
