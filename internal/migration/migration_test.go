package migration

import (
	"testing"

	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrateCreatesPendingIndexes(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{"providers", "provider_invitations", "provider_join_requests", "outbox_events", "provider_hierarchy_audit_logs"} {
		require.True(t, conn.Migrator().HasTable(table), table)
	}

	var count int64
	require.NoError(t, conn.Raw(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name IN ('ux_provider_invitations_pending', 'ux_provider_join_requests_pending')`,
	).Scan(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case len(entry.Name()) > 7 && entry.Name()[len(entry.Name())-7:] == ".up.sql":
			ups++
		case len(entry.Name()) > 9 && entry.Name()[len(entry.Name())-9:] == ".down.sql":
			downs++
		}
	}
	require.Equal(t, ups, downs)
	require.NotZero(t, ups)
}
