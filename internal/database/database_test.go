package database

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

func TestAutoMigrateCreatesJudgeTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, model := range []interface{}{&models.Contest{}, &models.Problem{}, &models.Submission{}} {
		require.True(t, db.Migrator().HasTable(model))
	}
	require.True(t, db.Migrator().HasColumn(&models.Submission{}, "dispatch_state"))
}

func TestConnectRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client, err := ConnectRedis(context.Background(), "redis://"+server.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = ConnectRedis(context.Background(), "")
	require.Error(t, err)

	_, err = ConnectRedis(context.Background(), "://bad")
	require.Error(t, err)
}

func TestConnectRequiresTargets(t *testing.T) {
	_, err := ConnectPostgres("")
	require.Error(t, err)

	_, err = ConnectNATS("", "worker")
	require.Error(t, err)
}
