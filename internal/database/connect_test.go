package database

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = ConnectRedis("")
	require.Error(t, err)

	_, err = ConnectRedis("::not-a-url")
	require.Error(t, err)
}

func TestConnectPostgresRequiresDSN(t *testing.T) {
	_, err := ConnectPostgres("", PoolFor(2))
	require.Error(t, err)
}

func TestPoolForLeavesRoomForRequests(t *testing.T) {
	pool := PoolFor(4)
	require.Equal(t, 24, pool.MaxOpen)
	require.Equal(t, 6, pool.MaxIdle)
	require.Equal(t, 21, PoolFor(0).MaxOpen)
}

func TestConnectNATSRequiresURL(t *testing.T) {
	_, err := ConnectNATS("", "edumark")
	require.Error(t, err)
}

func TestMigrateCreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, table := range []string{"users", "classrooms", "classroom_students", "assignments", "submissions"} {
		require.True(t, db.Migrator().HasTable(table), table)
	}
}
