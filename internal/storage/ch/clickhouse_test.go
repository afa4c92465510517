package ch

import (
	"context"
	"testing"
	"time"

	"motherbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"
)

// setupTestDB creates a test ClickHouse instance using testcontainers
func setupTestDB(t *testing.T) (*ClickHouseDB, func()) {
	if testing.Short() {
		t.Skip("skipping ClickHouse container test in short mode")
	}
	ctx := context.Background()

	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	db, err := NewClickHouseDB(host, port.Int(), "default", "default", "", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	_ = db.conn.Exec(ctx, "DROP TABLE IF EXISTS message_archive")
	require.NoError(t, db.Initialize(ctx), "Failed to create archive table")

	cleanup := func() {
		db.Close()
		clickhouseContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestUpStatement(t *testing.T) {
	ddl, err := upStatement()
	require.NoError(t, err)
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS message_archive")
	assert.NotContains(t, ddl, "DROP TABLE")
	assert.NotContains(t, ddl, "goose")
}

// TestClickHouseDB_ArchiveAndCount tests archiving and the per-day rollup
func TestClickHouseDB_ArchiveAndCount(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	msgs := []models.Message{
		{ID: "1", RelayID: "r1", FromUserID: 10, ToUserID: 1, Content: "hi", Kind: models.KindText, Timestamp: day1},
		{ID: "2", RelayID: "r1", FromUserID: 11, ToUserID: 1, Content: "yo", Kind: models.KindText, Timestamp: day1},
		{ID: "3", RelayID: "r1", FromUserID: 10, ToUserID: 1, Content: "x", Kind: models.KindPhoto, Timestamp: day2},
		{ID: "4", RelayID: "r1", FromUserID: 1, ToUserID: 10, Content: "reply", Kind: models.KindText, Timestamp: day2, ReplyTo: "3"},
		{ID: "5", RelayID: "r2", FromUserID: 10, ToUserID: 2, Content: "other", Kind: models.KindText, Timestamp: day2},
	}
	for i := range msgs {
		require.NoError(t, db.ArchiveMessage(ctx, &msgs[i]))
	}

	counts, err := db.CountMessagesByDay(ctx, "r1", day1.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2026-03-01": 2, "2026-03-02": 1}, counts)

	counts, err = db.CountMessagesByDay(ctx, "r1", day2.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2026-03-02": 1}, counts)
}

// TestClickHouseDB_CountEmpty tests the rollup for a relay with no history
func TestClickHouseDB_CountEmpty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	counts, err := db.CountMessagesByDay(context.Background(), "nobody", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, counts)
}
