package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewarden/internal/types"
)

func testRecord(errorID string) *types.ErrorRecord {
	return &types.ErrorRecord{
		ErrorID:    errorID,
		ErrorType:  "ios_build",
		ErrorScene: "device provisioning",
		Pattern:    map[string]interface{}{"device_name": "iPhone 15", "os_version": "17.0"},
		BlockLevel: types.BlockBlock,
		Solution:   "update provisioning profile",
	}
}

func TestUpsertErrorRecordIdempotentByFingerprint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	isNew, err := s.UpsertErrorRecord(ctx, testRecord("fp-1"))
	require.NoError(t, err)
	assert.True(t, isNew)

	for i := 0; i < 4; i++ {
		isNew, err = s.UpsertErrorRecord(ctx, testRecord("fp-1"))
		require.NoError(t, err)
		assert.False(t, isNew)
	}

	rec, err := s.GetErrorRecord(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.OccurrenceCount)
	assert.Equal(t, 0, rec.BlockedCount)

	var total int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM error_records WHERE error_id = 'fp-1'`).Scan(&total))
	assert.Equal(t, 1, total)
}

func TestListBlockingRecordsSkipsNone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blocking := testRecord("fp-block")
	_, err := s.UpsertErrorRecord(ctx, blocking)
	require.NoError(t, err)

	passive := testRecord("fp-none")
	passive.BlockLevel = types.BlockNone
	_, err = s.UpsertErrorRecord(ctx, passive)
	require.NoError(t, err)

	recs, err := s.ListBlockingRecords(ctx, "ios_build")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fp-block", recs[0].ErrorID)

	recs, err = s.ListBlockingRecords(ctx, "other_type")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBlockedCountAndIntercepts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertErrorRecord(ctx, testRecord("fp-1"))
	require.NoError(t, err)
	rec, err := s.GetErrorRecord(ctx, "fp-1")
	require.NoError(t, err)

	require.NoError(t, s.IncrementBlockedCount(ctx, rec.ID))
	require.NoError(t, s.InsertInterceptLog(ctx, &types.InterceptLog{
		ErrorRecordID:   rec.ID,
		InterceptAction: types.InterceptBlocked,
		OperationType:   "ios_build",
		MatchConfidence: 1.0,
	}))

	rec, err = s.GetErrorRecord(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.BlockedCount)
	assert.GreaterOrEqual(t, rec.OccurrenceCount, rec.BlockedCount)

	logs, err := s.RecentIntercepts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.InterceptBlocked, logs[0].InterceptAction)
	assert.Equal(t, 1.0, logs[0].MatchConfidence)
}

func TestInsertInterceptLogWithoutMatchedRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// a passed check matches no record; the FK column stores NULL
	require.NoError(t, s.InsertInterceptLog(ctx, &types.InterceptLog{
		InterceptAction: types.InterceptPassed,
		OperationType:   "ios_build",
		OperationParams: map[string]interface{}{"device_name": "iPhone 15"},
	}))

	logs, err := s.RecentIntercepts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.InterceptPassed, logs[0].InterceptAction)
	assert.Equal(t, int64(0), logs[0].ErrorRecordID)

	var nullRows int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM intercept_logs WHERE error_record_id IS NULL`).Scan(&nullRows))
	assert.Equal(t, 1, nullRows)
}

func TestFirewallStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertErrorRecord(ctx, testRecord("fp-1"))
	require.NoError(t, err)
	_, err = s.UpsertErrorRecord(ctx, testRecord("fp-1"))
	require.NoError(t, err)

	other := testRecord("fp-2")
	other.ErrorType = "db_migration"
	other.BlockLevel = types.BlockWarning
	_, err = s.UpsertErrorRecord(ctx, other)
	require.NoError(t, err)

	rec, err := s.GetErrorRecord(ctx, "fp-1")
	require.NoError(t, err)
	require.NoError(t, s.IncrementBlockedCount(ctx, rec.ID))

	stats, err := s.GetFirewallStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 3, stats.TotalOccurrences)
	assert.Equal(t, 1, stats.TotalBlocks)
	assert.InDelta(t, 1.0/3.0, stats.BlockRate, 1e-9)
	assert.Equal(t, 1, stats.RecordsByType["ios_build"])
	assert.Equal(t, 1, stats.RecordsByType["db_migration"])
	assert.Equal(t, 1, stats.RecordsByLevel["block"])
	assert.Equal(t, 1, stats.RecordsByLevel["warning"])
}

func TestQueryErrorRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertErrorRecord(ctx, testRecord("fp-1"))
	require.NoError(t, err)
	other := testRecord("fp-2")
	other.ErrorType = "db_migration"
	_, err = s.UpsertErrorRecord(ctx, other)
	require.NoError(t, err)

	byType, err := s.QueryErrorRecords(ctx, "ios_build", 10)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "fp-1", byType[0].ErrorID)

	all, err := s.QueryErrorRecords(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
