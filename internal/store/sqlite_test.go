// ABOUTME: Tests for the SQLite scan history store
// ABOUTME: Covers record insertion, ordering, and limit handling

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordScan_AssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := &ScanRecord{
		SessionID: "sess-1",
		Tool:      "scan_contract",
		Target:    "0xabc",
		Status:    ScanStatusCompleted,
	}
	require.NoError(t, s.RecordScan(ctx, record))

	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestListRecent_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, target := range []string{"first", "second", "third"} {
		require.NoError(t, s.RecordScan(ctx, &ScanRecord{
			SessionID: "sess-1",
			Tool:      "scan_contract",
			Target:    target,
			Status:    ScanStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].Target)
	assert.Equal(t, "first", records[2].Target)
}

func TestListRecent_RespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 5 {
		require.NoError(t, s.RecordScan(ctx, &ScanRecord{
			SessionID: "sess-1",
			Tool:      "scan_project",
			Target:    "repo",
			Status:    ScanStatusFailed,
			Detail:    "unauthorized",
		}))
	}

	records, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestListRecent_EmptyStore(t *testing.T) {
	s := newTestStore(t)

	records, err := s.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}
