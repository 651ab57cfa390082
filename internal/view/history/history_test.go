package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarview/internal/view"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_RunsMigrations(t *testing.T) {
	store := openTestStore(t)

	for _, table := range []string{"sessions", "cache_events", "stats_samples"} {
		var count int
		err := store.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "expected table %s to exist", table)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(path)
	require.NoError(t, err)
	store.Close()

	// Reopening an already-migrated database must succeed.
	store, err = Open(path)
	require.NoError(t, err)
	store.Close()
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)

	sessionID, err := store.BeginSession("hesai-01", "stream")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	sessions, err := store.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].SessionID)
	assert.Equal(t, "hesai-01", sessions[0].SensorID)
	assert.Equal(t, "stream", sessions[0].Source)
	assert.Nil(t, sessions[0].EndedAt, "open session must have no end time")

	require.NoError(t, store.EndSession(sessionID))

	sessions, err = store.ListSessions(0)
	require.NoError(t, err)
	assert.NotNil(t, sessions[0].EndedAt, "ended session must have an end time")
}

func TestRecordEvent(t *testing.T) {
	store := openTestStore(t)
	sessionID, err := store.BeginSession("hesai-01", "synthetic")
	require.NoError(t, err)

	events := []view.CacheEvent{
		{Kind: view.EventBackgroundIngested, SequenceNumber: 1, PointCount: 1000, TimestampNanos: 100},
		{Kind: view.EventCacheInvalidated, SequenceNumber: 2, TimestampNanos: 200},
		{Kind: view.EventBackgroundIngested, SequenceNumber: 2, PointCount: 900, TimestampNanos: 300},
	}
	for _, ev := range events {
		require.NoError(t, store.RecordEvent(sessionID, ev))
	}

	got, err := store.SessionEvents(sessionID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "background_ingested", got[0].Kind)
	assert.Equal(t, uint64(1), got[0].SequenceNumber)
	assert.Equal(t, 1000, got[0].PointCount)
	assert.Equal(t, int64(100), got[0].FrameTimestampNs)
	assert.Equal(t, "cache_invalidated", got[1].Kind)
	assert.Equal(t, uint64(2), got[1].SequenceNumber)

	n, err := store.CountEvents(sessionID, "background_ingested")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountEvents(sessionID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRecordStats(t *testing.T) {
	store := openTestStore(t)
	sessionID, err := store.BeginSession("hesai-01", "replay")
	require.NoError(t, err)

	err = store.RecordStats(sessionID,
		view.CompositeStats{Background: 100, Foreground: 50, Total: 150},
		view.BufferStats{BgCapacity: 1024, BgUsed: 100, FgCapacity: 1024, FgUsed: 50},
		view.CacheCached,
	)
	require.NoError(t, err)

	var total int
	var state string
	err = store.QueryRow(
		`SELECT total_points, cache_state FROM stats_samples WHERE session_id = ?`, sessionID,
	).Scan(&total, &state)
	require.NoError(t, err)
	assert.Equal(t, 150, total)
	assert.Equal(t, "Cached", state)
}

func TestEventSinkIntegration(t *testing.T) {
	store := openTestStore(t)
	sessionID, err := store.BeginSession("hesai-01", "synthetic")
	require.NoError(t, err)

	comp := view.NewCompositor()
	comp.SetEventSink(func(ev view.CacheEvent) {
		assert.NoError(t, store.RecordEvent(sessionID, ev))
	})

	snapshot := &view.BackgroundSnapshot{
		SequenceNumber: 1,
		X:              []float32{1},
		Y:              []float32{1},
		Z:              []float32{1},
		Confidence:     []uint32{1},
	}
	comp.ProcessFrame(view.NewBackgroundFrame(1, "hesai-01", snapshot))

	pc := view.NewPointCloudFrame(2, "hesai-01", 1)
	comp.ProcessFrame(view.NewForegroundFrame(2, "hesai-01", pc, 5)) // mismatch

	got, err := store.SessionEvents(sessionID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "background_ingested", got[0].Kind)
	assert.Equal(t, "cache_invalidated", got[1].Kind)
}

func TestListSessions_Limit(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		_, err := store.BeginSession("hesai-01", "stream")
		require.NoError(t, err)
	}

	sessions, err := store.ListSessions(3)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}
