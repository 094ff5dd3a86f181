package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindscape/meshbind/pkg/errors"
)

func testRecord(runID string, started time.Time) *RunRecord {
	return &RunRecord{
		RunID:        runID,
		Kind:         "train",
		ConfigDigest: "sha256:deadbeef",
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
		Epochs:       25,
		BestMetric:   "balanced_accuracy",
		BestValue:    0.87,
		FinalMetrics: map[string]float64{"accuracy": 0.91, "mcc": 0.62},
		Status:       StatusCompleted,
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db")))
	})
}

func TestStore_SaveGetRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx))
		defer store.Close()

		started := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
		rec := testRecord("run-1", started)
		require.NoError(t, store.Save(ctx, rec))

		got, err := store.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, rec.RunID, got.RunID)
		assert.Equal(t, rec.ConfigDigest, got.ConfigDigest)
		assert.Equal(t, rec.Epochs, got.Epochs)
		assert.Equal(t, rec.BestMetric, got.BestMetric)
		assert.InDelta(t, rec.BestValue, got.BestValue, 1e-12)
		assert.Equal(t, rec.FinalMetrics, got.FinalMetrics)
		assert.Equal(t, rec.Status, got.Status)
		assert.True(t, got.StartedAt.Equal(started))
	})
}

func TestStore_SaveUpserts(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx))
		defer store.Close()

		started := time.Now().UTC().Truncate(time.Millisecond)
		rec := testRecord("run-1", started)
		rec.Status = StatusRunning
		require.NoError(t, store.Save(ctx, rec))

		rec.Status = StatusCompleted
		rec.Epochs = 50
		require.NoError(t, store.Save(ctx, rec))

		got, err := store.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, 50, got.Epochs)

		all, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestStore_GetMissing(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx))
		defer store.Close()

		_, err := store.Get(ctx, "absent")
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})
}

func TestStore_ListOrdersByStartTime(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx))
		defer store.Close()

		base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
		require.NoError(t, store.Save(ctx, testRecord("run-b", base.Add(time.Hour))))
		require.NoError(t, store.Save(ctx, testRecord("run-a", base)))

		all, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "run-a", all[0].RunID)
		assert.Equal(t, "run-b", all[1].RunID)
	})
}

func TestStore_SaveValidation(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Init(ctx))
		defer store.Close()

		err := store.Save(ctx, &RunRecord{})
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
	})
}

func TestSQLiteStore_RequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	_, err := store.Get(context.Background(), "run-1")
	assert.True(t, errors.IsCode(err, errors.CodeFatalConfiguration))

	empty := NewSQLiteStore("")
	err = empty.Init(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	store := NewSQLiteStore(path)
	require.NoError(t, store.Init(ctx))
	started := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, testRecord("run-1", started)))
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(path)
	require.NoError(t, reopened.Init(ctx))
	defer reopened.Close()

	got, err := reopened.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 25, got.Epochs)
}
