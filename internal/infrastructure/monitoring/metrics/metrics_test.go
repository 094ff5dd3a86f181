package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusTrainingMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusTrainingMetrics(reg)
	require.NoError(t, err)

	// Double registration against the same registry must fail.
	_, err = NewPrometheusTrainingMetrics(reg)
	assert.Error(t, err)

	ctx := context.Background()
	m.RecordBatch(ctx, "run1", 0.7)
	m.RecordEpoch(ctx, "run1", 0, 1200, 0.65)
	m.RecordEvaluation(ctx, "run1", "train", 300)
	m.RecordCheckpoint(ctx, "run1", 0, true)
	m.RecordCheckpoint(ctx, "run1", 1, false)

	s := m.Stats()
	assert.Equal(t, int64(1), s.Epochs)
	assert.Equal(t, int64(1), s.Batches)
	assert.Equal(t, int64(1), s.Evaluations)
	assert.Equal(t, int64(2), s.Checkpoints)
	assert.Equal(t, 0.65, s.LastLoss)
}

func TestNoopTrainingMetrics(t *testing.T) {
	m := NewNoopTrainingMetrics()
	ctx := context.Background()
	m.RecordBatch(ctx, "r", 1)
	m.RecordEpoch(ctx, "r", 0, 1, 1)
	m.RecordEvaluation(ctx, "r", "validation", 1)
	m.RecordCheckpoint(ctx, "r", 0, true)
	assert.Equal(t, &Snapshot{}, m.Stats())
}

func TestInMemoryTrainingMetrics(t *testing.T) {
	m := NewInMemoryTrainingMetrics()
	ctx := context.Background()

	m.RecordBatch(ctx, "r", 0.9)
	m.RecordBatch(ctx, "r", 0.4)
	m.RecordEpoch(ctx, "r", 0, 10, 0.65)
	m.RecordEvaluation(ctx, "r", "train", 5)
	m.RecordEvaluation(ctx, "r", "validation", 5)
	m.RecordCheckpoint(ctx, "r", 2, true)

	assert.Equal(t, []string{"train", "validation"}, m.EvaluationSplits())
	assert.Equal(t, []int{2}, m.CheckpointEpochs())

	epochs := m.Epochs()
	require.Len(t, epochs, 1)
	assert.Equal(t, 0.65, epochs[0].MeanLoss)

	s := m.Stats()
	assert.Equal(t, int64(2), s.Batches)
	assert.Equal(t, 0.4, s.LastLoss)
}
