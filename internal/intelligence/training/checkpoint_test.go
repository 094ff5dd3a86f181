package training

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindscape/meshbind/pkg/errors"
)

func TestCheckpoint_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint_final.gob")

	rec := &CheckpointRecord{
		Epoch:  7,
		Params: []float64{1.5, -2.25, math.Inf(1)},
		Optimizer: OptimizerState{
			Name:         "sgd",
			LearningRate: 0.05,
			StepCount:    42,
			Buffers:      map[string][]float64{"velocity": {0.1, 0.2, 0.3}},
		},
		Scheduler: SchedulerState{Name: "exponential", StepCount: 7},
		History: map[string][]EpochMetrics{
			SplitTrain: {{Epoch: 1, Bundle: MetricBundle{Accuracy: 0.8}}},
		},
	}
	require.NoError(t, SaveCheckpoint(path, rec))

	loaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, rec.Epoch, loaded.Epoch)
	assert.Equal(t, rec.Params, loaded.Params)
	assert.Equal(t, rec.Optimizer, loaded.Optimizer)
	assert.Equal(t, rec.Scheduler, loaded.Scheduler)
	assert.Equal(t, rec.History, loaded.History)
}

func TestLoadCheckpoint_Missing(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "nope.gob"))
	assert.True(t, errors.IsCode(err, errors.CodeCheckpoint))
}

func TestRestore_ResumesTraining(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint_final.gob")

	cfg := ModelConfig{Name: "pointnet-lite", InputDim: 3, HiddenDim: 4, Classes: 2, Seed: 9}
	m, err := NewModel(cfg)
	require.NoError(t, err)
	opt, err := NewOptimizer(OptimizerConfig{Name: "adam", LearningRate: 0.01})
	require.NoError(t, err)
	sched, err := NewScheduler(SchedulerConfig{Name: "exponential", Gamma: 0.9}, opt)
	require.NoError(t, err)

	// Take a few steps so the optimizer carries moment buffers.
	for i := range m.Parameters().Grad {
		m.Parameters().Grad[i] = float64(i%3) - 1
	}
	opt.Step(m.Parameters())
	sched.Step()

	rec := &CheckpointRecord{
		Epoch:     0,
		Params:    m.Parameters().Snapshot(),
		Optimizer: opt.State(),
		Scheduler: sched.State(),
	}
	require.NoError(t, SaveCheckpoint(path, rec))

	m2, err := NewModel(cfg)
	require.NoError(t, err)
	opt2, err := NewOptimizer(OptimizerConfig{Name: "adam", LearningRate: 0.01})
	require.NoError(t, err)
	sched2, err := NewScheduler(SchedulerConfig{Name: "exponential", Gamma: 0.9}, opt2)
	require.NoError(t, err)

	loaded, err := Restore(path, m2, opt2, sched2)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Epoch)
	assert.Equal(t, m.Parameters().Data, m2.Parameters().Data)
	assert.InDelta(t, opt.LearningRate(), opt2.LearningRate(), 1e-15)

	// Identical gradients now produce identical updates on both copies.
	for i := range m.Parameters().Grad {
		m.Parameters().Grad[i] = 0.5
		m2.Parameters().Grad[i] = 0.5
	}
	opt.Step(m.Parameters())
	opt2.Step(m2.Parameters())
	assert.Equal(t, m.Parameters().Data, m2.Parameters().Data)
}

func TestRestore_RejectsWrongShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint_final.gob")
	require.NoError(t, SaveCheckpoint(path, &CheckpointRecord{Params: []float64{1}}))

	m, err := NewModel(ModelConfig{Name: "pointnet-lite", InputDim: 3, HiddenDim: 4, Classes: 2})
	require.NoError(t, err)
	_, err = Restore(path, m, nil, nil)
	assert.True(t, errors.IsCode(err, errors.CodeCheckpoint))
}
