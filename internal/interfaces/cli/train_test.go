package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindscape/meshbind/internal/infrastructure/runstore"
	"github.com/bindscape/meshbind/internal/intelligence/training"
)

// trainFixture writes sample archives, list files and a YAML config into a
// temp tree and returns the config path plus the output and store locations.
type trainFixture struct {
	configPath string
	outputDir  string
	storePath  string
}

func newTrainFixture(t *testing.T, balance string) trainFixture {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	outputDir := filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	rng := rand.New(rand.NewSource(7))
	for _, name := range []string{"prot_a", "prot_b", "prot_c"} {
		s := separableFixtureSample(name, 24, rng)
		require.NoError(t, training.SaveSample(filepath.Join(dataDir, name+".gob"), s))
	}
	// The validation protein is deliberately imbalanced so the reported
	// confusion counts reveal any rebalancing of the split.
	v := imbalancedFixtureSample("prot_v", 24, rng)
	require.NoError(t, training.SaveSample(filepath.Join(dataDir, "prot_v.gob"), v))

	trainList := filepath.Join(root, "train.txt")
	validList := filepath.Join(root, "valid.txt")
	require.NoError(t, os.WriteFile(trainList, []byte("# training split\nprot_a.gob\nprot_b.gob\nprot_c.gob\n"), 0o644))
	require.NoError(t, os.WriteFile(validList, []byte("prot_v.gob\n"), 0o644))

	storePath := filepath.Join(root, "runs.db")
	configPath := filepath.Join(root, "surface.yaml")
	cfg := fmt.Sprintf(`run:
  output_dir: %s
  seed: 17
  store_path: %s
log:
  level: error
dataset:
  data_dir: %s
  train_list: %s
  valid_list: %s
  classes: 2
  batch_size: 2
  balance: %s
model:
  name: pointnet-lite
  input_dim: 4
  hidden_dim: 8
optimizer:
  name: sgd
  learning_rate: 0.5
training:
  epochs: 3
  eval_every: 1
  checkpoint_every: 0
  weight_method: none
metrics:
  backend: memory
`, outputDir, storePath, dataDir, trainList, validList, balance)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	return trainFixture{configPath: configPath, outputDir: outputDir, storePath: storePath}
}

// separableFixtureSample builds a linearly separable sample whose positive
// rows sit around +2 and negative rows around -2 in every feature.
func separableFixtureSample(name string, rows int, rng *rand.Rand) *training.Sample {
	s := &training.Sample{Name: name}
	for i := 0; i < rows; i++ {
		label := i % 2
		center := -2.0
		if label == 1 {
			center = 2.0
		}
		row := make([]float64, 4)
		for k := range row {
			row[k] = center + 0.2*rng.NormFloat64()
		}
		s.Features = append(s.Features, row)
		s.Labels = append(s.Labels, label)
		s.Vertices = append(s.Vertices, [3]float64{float64(i), 0, 0})
	}
	return s
}

// imbalancedFixtureSample is separable like separableFixtureSample but only
// every sixth row is positive.
func imbalancedFixtureSample(name string, rows int, rng *rand.Rand) *training.Sample {
	s := &training.Sample{Name: name}
	for i := 0; i < rows; i++ {
		label := 0
		center := -2.0
		if i%6 == 0 {
			label = 1
			center = 2.0
		}
		row := make([]float64, 4)
		for k := range row {
			row[k] = center + 0.2*rng.NormFloat64()
		}
		s.Features = append(s.Features, row)
		s.Labels = append(s.Labels, label)
		s.Vertices = append(s.Vertices, [3]float64{float64(i), 0, 0})
	}
	return s
}

func runMeshbind(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrainCommand_EndToEnd(t *testing.T) {
	fix := newTrainFixture(t, "all")

	out, err := runMeshbind(t, "train", "--config", fix.configPath)
	require.NoError(t, err)

	entries, err := os.ReadDir(fix.outputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	runDir := filepath.Join(fix.outputDir, entries[0].Name())
	assert.Regexp(t, `^surface_\d{8}-\d{6}_[0-9a-f]{8}$`, entries[0].Name())

	assert.FileExists(t, filepath.Join(runDir, "config.yaml"))
	assert.FileExists(t, filepath.Join(runDir, "checkpoints", "checkpoint_final.gob"))
	assert.FileExists(t, filepath.Join(runDir, "checkpoints", "metrics_history.json"))

	for _, name := range []string{"prot_a", "prot_b", "prot_c"} {
		assert.FileExists(t, filepath.Join(runDir, "predictions", "train", name+"_predict.gob"))
	}
	assert.FileExists(t, filepath.Join(runDir, "predictions", "valid", "prot_v_predict.gob"))

	// Per-protein report for the validation split.
	assert.Contains(t, out, "prot_v")
	assert.Contains(t, out, "bal_acc")

	store := runstore.NewSQLiteStore(fix.storePath)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, entries[0].Name(), rec.RunID)
	assert.Equal(t, "train", rec.Kind)
	assert.Equal(t, runstore.StatusCompleted, rec.Status)
	assert.Len(t, rec.ConfigDigest, 64)
	assert.Equal(t, 3, rec.Epochs)
	assert.NotEmpty(t, rec.FinalMetrics)
	assert.Contains(t, rec.FinalMetrics, "accuracy")
	assert.False(t, rec.FinishedAt.IsZero())
}

func TestTrainCommand_RecordsFailure(t *testing.T) {
	fix := newTrainFixture(t, "all")

	// Point the train list at a file that does not exist.
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(fix.configPath), "train.txt")))

	_, err := runMeshbind(t, "train", "--config", fix.configPath)
	require.Error(t, err)

	store := runstore.NewSQLiteStore(fix.storePath)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	records, listErr := store.List(ctx)
	require.NoError(t, listErr)
	require.Len(t, records, 1)
	assert.Equal(t, runstore.StatusFailed, records[0].Status)
}

func TestTrainCommand_ValidationIgnoresBalanceMode(t *testing.T) {
	fix := newTrainFixture(t, "balanced")

	_, err := runMeshbind(t, "train", "--config", fix.configPath)
	require.NoError(t, err)

	entries, err := os.ReadDir(fix.outputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, err := os.ReadFile(filepath.Join(fix.outputDir, entries[0].Name(), "checkpoints", "metrics_history.json"))
	require.NoError(t, err)
	var history map[string][]training.EpochMetrics
	require.NoError(t, json.Unmarshal(raw, &history))
	require.NotEmpty(t, history["valid"])

	// The validation split keeps every labeled vertex even when the train
	// split is downsampled: 4 positive and 20 negative rows stay visible.
	last := history["valid"][len(history["valid"])-1].Bundle
	assert.Equal(t, 24, last.TP+last.FP+last.TN+last.FN)
}

func TestTrainCommand_RejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataset:\n  classes: 1\n"), 0o644))

	_, err := runMeshbind(t, "train", "--config", path)
	assert.Error(t, err)
}
