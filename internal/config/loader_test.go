package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindscape/meshbind/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
training:
  epochs: 5
model:
  name: pointnet-lite
  input_dim: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Training.Epochs)
	assert.Equal(t, "pointnet-lite", cfg.Model.Name)
	assert.Equal(t, 3, cfg.Model.InputDim)
	// Unset fields pick up defaults.
	assert.Equal(t, DefaultEvalEvery, cfg.Training.EvalEvery)
	assert.Equal(t, DefaultHiddenDim, cfg.Model.HiddenDim)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeFatalConfiguration))
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfig(t, `
dataset:
  balance: oversample
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeFatalConfiguration))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
training:
  epochs: 5
`)
	t.Setenv("MESHBIND_TRAINING_EPOCHS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Training.Epochs)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MESHBIND_MODEL_NAME", "pointnet-lite")
	t.Setenv("MESHBIND_LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "pointnet-lite", cfg.Model.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultEpochs, cfg.Training.Epochs)
}

func TestDigestFile(t *testing.T) {
	path := writeConfig(t, "training:\n  epochs: 5\n")
	d1, err := DigestFile(path)
	require.NoError(t, err)
	assert.Len(t, d1, 64)

	d2, err := DigestFile(path)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	other := writeConfig(t, "training:\n  epochs: 6\n")
	d3, err := DigestFile(other)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)

	_, err = DigestFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.IsCode(err, errors.CodeIO))
}
