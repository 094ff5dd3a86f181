package training

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredict_ThresholdsPositiveProbability(t *testing.T) {
	s := &Sample{
		Name:     "prot",
		Features: [][]float64{{0}, {0}},
		Labels:   []int{0, 1},
		Vertices: [][3]float64{{0, 0, 0}, {1, 0, 0}},
		Faces:    [][3]int{{0, 1, 1}},
	}
	m := newProbeModel([][]float64{{4, 0}, {0, 4}})

	p, err := Predict(m, nil, s, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "prot", p.Name)
	assert.Equal(t, []int{0, 1}, p.Labels)
	assert.Equal(t, []int{0, 1}, p.Predicted)
	assert.Equal(t, s.Vertices, p.Vertices)
	assert.Less(t, p.Prob[0], 0.5)
	assert.Greater(t, p.Prob[1], 0.5)
	assert.False(t, m.training)

	_, err = Predict(nil, nil, s, 0.5)
	assert.Error(t, err)
}

func TestExportPredictions_WritesArchives(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "predictions")
	samples := []*Sample{
		{Name: "one", Features: [][]float64{{0}}, Labels: []int{1}},
		{Name: "two", Features: [][]float64{{0}}, Labels: []int{0}},
	}
	m := newProbeModel([][]float64{{0, 2}})

	paths, err := ExportPredictions(dir, m, nil, samples, 0.4)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "one_predict.gob", filepath.Base(paths[0]))
	assert.Equal(t, "two_predict.gob", filepath.Base(paths[1]))

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()
	var p Prediction
	require.NoError(t, gob.NewDecoder(f).Decode(&p))
	assert.Equal(t, "one", p.Name)
	assert.Equal(t, 0.4, p.Threshold)
	assert.Equal(t, []int{1}, p.Predicted)
}
