package training

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/bindscape/meshbind/pkg/errors"
)

// Prediction is the per-protein export consumed by downstream reporting:
// ground truth, predictions, probabilities and the surface geometry.
type Prediction struct {
	Name      string
	Labels    []int
	Predicted []int
	Prob      []float64
	Threshold float64
	Vertices  [][3]float64
	Faces     [][3]int
}

// Predict runs the model on a single sample in inference mode and thresholds
// the positive-class probability.
func Predict(model Model, post PostProcess, s *Sample, threshold float64) (*Prediction, error) {
	if model == nil {
		return nil, errors.InvalidParameter("model must not be nil")
	}
	if post == nil {
		post = Softmax
	}
	batch, err := NewBatch(s)
	if err != nil {
		return nil, err
	}
	model.SetTraining(false)
	prob := post(model.Forward(batch))

	p := &Prediction{
		Name:      s.Name,
		Labels:    append([]int(nil), s.Labels...),
		Threshold: threshold,
		Vertices:  s.Vertices,
		Faces:     s.Faces,
	}
	for _, row := range prob {
		pos := row[len(row)-1]
		p.Prob = append(p.Prob, pos)
		label := 0
		if pos >= threshold {
			label = 1
		}
		p.Predicted = append(p.Predicted, label)
	}
	return p, nil
}

// WritePrediction stores a prediction archive as <name>_predict.gob in dir.
func WritePrediction(dir string, p *Prediction) (string, error) {
	path := filepath.Join(dir, p.Name+"_predict.gob")
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeIO, "creating prediction archive")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(p); err != nil {
		return "", errors.Wrap(err, errors.CodeIO, "encoding prediction archive")
	}
	return path, nil
}

// ExportPredictions predicts and writes an archive for every sample,
// returning the written paths in sample order.
func ExportPredictions(dir string, model Model, post PostProcess, samples []*Sample, threshold float64) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "creating prediction dir")
	}
	paths := make([]string, 0, len(samples))
	for _, s := range samples {
		p, err := Predict(model, post, s, threshold)
		if err != nil {
			return nil, err
		}
		path, err := WritePrediction(dir, p)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
