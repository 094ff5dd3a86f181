package training

import (
	"math"

	"github.com/bindscape/meshbind/pkg/errors"
)

// WeightMode selects how per-class loss weights are derived.
type WeightMode string

const (
	// WeightNone leaves the loss unweighted.
	WeightNone WeightMode = "none"
	// WeightBatch recomputes class weights from each batch's label frequency.
	WeightBatch WeightMode = "batch"
	// WeightDataset uses fixed weights precomputed over the training set.
	WeightDataset WeightMode = "dataset"
)

// IsValid reports whether the mode is supported.
func (w WeightMode) IsValid() bool {
	switch w {
	case WeightNone, WeightBatch, WeightDataset:
		return true
	}
	return false
}

// ClassWeights derives inverse-frequency weights from labels: classes are
// weighted by total/(classes*count). Absent classes get weight zero.
func ClassWeights(labels []int, mask []bool, classes int) []float64 {
	counts := make([]int, classes)
	total := 0
	for i, y := range labels {
		if mask != nil && !mask[i] {
			continue
		}
		if y >= 0 && y < classes {
			counts[y]++
			total++
		}
	}
	weights := make([]float64, classes)
	for c, n := range counts {
		if n > 0 {
			weights[c] = float64(total) / (float64(classes) * float64(n))
		}
	}
	return weights
}

// crossEntropy computes the mean weighted cross-entropy loss over the
// mask-true rows and the gradient of the loss with respect to the logits.
// Rows outside the mask contribute zero gradient.
func crossEntropy(logits [][]float64, labels []int, mask []bool, classWeights []float64) (float64, [][]float64, error) {
	if len(logits) != len(labels) {
		return 0, nil, errors.ShapeMismatch("logits and labels differ in length")
	}
	prob := Softmax(logits)
	grad := make([][]float64, len(logits))
	loss := 0.0
	count := 0
	for i := range logits {
		grad[i] = make([]float64, len(logits[i]))
		if mask != nil && !mask[i] {
			continue
		}
		y := labels[i]
		if y < 0 || y >= len(prob[i]) {
			return 0, nil, errors.InvalidParameter("label out of class range")
		}
		w := 1.0
		if classWeights != nil {
			w = classWeights[y]
		}
		loss += -w * math.Log(math.Max(prob[i][y], 1e-12))
		for c := range grad[i] {
			grad[i][c] = w * prob[i][c]
		}
		grad[i][y] -= w
		count++
	}
	if count == 0 {
		return 0, grad, nil
	}
	loss /= float64(count)
	for i := range grad {
		for c := range grad[i] {
			grad[i][c] /= float64(count)
		}
	}
	return loss, grad, nil
}
