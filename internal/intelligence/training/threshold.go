package training

import (
	"github.com/bindscape/meshbind/pkg/errors"
)

// Aggregation combines per-batch metric values at one candidate threshold.
type Aggregation string

const (
	// BatchMean averages the metric across batches.
	BatchMean Aggregation = "batch_mean"
	// BatchMax keeps the best per-batch value.
	BatchMax Aggregation = "batch_max"
)

// Criteria selects which extremum of the aggregated metric wins.
type Criteria string

const (
	// MaximizeMetric picks the threshold with the largest aggregated value.
	MaximizeMetric Criteria = "max"
	// MinimizeMetric picks the threshold with the smallest aggregated value.
	MinimizeMetric Criteria = "min"
)

// ThresholdOptions parameterizes ChooseBinaryThreshold.
type ThresholdOptions struct {
	// NSamples is the number of candidate thresholds, spaced evenly and
	// strictly inside (0,1).
	NSamples int

	Criteria  Criteria
	Aggregate Aggregation
}

// DefaultThresholdOptions returns the standard selection configuration.
func DefaultThresholdOptions() ThresholdOptions {
	return ThresholdOptions{
		NSamples:  50,
		Criteria:  MaximizeMetric,
		Aggregate: BatchMean,
	}
}

// ChooseBinaryThreshold scans candidate decision thresholds over one or more
// batches of ground truth and positive-class probabilities and returns the
// threshold whose aggregated metric value is extremal, together with that
// value. Ties break toward the smallest threshold.
func ChooseBinaryThreshold(yBatches [][]int, probBatches [][]float64, metric MetricFunc, opts ThresholdOptions) (float64, float64, error) {
	if metric == nil {
		return 0, 0, errors.InvalidParameter("metric function must not be nil")
	}
	if opts.NSamples < 1 {
		return 0, 0, errors.InvalidParameter("n_samples must be at least 1")
	}
	if len(yBatches) == 0 || len(yBatches) != len(probBatches) {
		return 0, 0, errors.ShapeMismatch("ground truth and probability batch lists differ in length")
	}
	for i := range yBatches {
		if len(yBatches[i]) != len(probBatches[i]) {
			return 0, 0, errors.ShapeMismatch("batch labels and probabilities differ in length")
		}
	}
	switch opts.Criteria {
	case MaximizeMetric, MinimizeMetric:
	default:
		return 0, 0, errors.UnsupportedOption("metric_criteria", string(opts.Criteria))
	}
	switch opts.Aggregate {
	case BatchMean, BatchMax:
	default:
		return 0, 0, errors.UnsupportedOption("aggregate", string(opts.Aggregate))
	}

	// Candidates (i+1)/(n+1) for i in [0,n) are evenly spaced and exclude
	// both endpoints.
	candidates := make([]float64, opts.NSamples)
	for i := range candidates {
		candidates[i] = float64(i+1) / float64(opts.NSamples+1)
	}

	bestIdx := -1
	bestValue := 0.0
	pred := make([]int, 0)
	for ci, threshold := range candidates {
		agg := 0.0
		for bi := range yBatches {
			prob := probBatches[bi]
			pred = pred[:0]
			for _, p := range prob {
				if p >= threshold {
					pred = append(pred, 1)
				} else {
					pred = append(pred, 0)
				}
			}
			v := metric(yBatches[bi], pred)
			switch opts.Aggregate {
			case BatchMax:
				if bi == 0 || v > agg {
					agg = v
				}
			default:
				agg += v
			}
		}
		if opts.Aggregate == BatchMean {
			agg /= float64(len(yBatches))
		}

		better := false
		switch {
		case bestIdx < 0:
			better = true
		case opts.Criteria == MaximizeMetric && agg > bestValue:
			better = true
		case opts.Criteria == MinimizeMetric && agg < bestValue:
			better = true
		}
		if better {
			bestIdx = ci
			bestValue = agg
		}
	}
	return candidates[bestIdx], bestValue, nil
}

// ChooseBinaryThresholdSingle is the single-batch convenience form.
func ChooseBinaryThresholdSingle(y []int, prob []float64, metric MetricFunc, opts ThresholdOptions) (float64, float64, error) {
	return ChooseBinaryThreshold([][]int{y}, [][]float64{prob}, metric, opts)
}
