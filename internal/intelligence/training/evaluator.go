package training

import (
	"context"
	"math"

	"github.com/bindscape/meshbind/pkg/errors"
)

// PostProcess converts raw model logits into class probabilities.
type PostProcess func(logits [][]float64) [][]float64

// Softmax is the default post-process.
func Softmax(logits [][]float64) [][]float64 {
	out := make([][]float64, len(logits))
	for i, row := range logits {
		maxv := math.Inf(-1)
		for _, v := range row {
			if v > maxv {
				maxv = v
			}
		}
		sum := 0.0
		p := make([]float64, len(row))
		for j, v := range row {
			p[j] = math.Exp(v - maxv)
			sum += p[j]
		}
		for j := range p {
			p[j] /= sum
		}
		out[i] = p
	}
	return out
}

// EvalOptions controls an evaluation pass.
type EvalOptions struct {
	// UseMasks restricts collected rows to mask-true entries.
	UseMasks bool

	// Batchwise keeps per-batch results separate instead of concatenating.
	Batchwise bool

	// ReturnPredicted thresholds probabilities into predicted labels.
	ReturnPredicted bool

	// Threshold is the decision threshold for predicted labels.
	Threshold float64

	// EvalMode runs the model in inference mode.
	EvalMode bool
}

// DefaultEvalOptions returns the standard evaluation configuration.
func DefaultEvalOptions() EvalOptions {
	return EvalOptions{UseMasks: true, Threshold: 0.5, EvalMode: true}
}

// EvalResult is the output of one batch (or of the concatenated stream).
type EvalResult struct {
	Names      []string
	Y          []int
	Prob       [][]float64
	Pred       []int
	Mask       []bool
	BatchIndex []int
}

// positives extracts the positive-class probability column.
func (r *EvalResult) positives() []float64 {
	out := make([]float64, len(r.Prob))
	for i, row := range r.Prob {
		out[i] = row[len(row)-1]
	}
	return out
}

// Evaluator runs a model over batch streams and computes metric bundles.
type Evaluator struct {
	model Model
	post  PostProcess
}

// NewEvaluator constructs an evaluator. A nil post-process selects Softmax.
func NewEvaluator(model Model, post PostProcess) (*Evaluator, error) {
	if model == nil {
		return nil, errors.InvalidParameter("model must not be nil")
	}
	if post == nil {
		post = Softmax
	}
	return &Evaluator{model: model, post: post}, nil
}

// Eval runs the model over the stream and collects results per opts. The
// stream is reset first, so repeated calls see the full data.
func (e *Evaluator) Eval(ctx context.Context, stream Stream, opts EvalOptions) ([]EvalResult, error) {
	if stream == nil {
		return nil, errors.InvalidParameter("stream must not be nil")
	}
	if opts.EvalMode {
		e.model.SetTraining(false)
		defer e.model.SetTraining(true)
	}

	stream.Reset()
	var results []EvalResult
	for {
		batch, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		prob := e.post(e.model.Forward(batch))
		r := EvalResult{Names: batch.Names}
		for i := range prob {
			if opts.UseMasks && batch.Mask != nil && !batch.Mask[i] {
				continue
			}
			r.Y = append(r.Y, batch.Labels[i])
			r.Prob = append(r.Prob, prob[i])
			if batch.Mask != nil {
				r.Mask = append(r.Mask, batch.Mask[i])
			}
			r.BatchIndex = append(r.BatchIndex, batch.BatchIndex[i])
			if opts.ReturnPredicted {
				label := 0
				if prob[i][len(prob[i])-1] >= opts.Threshold {
					label = 1
				}
				r.Pred = append(r.Pred, label)
			}
		}
		results = append(results, r)
	}
	if opts.Batchwise || len(results) <= 1 {
		return results, nil
	}

	merged := results[0]
	for _, r := range results[1:] {
		merged.Names = append(merged.Names, r.Names...)
		merged.Y = append(merged.Y, r.Y...)
		merged.Prob = append(merged.Prob, r.Prob...)
		merged.Pred = append(merged.Pred, r.Pred...)
		merged.Mask = append(merged.Mask, r.Mask...)
		merged.BatchIndex = append(merged.BatchIndex, r.BatchIndex...)
	}
	return []EvalResult{merged}, nil
}

// Metrics computes the metric bundle for a result at the given threshold.
// When perGraph is set, metrics are computed per distinct batch index and
// averaged.
func (e *Evaluator) Metrics(r EvalResult, threshold float64, perGraph bool) (MetricBundle, error) {
	if !perGraph || len(r.BatchIndex) == 0 {
		return BinaryMetrics(r.Y, r.positives(), threshold)
	}

	groups := make(map[int][]int)
	order := make([]int, 0)
	for i, g := range r.BatchIndex {
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], i)
	}
	prob := r.positives()

	var sum MetricBundle
	for _, g := range order {
		idx := groups[g]
		y := make([]int, len(idx))
		p := make([]float64, len(idx))
		for j, i := range idx {
			y[j] = r.Y[i]
			p[j] = prob[i]
		}
		b, err := BinaryMetrics(y, p, threshold)
		if err != nil {
			return MetricBundle{}, err
		}
		sum.Accuracy += b.Accuracy
		sum.BalancedAccuracy += b.BalancedAccuracy
		sum.Precision += b.Precision
		sum.Recall += b.Recall
		sum.F1 += b.F1
		sum.MCC += b.MCC
		sum.AUROC += b.AUROC
		sum.AUPRC += b.AUPRC
		sum.TP += b.TP
		sum.FP += b.FP
		sum.TN += b.TN
		sum.FN += b.FN
	}
	n := float64(len(order))
	sum.Threshold = threshold
	sum.Accuracy /= n
	sum.BalancedAccuracy /= n
	sum.Precision /= n
	sum.Recall /= n
	sum.F1 /= n
	sum.MCC /= n
	sum.AUROC /= n
	sum.AUPRC /= n
	return sum, nil
}
