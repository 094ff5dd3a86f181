package training

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/bindscape/meshbind/pkg/errors"
)

// MetricBundle is the standard binary-classification summary computed at a
// fixed decision threshold.
type MetricBundle struct {
	Threshold        float64
	Accuracy         float64
	BalancedAccuracy float64
	Precision        float64
	Recall           float64
	F1               float64
	MCC              float64
	AUROC            float64
	AUPRC            float64

	TP, FP, TN, FN int
}

// MetricFunc scores a prediction against ground truth. Used by the
// operating-threshold selector.
type MetricFunc func(y, pred []int) float64

func confusion(y, pred []int) (tp, fp, tn, fn int) {
	for i := range y {
		switch {
		case y[i] == 1 && pred[i] == 1:
			tp++
		case y[i] == 0 && pred[i] == 1:
			fp++
		case y[i] == 0 && pred[i] == 0:
			tn++
		default:
			fn++
		}
	}
	return
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Accuracy is the fraction of correct predictions.
func Accuracy(y, pred []int) float64 {
	tp, fp, tn, fn := confusion(y, pred)
	return safeDiv(float64(tp+tn), float64(tp+fp+tn+fn))
}

// BalancedAccuracy is the mean of sensitivity and specificity.
func BalancedAccuracy(y, pred []int) float64 {
	tp, fp, tn, fn := confusion(y, pred)
	sens := safeDiv(float64(tp), float64(tp+fn))
	spec := safeDiv(float64(tn), float64(tn+fp))
	return (sens + spec) / 2
}

// F1 is the harmonic mean of precision and recall.
func F1(y, pred []int) float64 {
	tp, fp, _, fn := confusion(y, pred)
	prec := safeDiv(float64(tp), float64(tp+fp))
	rec := safeDiv(float64(tp), float64(tp+fn))
	return safeDiv(2*prec*rec, prec+rec)
}

// MCC is the Matthews correlation coefficient.
func MCC(y, pred []int) float64 {
	tp, fp, tn, fn := confusion(y, pred)
	num := float64(tp*tn - fp*fn)
	den := math.Sqrt(float64(tp+fp)) * math.Sqrt(float64(tp+fn)) *
		math.Sqrt(float64(tn+fp)) * math.Sqrt(float64(tn+fn))
	return safeDiv(num, den)
}

// MetricByName resolves a metric function from its configuration name.
func MetricByName(name string) (MetricFunc, error) {
	switch name {
	case "accuracy":
		return Accuracy, nil
	case "balanced_accuracy":
		return BalancedAccuracy, nil
	case "f1":
		return F1, nil
	case "mcc":
		return MCC, nil
	default:
		return nil, errors.UnsupportedOption("metric", name)
	}
}

// auroc computes the area under the ROC curve.
func auroc(y []int, prob []float64) float64 {
	scores := append([]float64(nil), prob...)
	classes := make([]bool, len(y))
	pos := 0
	for i, label := range y {
		classes[i] = label == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(y) {
		return 0
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// auprc computes the area under the precision-recall curve by step
// integration over descending score order.
func auprc(y []int, prob []float64) float64 {
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return prob[idx[a]] > prob[idx[b]] })

	totalPos := 0
	for _, label := range y {
		if label == 1 {
			totalPos++
		}
	}
	if totalPos == 0 {
		return 0
	}

	area := 0.0
	tp, fp := 0, 0
	prevRecall := 0.0
	for _, i := range idx {
		if y[i] == 1 {
			tp++
		} else {
			fp++
		}
		recall := float64(tp) / float64(totalPos)
		precision := float64(tp) / float64(tp+fp)
		area += (recall - prevRecall) * precision
		prevRecall = recall
	}
	return area
}

// BinaryMetrics computes the full bundle for labels y and positive-class
// probabilities prob at the given threshold.
func BinaryMetrics(y []int, prob []float64, threshold float64) (MetricBundle, error) {
	if len(y) != len(prob) {
		return MetricBundle{}, errors.ShapeMismatch("labels and probabilities differ in length")
	}
	if len(y) == 0 {
		return MetricBundle{}, errors.InvalidParameter("empty evaluation set")
	}
	pred := make([]int, len(y))
	for i, p := range prob {
		if p >= threshold {
			pred[i] = 1
		}
	}
	tp, fp, tn, fn := confusion(y, pred)
	b := MetricBundle{
		Threshold:        threshold,
		Accuracy:         Accuracy(y, pred),
		BalancedAccuracy: BalancedAccuracy(y, pred),
		Precision:        safeDiv(float64(tp), float64(tp+fp)),
		Recall:           safeDiv(float64(tp), float64(tp+fn)),
		F1:               F1(y, pred),
		MCC:              MCC(y, pred),
		AUROC:            auroc(y, prob),
		AUPRC:            auprc(y, prob),
		TP:               tp,
		FP:               fp,
		TN:               tn,
		FN:               fn,
	}
	return b, nil
}

// metricsTableColumns fixes the report column order.
var metricsTableColumns = []string{
	"split", "thresh", "acc", "bal_acc", "prec", "recall", "f1", "mcc", "auroc", "auprc",
}

// MetricsTable renders bundles as a fixed-width text table, one row per
// split, in the given split order.
func MetricsTable(order []string, bundles map[string]MetricBundle) string {
	var sb strings.Builder
	for i, col := range metricsTableColumns {
		if i == 0 {
			fmt.Fprintf(&sb, "%-10s", col)
			continue
		}
		fmt.Fprintf(&sb, "%9s", col)
	}
	sb.WriteByte('\n')
	for _, split := range order {
		b, ok := bundles[split]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%-10s", split)
		for _, v := range []float64{
			b.Threshold, b.Accuracy, b.BalancedAccuracy, b.Precision,
			b.Recall, b.F1, b.MCC, b.AUROC, b.AUPRC,
		} {
			fmt.Fprintf(&sb, "%9.4f", v)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
