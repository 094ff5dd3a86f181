package training

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/bindscape/meshbind/internal/infrastructure/monitoring/logging"
	"github.com/bindscape/meshbind/internal/infrastructure/monitoring/metrics"
	"github.com/bindscape/meshbind/pkg/errors"
)

// SplitTrain and SplitValid name the two dataset splits the trainer reports.
const (
	SplitTrain = "train"
	SplitValid = "valid"
)

// EpochMetrics is one evaluation event in the metrics history.
type EpochMetrics struct {
	Epoch  int
	Bundle MetricBundle
}

// BestState is a snapshot of model parameters at the best-observed value of
// the gating metric.
type BestState struct {
	Epoch  int
	Value  float64
	Params []float64
}

// TrainOptions parameterizes a training run.
type TrainOptions struct {
	Epochs int

	// EvalEvery runs evaluation every n epochs; the final epoch is always
	// evaluated. Zero or negative disables periodic evaluation (final epoch
	// still runs).
	EvalEvery int

	// CheckpointEvery controls checkpoint cadence: positive n checkpoints
	// every n epochs plus a final checkpoint, zero writes a single
	// end-of-training checkpoint, negative disables checkpointing.
	CheckpointEvery int
	CheckpointDir   string

	// Debug disables checkpointing regardless of CheckpointEvery.
	Debug bool

	// BestStateMetric gates best-state snapshots: the named metric on the
	// named split must meet Threshold and improve per Goal.
	BestStateMetric          string
	BestStateMetricThreshold float64
	BestStateMetricDataset   string
	BestStateMetricGoal      Criteria

	// WeightMode selects class weighting; DatasetWeights backs the dataset
	// mode and must be precomputed by the caller.
	WeightMode     WeightMode
	DatasetWeights []float64

	// Threshold selection over the train split at each evaluation event.
	ThresholdMetric  string
	ThresholdOptions ThresholdOptions
}

// DefaultTrainOptions returns the standard training configuration.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Epochs:                 100,
		EvalEvery:              2,
		CheckpointEvery:        0,
		BestStateMetric:        "balanced_accuracy",
		BestStateMetricDataset: SplitValid,
		BestStateMetricGoal:    MaximizeMetric,
		WeightMode:             WeightNone,
		ThresholdMetric:        "balanced_accuracy",
		ThresholdOptions:       DefaultThresholdOptions(),
	}
}

// Trainer drives the epoch/batch loop: forward, backward, optimizer step,
// scheduler step, periodic evaluation, best-state tracking and
// checkpointing. A single control flow owns the model for the whole run;
// evaluation reads parameters only between optimizer steps.
type Trainer struct {
	runID     string
	model     Model
	optimizer Optimizer
	scheduler Scheduler
	evaluator *Evaluator
	logger    logging.Logger
	monitor   metrics.TrainingMetrics

	history       map[string][]EpochMetrics
	bestState     *BestState
	lastThreshold float64
}

// NewTrainer wires a trainer. Scheduler may be nil; monitor may be nil for a
// noop monitor.
func NewTrainer(runID string, model Model, opt Optimizer, sched Scheduler, logger logging.Logger, monitor metrics.TrainingMetrics) (*Trainer, error) {
	if model == nil {
		return nil, errors.InvalidParameter("model must not be nil")
	}
	if opt == nil {
		return nil, errors.InvalidParameter("optimizer must not be nil")
	}
	if logger == nil {
		return nil, errors.InvalidParameter("logger must not be nil")
	}
	if monitor == nil {
		monitor = metrics.NewNoopTrainingMetrics()
	}
	evaluator, err := NewEvaluator(model, nil)
	if err != nil {
		return nil, err
	}
	return &Trainer{
		runID:         runID,
		model:         model,
		optimizer:     opt,
		scheduler:     sched,
		evaluator:     evaluator,
		logger:        logger.Named("trainer"),
		monitor:       monitor,
		history:       make(map[string][]EpochMetrics),
		lastThreshold: 0.5,
	}, nil
}

// History returns the append-only metrics history keyed by split name.
func (t *Trainer) History() map[string][]EpochMetrics { return t.history }

// Best returns the best-state snapshot, or nil when the gate was never met.
func (t *Trainer) Best() *BestState { return t.bestState }

// LastThreshold returns the operating threshold chosen at the most recent
// evaluation event (0.5 before any evaluation).
func (t *Trainer) LastThreshold() float64 { return t.lastThreshold }

func (t *Trainer) validate(opts TrainOptions) error {
	if opts.Epochs <= 0 {
		return errors.InvalidParameter("epochs must be positive")
	}
	if !opts.WeightMode.IsValid() {
		return errors.UnsupportedOption("weight_method", string(opts.WeightMode))
	}
	if opts.WeightMode == WeightDataset && len(opts.DatasetWeights) == 0 {
		return errors.InvalidParameter("dataset weight mode requires precomputed weights")
	}
	if opts.BestStateMetric != "" {
		if _, err := MetricByName(opts.BestStateMetric); err != nil {
			return err
		}
		switch opts.BestStateMetricGoal {
		case MaximizeMetric, MinimizeMetric:
		default:
			return errors.UnsupportedOption("best_state_metric_goal", string(opts.BestStateMetricGoal))
		}
	}
	if opts.ThresholdMetric != "" {
		if _, err := MetricByName(opts.ThresholdMetric); err != nil {
			return err
		}
	}
	return nil
}

// Train runs the full loop. Epochs execute strictly in order; batches in
// stream order. Numerical divergence and checkpoint I/O failures abort the
// run.
func (t *Trainer) Train(ctx context.Context, trainStream, validStream Stream, opts TrainOptions) error {
	if trainStream == nil {
		return errors.InvalidParameter("training stream must not be nil")
	}
	if err := t.validate(opts); err != nil {
		return err
	}
	checkpoints := !opts.Debug && opts.CheckpointEvery >= 0 && opts.CheckpointDir != ""

	t.model.SetTraining(true)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		start := time.Now()
		meanLoss, err := t.trainEpoch(ctx, trainStream, opts)
		if err != nil {
			return err
		}
		if t.scheduler != nil && t.scheduler.Cadence() == PerEpoch {
			t.scheduler.Step()
		}
		t.monitor.RecordEpoch(ctx, t.runID, epoch, float64(time.Since(start).Milliseconds()), meanLoss)
		t.logger.Info("epoch complete",
			logging.Int("epoch", epoch),
			logging.Float64("loss", meanLoss),
			logging.Float64("lr", t.optimizer.LearningRate()))

		if t.evalDue(epoch, opts) {
			if err := t.evaluate(ctx, epoch, trainStream, validStream, opts); err != nil {
				return err
			}
		}
		if checkpoints && opts.CheckpointEvery > 0 && (epoch+1)%opts.CheckpointEvery == 0 {
			path := filepath.Join(opts.CheckpointDir, fmt.Sprintf("checkpoint_epoch_%04d.gob", epoch))
			if err := t.checkpoint(ctx, epoch, path); err != nil {
				return err
			}
		}
	}

	if checkpoints {
		path := filepath.Join(opts.CheckpointDir, "checkpoint_final.gob")
		if err := t.checkpoint(ctx, opts.Epochs-1, path); err != nil {
			return err
		}
		if err := t.writeHistory(opts.CheckpointDir); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) evalDue(epoch int, opts TrainOptions) bool {
	if epoch == opts.Epochs-1 {
		return true
	}
	return opts.EvalEvery > 0 && (epoch+1)%opts.EvalEvery == 0
}

// trainEpoch iterates the training stream once, returning the mean batch
// loss.
func (t *Trainer) trainEpoch(ctx context.Context, stream Stream, opts TrainOptions) (float64, error) {
	stream.Reset()
	totalLoss := 0.0
	batches := 0
	for {
		batch, ok, err := stream.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		loss, err := t.step(batch, opts)
		if err != nil {
			return 0, err
		}
		t.monitor.RecordBatch(ctx, t.runID, loss)
		totalLoss += loss
		batches++
		if t.scheduler != nil && t.scheduler.Cadence() == PerBatch {
			t.scheduler.Step()
		}
	}
	if batches == 0 {
		return 0, errors.InvalidParameter("training stream yielded no batches")
	}
	return totalLoss / float64(batches), nil
}

// step runs one forward/backward/optimizer cycle on a batch.
func (t *Trainer) step(batch *Batch, opts TrainOptions) (float64, error) {
	logits := t.model.Forward(batch)
	classes := 0
	if len(logits) > 0 {
		classes = len(logits[0])
	}

	var weights []float64
	switch opts.WeightMode {
	case WeightBatch:
		weights = ClassWeights(batch.Labels, batch.Mask, classes)
	case WeightDataset:
		weights = opts.DatasetWeights
	}

	loss, grad, err := crossEntropy(logits, batch.Labels, batch.Mask, weights)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, errors.Newf(errors.CodeDivergence, "non-finite loss at batch of size %d", batch.Size())
	}
	t.model.Parameters().ZeroGrad()
	t.model.Backward(batch, grad)
	t.optimizer.Step(t.model.Parameters())
	return loss, nil
}

// evaluate runs both splits, chooses the operating threshold on the train
// split, records history, logs the report table and updates the best state.
func (t *Trainer) evaluate(ctx context.Context, epoch int, trainStream, validStream Stream, opts TrainOptions) error {
	bundles := make(map[string]MetricBundle)
	order := []string{SplitTrain}

	trainResult, err := t.evalSplit(ctx, SplitTrain, trainStream)
	if err != nil {
		return err
	}

	threshold := t.lastThreshold
	if opts.ThresholdMetric != "" {
		metricFn, err := MetricByName(opts.ThresholdMetric)
		if err != nil {
			return err
		}
		chosen, _, err := ChooseBinaryThresholdSingle(trainResult.Y, trainResult.positives(), metricFn, opts.ThresholdOptions)
		if err != nil {
			return err
		}
		threshold = chosen
		t.lastThreshold = chosen
	}

	trainBundle, err := t.evaluator.Metrics(trainResult, threshold, false)
	if err != nil {
		return err
	}
	bundles[SplitTrain] = trainBundle
	t.history[SplitTrain] = append(t.history[SplitTrain], EpochMetrics{Epoch: epoch, Bundle: trainBundle})

	if validStream != nil {
		validResult, err := t.evalSplit(ctx, SplitValid, validStream)
		if err != nil {
			return err
		}
		validBundle, err := t.evaluator.Metrics(validResult, threshold, false)
		if err != nil {
			return err
		}
		bundles[SplitValid] = validBundle
		t.history[SplitValid] = append(t.history[SplitValid], EpochMetrics{Epoch: epoch, Bundle: validBundle})
		order = append(order, SplitValid)
	}

	t.logger.Info("evaluation report",
		logging.Int("epoch", epoch),
		logging.String("table", "\n"+MetricsTable(order, bundles)))

	return t.updateBestState(epoch, bundles, opts)
}

func (t *Trainer) evalSplit(ctx context.Context, split string, stream Stream) (EvalResult, error) {
	start := time.Now()
	results, err := t.evaluator.Eval(ctx, stream, DefaultEvalOptions())
	if err != nil {
		return EvalResult{}, err
	}
	t.monitor.RecordEvaluation(ctx, t.runID, split, float64(time.Since(start).Milliseconds()))
	if len(results) == 0 {
		return EvalResult{}, errors.InvalidParameter("evaluation stream yielded no batches")
	}
	return results[0], nil
}

// bundleValue extracts a named metric from a bundle.
func bundleValue(b MetricBundle, name string) (float64, error) {
	switch name {
	case "accuracy":
		return b.Accuracy, nil
	case "balanced_accuracy":
		return b.BalancedAccuracy, nil
	case "precision":
		return b.Precision, nil
	case "recall":
		return b.Recall, nil
	case "f1":
		return b.F1, nil
	case "mcc":
		return b.MCC, nil
	case "auroc":
		return b.AUROC, nil
	case "auprc":
		return b.AUPRC, nil
	default:
		return 0, errors.UnsupportedOption("best_state_metric", name)
	}
}

func (t *Trainer) updateBestState(epoch int, bundles map[string]MetricBundle, opts TrainOptions) error {
	if opts.BestStateMetric == "" {
		return nil
	}
	bundle, ok := bundles[opts.BestStateMetricDataset]
	if !ok {
		return nil
	}
	value, err := bundleValue(bundle, opts.BestStateMetric)
	if err != nil {
		return err
	}

	meets := false
	improves := false
	switch opts.BestStateMetricGoal {
	case MinimizeMetric:
		meets = value <= opts.BestStateMetricThreshold
		improves = t.bestState == nil || value < t.bestState.Value
	default:
		meets = value >= opts.BestStateMetricThreshold
		improves = t.bestState == nil || value > t.bestState.Value
	}
	if !meets || !improves {
		return nil
	}
	t.bestState = &BestState{
		Epoch:  epoch,
		Value:  value,
		Params: t.model.Parameters().Snapshot(),
	}
	t.logger.Info("best state updated",
		logging.Int("epoch", epoch),
		logging.String("metric", opts.BestStateMetric),
		logging.Float64("value", value))
	return nil
}

func (t *Trainer) checkpoint(ctx context.Context, epoch int, path string) error {
	rec := &CheckpointRecord{
		Epoch:   epoch,
		Params:  t.model.Parameters().Snapshot(),
		History: t.history,
	}
	rec.Optimizer = t.optimizer.State()
	if t.scheduler != nil {
		rec.Scheduler = t.scheduler.State()
	}
	err := SaveCheckpoint(path, rec)
	t.monitor.RecordCheckpoint(ctx, t.runID, epoch, err == nil)
	if err != nil {
		return err
	}
	t.logger.Info("checkpoint written",
		logging.Int("epoch", epoch),
		logging.String("path", path))
	return nil
}

// writeHistory dumps the metrics history as standalone JSON next to the
// checkpoints for downstream reporting.
func (t *Trainer) writeHistory(dir string) error {
	data, err := json.MarshalIndent(t.history, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeIO, "encoding metrics history")
	}
	path := filepath.Join(dir, "metrics_history.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeIO, "writing metrics history")
	}
	return nil
}
