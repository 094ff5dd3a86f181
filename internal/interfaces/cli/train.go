package cli

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bindscape/meshbind/internal/config"
	"github.com/bindscape/meshbind/internal/infrastructure/monitoring/logging"
	"github.com/bindscape/meshbind/internal/infrastructure/runstore"
	"github.com/bindscape/meshbind/internal/intelligence/training"
	"github.com/bindscape/meshbind/pkg/errors"
)

// NewTrainCmd creates the train subcommand.
func NewTrainCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train a per-vertex binding-site classifier",
		Long: "train loads the configured sample archives, trains the selected model\n" +
			"and writes checkpoints, metric history and prediction exports into a\n" +
			"fresh run directory.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, opts)
		},
	}
}

func runTrain(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	started := time.Now().UTC()
	runID := newRunName(opts.ConfigPath, started)
	runDir := filepath.Join(cfg.Run.OutputDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeIO, "creating run directory")
	}
	logger = logger.With(logging.String("run", runID))
	logger.Info("run directory created", logging.String("dir", runDir))

	digest := "env"
	if opts.ConfigPath != "" {
		if err := copyFile(opts.ConfigPath, filepath.Join(runDir, "config.yaml")); err != nil {
			return errors.Wrap(err, errors.CodeIO, "copying config into run directory")
		}
		if digest, err = config.DigestFile(opts.ConfigPath); err != nil {
			return err
		}
	}

	store := openStore(cfg)
	ctx := cmd.Context()
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	record := &runstore.RunRecord{
		RunID:        runID,
		Kind:         "train",
		ConfigDigest: digest,
		StartedAt:    started,
		Epochs:       cfg.Training.Epochs,
		BestMetric:   cfg.Training.BestStateMetric,
		Status:       runstore.StatusRunning,
	}
	if err := store.Save(ctx, record); err != nil {
		return err
	}

	err = trainRun(ctx, cmd, cfg, logger, runDir, record)
	record.FinishedAt = time.Now().UTC()
	if err != nil {
		record.Status = runstore.StatusFailed
	} else {
		record.Status = runstore.StatusCompleted
	}
	if saveErr := store.Save(ctx, record); saveErr != nil && err == nil {
		err = saveErr
	}
	return err
}

// trainRun is the body of the train command once the run directory and run
// record exist.
func trainRun(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger logging.Logger, runDir string, record *runstore.RunRecord) error {
	rng := rand.New(rand.NewSource(cfg.Run.Seed))

	trainSet, err := training.LoadDataset(cfg.Dataset.TrainList, cfg.Dataset.DataDir, cfg.Dataset.Classes)
	if err != nil {
		return err
	}
	var validSet *training.Dataset
	if cfg.Dataset.ValidList != "" {
		if validSet, err = training.LoadDataset(cfg.Dataset.ValidList, cfg.Dataset.DataDir, cfg.Dataset.Classes); err != nil {
			return err
		}
	}

	if err := trainSet.ApplyBalance(training.BalanceMode(cfg.Dataset.Balance), rng); err != nil {
		return err
	}
	// The validation split is never rebalanced; masks only drop unlabeled
	// vertices so the reported metrics reflect the full class imbalance.
	if validSet != nil {
		if err := validSet.ApplyBalance(training.BalanceUnmasked, rng); err != nil {
			return err
		}
	}

	if cfg.Dataset.Scale {
		scaler, err := training.FitScaler(trainSet.Samples)
		if err != nil {
			return err
		}
		if err := scaler.Apply(trainSet.Samples); err != nil {
			return err
		}
		if validSet != nil {
			if err := scaler.Apply(validSet.Samples); err != nil {
				return err
			}
		}
	}

	model, err := training.NewModel(training.ModelConfig{
		Name:      cfg.Model.Name,
		InputDim:  cfg.Model.InputDim,
		HiddenDim: cfg.Model.HiddenDim,
		Classes:   cfg.Dataset.Classes,
		Dropout:   cfg.Model.Dropout,
		Seed:      cfg.Run.Seed,
	})
	if err != nil {
		return err
	}
	optimizer, err := training.NewOptimizer(training.OptimizerConfig{
		Name:         cfg.Optimizer.Name,
		LearningRate: cfg.Optimizer.LearningRate,
		Momentum:     cfg.Optimizer.Momentum,
		WeightDecay:  cfg.Optimizer.WeightDecay,
		Beta1:        cfg.Optimizer.Beta1,
		Beta2:        cfg.Optimizer.Beta2,
		Epsilon:      cfg.Optimizer.Epsilon,
	})
	if err != nil {
		return err
	}
	scheduler, err := training.NewScheduler(training.SchedulerConfig{
		Name:       cfg.Scheduler.Name,
		Gamma:      cfg.Scheduler.Gamma,
		StepSize:   cfg.Scheduler.StepSize,
		MaxLR:      cfg.Scheduler.MaxLR,
		TotalSteps: cfg.Scheduler.TotalSteps,
	}, optimizer)
	if err != nil {
		return err
	}
	monitor, err := buildMonitor(cfg)
	if err != nil {
		return err
	}

	trainer, err := training.NewTrainer(record.RunID, model, optimizer, scheduler, logger, monitor)
	if err != nil {
		return err
	}

	checkpointDir := filepath.Join(runDir, "checkpoints")
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeIO, "creating checkpoint directory")
	}

	trainOpts := training.TrainOptions{
		Epochs:                   cfg.Training.Epochs,
		EvalEvery:                cfg.Training.EvalEvery,
		CheckpointEvery:          cfg.Training.CheckpointEvery,
		CheckpointDir:            checkpointDir,
		Debug:                    cfg.Run.Debug,
		BestStateMetric:          cfg.Training.BestStateMetric,
		BestStateMetricThreshold: cfg.Training.BestStateMetricThreshold,
		BestStateMetricDataset:   cfg.Training.BestStateMetricDataset,
		BestStateMetricGoal:      training.Criteria(cfg.Training.BestStateMetricGoal),
		WeightMode:               training.WeightMode(cfg.Training.WeightMethod),
		ThresholdMetric:          cfg.Training.ThresholdMetric,
		ThresholdOptions: training.ThresholdOptions{
			NSamples:  cfg.Training.ThresholdNSamples,
			Criteria:  training.Criteria(cfg.Training.ThresholdCriteria),
			Aggregate: training.Aggregation(cfg.Training.ThresholdAggregate),
		},
	}
	if trainOpts.WeightMode == training.WeightDataset {
		trainOpts.DatasetWeights = trainSet.ClassWeights()
	}

	trainStream, err := trainSet.Stream(cfg.Dataset.BatchSize, cfg.Dataset.Shuffle, rng)
	if err != nil {
		return err
	}
	var validStream training.Stream
	if validSet != nil {
		vs, err := validSet.Stream(cfg.Dataset.BatchSize, false, nil)
		if err != nil {
			return err
		}
		validStream = vs
	}

	if err := trainer.Train(ctx, trainStream, validStream, trainOpts); err != nil {
		return err
	}

	threshold := trainer.LastThreshold()
	if _, err := training.ExportPredictions(filepath.Join(runDir, "predictions", "train"), model, nil, trainSet.Samples, threshold); err != nil {
		return err
	}
	if validSet != nil {
		if _, err := training.ExportPredictions(filepath.Join(runDir, "predictions", "valid"), model, nil, validSet.Samples, threshold); err != nil {
			return err
		}
		report, err := perProteinReport(model, validSet.Samples, threshold)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report)
	}

	finalizeRecord(record, trainer, cfg)
	return nil
}

// perProteinReport renders one metric row per validation protein at the
// operating threshold chosen on the train split.
func perProteinReport(model training.Model, samples []*training.Sample, threshold float64) (string, error) {
	order := make([]string, 0, len(samples))
	bundles := make(map[string]training.MetricBundle, len(samples))
	for _, s := range samples {
		p, err := training.Predict(model, nil, s, threshold)
		if err != nil {
			return "", err
		}
		bundle, err := training.BinaryMetrics(s.Labels, p.Prob, threshold)
		if err != nil {
			return "", err
		}
		order = append(order, s.Name)
		bundles[s.Name] = bundle
	}
	return training.MetricsTable(order, bundles) + "\n", nil
}

// finalizeRecord copies the training outcome into the run record.
func finalizeRecord(record *runstore.RunRecord, trainer *training.Trainer, cfg *config.Config) {
	if best := trainer.Best(); best != nil {
		record.BestValue = best.Value
	}

	history := trainer.History()
	split := cfg.Training.BestStateMetricDataset
	events, ok := history[split]
	if !ok || len(events) == 0 {
		events = history[training.SplitTrain]
	}
	if len(events) == 0 {
		return
	}
	last := events[len(events)-1].Bundle
	record.FinalMetrics = map[string]float64{
		"threshold":         last.Threshold,
		"accuracy":          last.Accuracy,
		"balanced_accuracy": last.BalancedAccuracy,
		"precision":         last.Precision,
		"recall":            last.Recall,
		"f1":                last.F1,
		"mcc":               last.MCC,
		"auroc":             last.AUROC,
		"auprc":             last.AUPRC,
	}
}
