package config

// Default value constants.
const (
	DefaultOutputDir = "runs"
	DefaultSeed      = int64(412)

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultMinCompleteness = 0.6
	DefaultMinRadius       = 0.6
	DefaultPDB2PQRBinary   = "pdb2pqr"

	DefaultClasses   = 2
	DefaultBatchSize = 1
	DefaultBalance   = "balanced"

	DefaultModelName = "surface-gcn"
	DefaultInputDim  = 5
	DefaultHiddenDim = 64

	DefaultOptimizerName = "adam"
	DefaultLearningRate  = 0.001

	DefaultSchedulerName = "none"

	DefaultEpochs            = 100
	DefaultEvalEvery         = 2
	DefaultCheckpointEvery   = 0
	DefaultWeightMethod      = "batch"
	DefaultBestStateMetric   = "balanced_accuracy"
	DefaultBestStateDataset  = "valid"
	DefaultBestStateGoal     = "max"
	DefaultThresholdMetric   = "balanced_accuracy"
	DefaultThresholdNSamples = 50

	DefaultMetricsBackend = "none"
)

// ApplyDefaults fills zero-value fields in cfg with the standard defaults.
// Explicitly configured values are left unchanged. It must run after
// unmarshalling and before Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Run.OutputDir == "" {
		cfg.Run.OutputDir = DefaultOutputDir
	}
	if cfg.Run.Seed == 0 {
		cfg.Run.Seed = DefaultSeed
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.Cleaning.MinCompleteness == 0 {
		cfg.Cleaning.MinCompleteness = DefaultMinCompleteness
	}
	if cfg.Cleaning.MinRadius == 0 {
		cfg.Cleaning.MinRadius = DefaultMinRadius
	}
	if cfg.Cleaning.PDB2PQRBinary == "" {
		cfg.Cleaning.PDB2PQRBinary = DefaultPDB2PQRBinary
	}

	if cfg.Dataset.Classes == 0 {
		cfg.Dataset.Classes = DefaultClasses
	}
	if cfg.Dataset.BatchSize == 0 {
		cfg.Dataset.BatchSize = DefaultBatchSize
	}
	if cfg.Dataset.Balance == "" {
		cfg.Dataset.Balance = DefaultBalance
	}

	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModelName
	}
	if cfg.Model.InputDim == 0 {
		cfg.Model.InputDim = DefaultInputDim
	}
	if cfg.Model.HiddenDim == 0 {
		cfg.Model.HiddenDim = DefaultHiddenDim
	}

	if cfg.Optimizer.Name == "" {
		cfg.Optimizer.Name = DefaultOptimizerName
	}
	if cfg.Optimizer.LearningRate == 0 {
		cfg.Optimizer.LearningRate = DefaultLearningRate
	}

	if cfg.Scheduler.Name == "" {
		cfg.Scheduler.Name = DefaultSchedulerName
	}

	if cfg.Training.Epochs == 0 {
		cfg.Training.Epochs = DefaultEpochs
	}
	if cfg.Training.EvalEvery == 0 {
		cfg.Training.EvalEvery = DefaultEvalEvery
	}
	if cfg.Training.WeightMethod == "" {
		cfg.Training.WeightMethod = DefaultWeightMethod
	}
	if cfg.Training.BestStateMetric == "" {
		cfg.Training.BestStateMetric = DefaultBestStateMetric
	}
	if cfg.Training.BestStateMetricDataset == "" {
		cfg.Training.BestStateMetricDataset = DefaultBestStateDataset
	}
	if cfg.Training.BestStateMetricGoal == "" {
		cfg.Training.BestStateMetricGoal = DefaultBestStateGoal
	}
	if cfg.Training.ThresholdMetric == "" {
		cfg.Training.ThresholdMetric = DefaultThresholdMetric
	}
	if cfg.Training.ThresholdNSamples == 0 {
		cfg.Training.ThresholdNSamples = DefaultThresholdNSamples
	}
	if cfg.Training.ThresholdCriteria == "" {
		cfg.Training.ThresholdCriteria = "max"
	}
	if cfg.Training.ThresholdAggregate == "" {
		cfg.Training.ThresholdAggregate = "batch_mean"
	}

	if cfg.Metrics.Backend == "" {
		cfg.Metrics.Backend = DefaultMetricsBackend
	}
}
