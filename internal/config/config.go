// Package config defines the configuration structures for the meshbind
// toolchain. No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"github.com/bindscape/meshbind/pkg/errors"
)

// RunConfig holds run-level settings shared by every subcommand.
type RunConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Seed      int64  `mapstructure:"seed"`
	Debug     bool   `mapstructure:"debug"`

	// StorePath is the sqlite database recording run outcomes. Empty selects
	// the in-memory store.
	StorePath string `mapstructure:"store_path"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// CleaningConfig holds structure-cleaning pipeline parameters.
type CleaningConfig struct {
	RenameChains    bool    `mapstructure:"rename_chains"`
	MinCompleteness float64 `mapstructure:"min_completeness"`
	ReplaceBackbone bool    `mapstructure:"replace_backbone"`
	Protonate       bool    `mapstructure:"protonate"`
	KeepPQR         bool    `mapstructure:"keep_pqr"`
	RemoveHydrogens bool    `mapstructure:"remove_hydrogens"`
	MinRadius       float64 `mapstructure:"min_radius"`

	// PDB2PQRBinary is the protonation tool invoked by the default Protonator.
	PDB2PQRBinary string `mapstructure:"pdb2pqr_binary"`

	// ConformerDir holds the reference tripeptide conformer PDB files used by
	// the residue repair engine.
	ConformerDir string `mapstructure:"conformer_dir"`
}

// DatasetConfig holds dataset loading and balancing parameters.
type DatasetConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	TrainList string `mapstructure:"train_list"`
	ValidList string `mapstructure:"valid_list"`
	Classes   int    `mapstructure:"classes"`
	BatchSize int    `mapstructure:"batch_size"`
	Shuffle   bool   `mapstructure:"shuffle"`
	Balance   string `mapstructure:"balance"` // "balanced" | "unmasked" | "all"
	Scale     bool   `mapstructure:"scale"`
}

// ModelConfig holds model selection and sizing parameters.
type ModelConfig struct {
	Name      string  `mapstructure:"name"` // "pointnet-lite" | "surface-gcn"
	InputDim  int     `mapstructure:"input_dim"`
	HiddenDim int     `mapstructure:"hidden_dim"`
	Dropout   float64 `mapstructure:"dropout"`
}

// OptimizerConfig holds optimizer parameters.
type OptimizerConfig struct {
	Name         string  `mapstructure:"name"` // "sgd" | "adam"
	LearningRate float64 `mapstructure:"learning_rate"`
	Momentum     float64 `mapstructure:"momentum"`
	WeightDecay  float64 `mapstructure:"weight_decay"`
	Beta1        float64 `mapstructure:"beta1"`
	Beta2        float64 `mapstructure:"beta2"`
	Epsilon      float64 `mapstructure:"epsilon"`
}

// SchedulerConfig holds learning-rate scheduler parameters.
type SchedulerConfig struct {
	Name       string  `mapstructure:"name"` // "none" | "exponential" | "step" | "onecycle"
	Gamma      float64 `mapstructure:"gamma"`
	StepSize   int     `mapstructure:"step_size"`
	MaxLR      float64 `mapstructure:"max_lr"`
	TotalSteps int     `mapstructure:"total_steps"`
}

// TrainingConfig holds trainer loop parameters.
type TrainingConfig struct {
	Epochs          int    `mapstructure:"epochs"`
	EvalEvery       int    `mapstructure:"eval_every"`
	CheckpointEvery int    `mapstructure:"checkpoint_every"`
	WeightMethod    string `mapstructure:"weight_method"` // "none" | "batch" | "dataset"

	BestStateMetric          string  `mapstructure:"best_state_metric"`
	BestStateMetricThreshold float64 `mapstructure:"best_state_metric_threshold"`
	BestStateMetricDataset   string  `mapstructure:"best_state_metric_dataset"` // "train" | "valid"
	BestStateMetricGoal      string  `mapstructure:"best_state_metric_goal"`    // "max" | "min"

	ThresholdMetric    string `mapstructure:"threshold_metric"`
	ThresholdNSamples  int    `mapstructure:"threshold_n_samples"`
	ThresholdCriteria  string `mapstructure:"threshold_criteria"`  // "max" | "min"
	ThresholdAggregate string `mapstructure:"threshold_aggregate"` // "batch_mean" | "batch_max"
}

// MetricsConfig selects the operational metrics backend.
type MetricsConfig struct {
	Backend string `mapstructure:"backend"` // "prometheus" | "memory" | "none"
}

// Config is the root configuration structure for the toolchain.
type Config struct {
	Run       RunConfig       `mapstructure:"run"`
	Log       LogConfig       `mapstructure:"log"`
	Cleaning  CleaningConfig  `mapstructure:"cleaning"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Model     ModelConfig     `mapstructure:"model"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Training  TrainingConfig  `mapstructure:"training"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// Validate performs semantic validation of the fully-populated Config. It
// returns the first error encountered; callers treat any error as fatal.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.FatalConfiguration("log.level must be one of debug|info|warn|error")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.FatalConfiguration("log.format must be json or console")
	}

	if c.Cleaning.MinCompleteness < 0 || c.Cleaning.MinCompleteness > 1 {
		return errors.FatalConfiguration("cleaning.min_completeness must be in [0,1]")
	}
	if c.Cleaning.MinRadius < 0 {
		return errors.FatalConfiguration("cleaning.min_radius must not be negative")
	}

	if c.Dataset.Classes < 2 {
		return errors.FatalConfiguration("dataset.classes must be at least 2")
	}
	if c.Dataset.BatchSize < 1 {
		return errors.FatalConfiguration("dataset.batch_size must be at least 1")
	}
	switch c.Dataset.Balance {
	case "balanced", "unmasked", "all":
	default:
		return errors.FatalConfiguration("dataset.balance must be one of balanced|unmasked|all")
	}

	if c.Model.InputDim < 1 {
		return errors.FatalConfiguration("model.input_dim must be at least 1")
	}
	if c.Model.HiddenDim < 1 {
		return errors.FatalConfiguration("model.hidden_dim must be at least 1")
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return errors.FatalConfiguration("model.dropout must be in [0,1)")
	}

	if c.Optimizer.LearningRate <= 0 {
		return errors.FatalConfiguration("optimizer.learning_rate must be positive")
	}

	if c.Training.Epochs < 1 {
		return errors.FatalConfiguration("training.epochs must be at least 1")
	}
	switch c.Training.WeightMethod {
	case "none", "batch", "dataset":
	default:
		return errors.FatalConfiguration("training.weight_method must be one of none|batch|dataset")
	}
	switch c.Training.BestStateMetricDataset {
	case "train", "valid":
	default:
		return errors.FatalConfiguration("training.best_state_metric_dataset must be train or valid")
	}
	switch c.Training.BestStateMetricGoal {
	case "max", "min":
	default:
		return errors.FatalConfiguration("training.best_state_metric_goal must be max or min")
	}
	if c.Training.ThresholdNSamples < 1 {
		return errors.FatalConfiguration("training.threshold_n_samples must be at least 1")
	}

	switch c.Metrics.Backend {
	case "prometheus", "memory", "none":
	default:
		return errors.FatalConfiguration("metrics.backend must be one of prometheus|memory|none")
	}

	return nil
}
