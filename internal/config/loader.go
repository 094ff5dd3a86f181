package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/bindscape/meshbind/pkg/errors"
)

// envPrefix is the environment variable prefix for all settings.
const envPrefix = "MESHBIND"

// newViper builds a pre-configured viper instance: YAML file type, MESHBIND_
// env prefix, automatic env binding, and a key replacer mapping "." to "_" so
// nested keys like "training.epochs" resolve to "MESHBIND_TRAINING_EPOCHS".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// configKeys lists every settings key so that env-only values survive
// Unmarshal (viper resolves env variables only for keys it knows about).
var configKeys = []string{
	"run.output_dir", "run.seed", "run.debug", "run.store_path",
	"log.level", "log.format", "log.output_paths",
	"cleaning.rename_chains", "cleaning.min_completeness",
	"cleaning.replace_backbone", "cleaning.protonate", "cleaning.keep_pqr",
	"cleaning.remove_hydrogens", "cleaning.min_radius",
	"cleaning.pdb2pqr_binary", "cleaning.conformer_dir",
	"dataset.data_dir", "dataset.train_list", "dataset.valid_list",
	"dataset.classes", "dataset.batch_size", "dataset.shuffle",
	"dataset.balance", "dataset.scale",
	"model.name", "model.input_dim", "model.hidden_dim", "model.dropout",
	"optimizer.name", "optimizer.learning_rate", "optimizer.momentum",
	"optimizer.weight_decay", "optimizer.beta1", "optimizer.beta2",
	"optimizer.epsilon",
	"scheduler.name", "scheduler.gamma", "scheduler.step_size",
	"scheduler.max_lr", "scheduler.total_steps",
	"training.epochs", "training.eval_every", "training.checkpoint_every",
	"training.weight_method", "training.best_state_metric",
	"training.best_state_metric_threshold", "training.best_state_metric_dataset",
	"training.best_state_metric_goal", "training.threshold_metric",
	"training.threshold_n_samples", "training.threshold_criteria",
	"training.threshold_aggregate",
	"metrics.backend",
}

// Load reads the YAML file at configPath, merges MESHBIND_* environment
// overrides, applies defaults for unset fields and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.CodeFatalConfiguration, "reading config file").WithDetail(configPath)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from MESHBIND_* environment variables
// and defaults, with no config file required.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeFatalConfiguration, "unmarshalling configuration")
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DigestFile returns the hex-encoded sha256 digest of the file at path. Run
// records carry it so runs can be traced back to the exact configuration.
func DigestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeIO, "reading config for digest")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
