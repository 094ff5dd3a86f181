package training

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/bindscape/meshbind/pkg/errors"
)

// CheckpointRecord is the full resumable state of a training run. Encoded
// with gob, which round-trips the non-finite float values JSON rejects.
type CheckpointRecord struct {
	Epoch     int
	Params    []float64
	Optimizer OptimizerState
	Scheduler SchedulerState
	History   map[string][]EpochMetrics
}

// SaveCheckpoint writes the record to path atomically (write to a temp file
// in the same directory, then rename).
func SaveCheckpoint(path string, rec *CheckpointRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpoint, "creating checkpoint file")
	}
	tmpName := tmp.Name()
	if err := gob.NewEncoder(tmp).Encode(rec); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeCheckpoint, "encoding checkpoint")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeCheckpoint, "closing checkpoint file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeCheckpoint, "publishing checkpoint")
	}
	return nil
}

// LoadCheckpoint reads a record written by SaveCheckpoint.
func LoadCheckpoint(path string) (*CheckpointRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpoint, "opening checkpoint")
	}
	defer f.Close()
	var rec CheckpointRecord
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpoint, "decoding checkpoint")
	}
	return &rec, nil
}

// Restore loads a checkpoint's state into the model, optimizer and
// scheduler, returning the record for history recovery.
func Restore(path string, model Model, opt Optimizer, sched Scheduler) (*CheckpointRecord, error) {
	rec, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	if err := model.Parameters().Load(rec.Params); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpoint, "restoring model parameters")
	}
	if opt != nil {
		if err := opt.LoadState(rec.Optimizer); err != nil {
			return nil, errors.Wrap(err, errors.CodeCheckpoint, "restoring optimizer state")
		}
	}
	if sched != nil {
		if err := sched.LoadState(rec.Scheduler); err != nil {
			return nil, errors.Wrap(err, errors.CodeCheckpoint, "restoring scheduler state")
		}
	}
	return rec, nil
}
