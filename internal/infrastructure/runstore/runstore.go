// Package runstore persists run records: one row per training or cleaning
// run, carrying the configuration digest and the final outcome so runs can be
// compared after the fact.
package runstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bindscape/meshbind/pkg/errors"
)

// RunRecord is the persisted summary of a single run.
type RunRecord struct {
	RunID        string
	Kind         string
	ConfigDigest string
	StartedAt    time.Time
	FinishedAt   time.Time
	Epochs       int
	BestMetric   string
	BestValue    float64
	FinalMetrics map[string]float64
	Status       string
}

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store persists run records. Save upserts by run id.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, rec *RunRecord) error
	Get(ctx context.Context, runID string) (*RunRecord, error)
	List(ctx context.Context) ([]*RunRecord, error)
	Close() error
}

// MemoryStore is the in-memory Store used in tests and when no database path
// is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*RunRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*RunRecord)}
}

// Init implements Store.
func (s *MemoryStore) Init(context.Context) error { return nil }

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec *RunRecord) error {
	if rec == nil || rec.RunID == "" {
		return errors.InvalidParameter("run record needs a run id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	if rec.FinalMetrics != nil {
		clone.FinalMetrics = make(map[string]float64, len(rec.FinalMetrics))
		for k, v := range rec.FinalMetrics {
			clone.FinalMetrics[k] = v
		}
	}
	s.records[rec.RunID] = &clone
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[runID]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "run %s not found", runID)
	}
	clone := *rec
	return &clone, nil
}

// List implements Store. Records come back ordered by start time, then id.
func (s *MemoryStore) List(context.Context) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RunRecord, 0, len(s.records))
	for _, rec := range s.records {
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
