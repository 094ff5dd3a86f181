// Package metrics provides operational telemetry for training runs. The
// TrainingMetrics interface decouples the trainer from the concrete backend
// (Prometheus, in-memory, noop) so that instrumentation can be swapped
// without touching training code.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// TrainingMetrics is the unified telemetry API for the training loop.
type TrainingMetrics interface {
	// RecordEpoch records the wall-clock duration and mean loss of one epoch.
	RecordEpoch(ctx context.Context, runID string, epoch int, durationMs, meanLoss float64)

	// RecordBatch records a single forward/backward/step cycle.
	RecordBatch(ctx context.Context, runID string, loss float64)

	// RecordEvaluation records an evaluation event on a dataset split.
	RecordEvaluation(ctx context.Context, runID, split string, durationMs float64)

	// RecordCheckpoint records a checkpoint write.
	RecordCheckpoint(ctx context.Context, runID string, epoch int, success bool)

	// Stats returns a point-in-time snapshot.
	Stats() *Snapshot
}

// Snapshot is a point-in-time view of recorded telemetry.
type Snapshot struct {
	Epochs      int64   `json:"epochs"`
	Batches     int64   `json:"batches"`
	Evaluations int64   `json:"evaluations"`
	Checkpoints int64   `json:"checkpoints"`
	LastLoss    float64 `json:"last_loss"`
}

const metricsPrefix = "meshbind_training_"

var epochDurationBuckets = []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 300000}

type prometheusTrainingMetrics struct {
	epochDuration *prometheus.HistogramVec
	epochLoss     *prometheus.GaugeVec
	batchTotal    *prometheus.CounterVec
	evalDuration  *prometheus.HistogramVec
	checkpoints   *prometheus.CounterVec

	epochs      atomic.Int64
	batches     atomic.Int64
	evaluations atomic.Int64
	ckpts       atomic.Int64
	lastLoss    atomic.Value // float64
}

// NewPrometheusTrainingMetrics creates a Prometheus-backed collector and
// registers all metrics with the supplied Registerer (DefaultRegisterer when
// nil).
func NewPrometheusTrainingMetrics(registerer prometheus.Registerer) (TrainingMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &prometheusTrainingMetrics{}
	m.lastLoss.Store(float64(0))

	m.epochDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "epoch_duration_milliseconds",
		Help:    "Histogram of epoch wall-clock duration in milliseconds.",
		Buckets: epochDurationBuckets,
	}, []string{"run_id"})

	m.epochLoss = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: metricsPrefix + "epoch_mean_loss",
		Help: "Mean training loss of the most recent epoch.",
	}, []string{"run_id"})

	m.batchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "batches_total",
		Help: "Total number of processed training batches.",
	}, []string{"run_id"})

	m.evalDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "evaluation_duration_milliseconds",
		Help:    "Histogram of evaluation duration in milliseconds.",
		Buckets: epochDurationBuckets,
	}, []string{"run_id", "split"})

	m.checkpoints = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "checkpoints_total",
		Help: "Total number of checkpoint writes by status.",
	}, []string{"run_id", "status"})

	collectors := []prometheus.Collector{
		m.epochDuration, m.epochLoss, m.batchTotal, m.evalDuration, m.checkpoints,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *prometheusTrainingMetrics) RecordEpoch(_ context.Context, runID string, _ int, durationMs, meanLoss float64) {
	m.epochDuration.WithLabelValues(runID).Observe(durationMs)
	m.epochLoss.WithLabelValues(runID).Set(meanLoss)
	m.epochs.Add(1)
	m.lastLoss.Store(meanLoss)
}

func (m *prometheusTrainingMetrics) RecordBatch(_ context.Context, runID string, loss float64) {
	m.batchTotal.WithLabelValues(runID).Inc()
	m.batches.Add(1)
	m.lastLoss.Store(loss)
}

func (m *prometheusTrainingMetrics) RecordEvaluation(_ context.Context, runID, split string, durationMs float64) {
	m.evalDuration.WithLabelValues(runID, split).Observe(durationMs)
	m.evaluations.Add(1)
}

func (m *prometheusTrainingMetrics) RecordCheckpoint(_ context.Context, runID string, _ int, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.checkpoints.WithLabelValues(runID, status).Inc()
	m.ckpts.Add(1)
}

func (m *prometheusTrainingMetrics) Stats() *Snapshot {
	return &Snapshot{
		Epochs:      m.epochs.Load(),
		Batches:     m.batches.Load(),
		Evaluations: m.evaluations.Load(),
		Checkpoints: m.ckpts.Load(),
		LastLoss:    m.lastLoss.Load().(float64),
	}
}

type noopTrainingMetrics struct{}

// NewNoopTrainingMetrics returns a metrics implementation that discards
// everything.
func NewNoopTrainingMetrics() TrainingMetrics { return noopTrainingMetrics{} }

func (noopTrainingMetrics) RecordEpoch(context.Context, string, int, float64, float64) {}
func (noopTrainingMetrics) RecordBatch(context.Context, string, float64)               {}
func (noopTrainingMetrics) RecordEvaluation(context.Context, string, string, float64)  {}
func (noopTrainingMetrics) RecordCheckpoint(context.Context, string, int, bool)        {}
func (noopTrainingMetrics) Stats() *Snapshot                                           { return &Snapshot{} }

// EpochRecord is one epoch entry captured by the in-memory implementation.
type EpochRecord struct {
	RunID      string
	Epoch      int
	DurationMs float64
	MeanLoss   float64
}

// InMemoryTrainingMetrics records events in memory for unit tests.
type InMemoryTrainingMetrics struct {
	mu          sync.Mutex
	epochs      []EpochRecord
	batchLosses []float64
	evalSplits  []string
	checkpoints []int
}

// NewInMemoryTrainingMetrics returns an empty in-memory collector.
func NewInMemoryTrainingMetrics() *InMemoryTrainingMetrics {
	return &InMemoryTrainingMetrics{}
}

func (m *InMemoryTrainingMetrics) RecordEpoch(_ context.Context, runID string, epoch int, durationMs, meanLoss float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs = append(m.epochs, EpochRecord{RunID: runID, Epoch: epoch, DurationMs: durationMs, MeanLoss: meanLoss})
}

func (m *InMemoryTrainingMetrics) RecordBatch(_ context.Context, _ string, loss float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchLosses = append(m.batchLosses, loss)
}

func (m *InMemoryTrainingMetrics) RecordEvaluation(_ context.Context, _, split string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evalSplits = append(m.evalSplits, split)
}

func (m *InMemoryTrainingMetrics) RecordCheckpoint(_ context.Context, _ string, epoch int, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = append(m.checkpoints, epoch)
}

func (m *InMemoryTrainingMetrics) Stats() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Snapshot{
		Epochs:      int64(len(m.epochs)),
		Batches:     int64(len(m.batchLosses)),
		Evaluations: int64(len(m.evalSplits)),
		Checkpoints: int64(len(m.checkpoints)),
	}
	if n := len(m.batchLosses); n > 0 {
		s.LastLoss = m.batchLosses[n-1]
	}
	return s
}

// Epochs returns a copy of all recorded epoch entries.
func (m *InMemoryTrainingMetrics) Epochs() []EpochRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EpochRecord, len(m.epochs))
	copy(out, m.epochs)
	return out
}

// CheckpointEpochs returns the epoch index of every recorded checkpoint write.
func (m *InMemoryTrainingMetrics) CheckpointEpochs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.checkpoints))
	copy(out, m.checkpoints)
	return out
}

// EvaluationSplits returns the split label of every recorded evaluation.
func (m *InMemoryTrainingMetrics) EvaluationSplits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.evalSplits))
	copy(out, m.evalSplits)
	return out
}

var (
	_ TrainingMetrics = (*prometheusTrainingMetrics)(nil)
	_ TrainingMetrics = noopTrainingMetrics{}
	_ TrainingMetrics = (*InMemoryTrainingMetrics)(nil)
)
