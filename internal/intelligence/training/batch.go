// Package training implements the learning stack: batched graph samples,
// trainable models, optimizers and schedulers, classification metrics,
// operating-threshold selection, evaluation and the epoch-driven trainer.
package training

import (
	"context"

	"github.com/bindscape/meshbind/pkg/errors"
)

// Sample is one protein surface prepared for learning: per-vertex features,
// binary labels, an optional validity mask, the edge list derived from the
// mesh topology, and the geometry kept for prediction export.
type Sample struct {
	Name     string
	Features [][]float64
	Labels   []int
	Mask     []bool
	Edges    [][2]int

	Vertices [][3]float64
	Faces    [][3]int
}

// Validate checks the internal consistency of the sample.
func (s *Sample) Validate() error {
	n := len(s.Features)
	if len(s.Labels) != n {
		return errors.ShapeMismatch("features and labels differ in length").WithDetail(s.Name)
	}
	if s.Mask != nil && len(s.Mask) != n {
		return errors.ShapeMismatch("features and mask differ in length").WithDetail(s.Name)
	}
	for _, e := range s.Edges {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n {
			return errors.InvalidParameter("edge references a vertex out of range").WithDetail(s.Name)
		}
	}
	return nil
}

// Batch is one or more samples concatenated for a single model step.
// BatchIndex maps every vertex row to the sample it came from.
type Batch struct {
	Names      []string
	Features   [][]float64
	Labels     []int
	Mask       []bool
	Edges      [][2]int
	BatchIndex []int
}

// NewBatch concatenates samples, offsetting edge indices. Samples without a
// mask contribute all-true mask entries.
func NewBatch(samples ...*Sample) (*Batch, error) {
	b := &Batch{}
	offset := 0
	for gi, s := range samples {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		b.Names = append(b.Names, s.Name)
		b.Features = append(b.Features, s.Features...)
		b.Labels = append(b.Labels, s.Labels...)
		for range s.Features {
			b.BatchIndex = append(b.BatchIndex, gi)
		}
		if s.Mask != nil {
			b.Mask = append(b.Mask, s.Mask...)
		} else {
			for range s.Features {
				b.Mask = append(b.Mask, true)
			}
		}
		for _, e := range s.Edges {
			b.Edges = append(b.Edges, [2]int{e[0] + offset, e[1] + offset})
		}
		offset += len(s.Features)
	}
	return b, nil
}

// Size returns the number of vertex rows in the batch.
func (b *Batch) Size() int { return len(b.Features) }

// Stream yields batches in a fixed order. Next may block on upstream I/O;
// the context bounds that wait.
type Stream interface {
	// Next returns the next batch, or ok=false at the end of the stream.
	Next(ctx context.Context) (batch *Batch, ok bool, err error)

	// Reset rewinds the stream to its first batch.
	Reset()
}

// SliceStream serves a fixed batch list. Used by datasets and tests.
type SliceStream struct {
	batches []*Batch
	pos     int
}

var _ Stream = (*SliceStream)(nil)

// NewSliceStream constructs a stream over the given batches.
func NewSliceStream(batches ...*Batch) *SliceStream {
	return &SliceStream{batches: batches}
}

// Next implements Stream.
func (s *SliceStream) Next(ctx context.Context) (*Batch, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errors.Wrap(err, errors.CodeInternal, "stream interrupted")
	}
	if s.pos >= len(s.batches) {
		return nil, false, nil
	}
	b := s.batches[s.pos]
	s.pos++
	return b, true, nil
}

// Reset implements Stream.
func (s *SliceStream) Reset() { s.pos = 0 }

// Len returns the number of batches the stream serves.
func (s *SliceStream) Len() int { return len(s.batches) }
