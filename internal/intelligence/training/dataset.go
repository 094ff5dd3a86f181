package training

import (
	"bufio"
	"encoding/gob"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/bindscape/meshbind/pkg/errors"
)

// BalanceMode selects which vertex rows of a sample participate in training.
type BalanceMode string

const (
	// BalanceBalanced downsamples the majority class inside the mask until
	// classes are even.
	BalanceBalanced BalanceMode = "balanced"
	// BalanceUnmasked keeps the mask as provided.
	BalanceUnmasked BalanceMode = "unmasked"
	// BalanceAll includes every vertex, ignoring the provided mask.
	BalanceAll BalanceMode = "all"
)

// IsValid reports whether the mode is supported.
func (b BalanceMode) IsValid() bool {
	switch b {
	case BalanceBalanced, BalanceUnmasked, BalanceAll:
		return true
	}
	return false
}

// Dataset is an in-memory collection of per-protein samples.
type Dataset struct {
	Samples []*Sample
	Classes int
}

// SaveSample writes a sample as a gob archive.
func SaveSample(path string, s *Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeIO, "creating sample archive")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(s); err != nil {
		return errors.Wrap(err, errors.CodeIO, "encoding sample archive")
	}
	return nil
}

// LoadSample reads a gob sample archive.
func LoadSample(path string) (*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "opening sample archive")
	}
	defer f.Close()
	var s Sample
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "decoding sample archive")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadDataset reads the sample archives named in the list file (one name per
// line, blank lines and #-comments skipped), resolved against dataDir.
func LoadDataset(listPath, dataDir string, classes int) (*Dataset, error) {
	if classes < 2 {
		return nil, errors.InvalidParameter("dataset needs at least two classes")
	}
	f, err := os.Open(listPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "opening dataset list")
	}
	defer f.Close()

	d := &Dataset{Classes: classes}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		sample, err := LoadSample(filepath.Join(dataDir, name))
		if err != nil {
			return nil, err
		}
		d.Samples = append(d.Samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "reading dataset list")
	}
	if len(d.Samples) == 0 {
		return nil, errors.InvalidParameter("dataset list names no samples").WithDetail(listPath)
	}
	return d, nil
}

// ApplyBalance rewrites every sample's mask per the mode. The balanced mode
// uses rng to pick which majority-class rows to drop.
func (d *Dataset) ApplyBalance(mode BalanceMode, rng *rand.Rand) error {
	if !mode.IsValid() {
		return errors.UnsupportedOption("balance", string(mode))
	}
	for _, s := range d.Samples {
		switch mode {
		case BalanceAll:
			s.Mask = nil
		case BalanceUnmasked:
			// Keep the provided mask.
		case BalanceBalanced:
			balanceMask(s, d.Classes, rng)
		}
	}
	return nil
}

// balanceMask downsamples over-represented classes inside the mask so every
// class keeps at most the minority-class count.
func balanceMask(s *Sample, classes int, rng *rand.Rand) {
	if s.Mask == nil {
		s.Mask = make([]bool, len(s.Labels))
		for i := range s.Mask {
			s.Mask[i] = true
		}
	}
	byClass := make([][]int, classes)
	for i, y := range s.Labels {
		if !s.Mask[i] || y < 0 || y >= classes {
			continue
		}
		byClass[y] = append(byClass[y], i)
	}
	quota := math.MaxInt
	for _, rows := range byClass {
		if len(rows) > 0 && len(rows) < quota {
			quota = len(rows)
		}
	}
	if quota == math.MaxInt {
		return
	}
	for _, rows := range byClass {
		if len(rows) <= quota {
			continue
		}
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		for _, i := range rows[quota:] {
			s.Mask[i] = false
		}
	}
}

// ClassWeights computes inverse-frequency weights over the whole dataset,
// for the dataset weight mode.
func (d *Dataset) ClassWeights() []float64 {
	var labels []int
	var mask []bool
	for _, s := range d.Samples {
		labels = append(labels, s.Labels...)
		if s.Mask != nil {
			mask = append(mask, s.Mask...)
		} else {
			for range s.Labels {
				mask = append(mask, true)
			}
		}
	}
	return ClassWeights(labels, mask, d.Classes)
}

// Stream batches the dataset batchSize samples at a time, optionally
// shuffling sample order with rng first.
func (d *Dataset) Stream(batchSize int, shuffle bool, rng *rand.Rand) (*SliceStream, error) {
	if batchSize <= 0 {
		return nil, errors.InvalidParameter("batch size must be positive")
	}
	order := make([]*Sample, len(d.Samples))
	copy(order, d.Samples)
	if shuffle {
		if rng == nil {
			return nil, errors.InvalidParameter("shuffling requires a random generator")
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	var batches []*Batch
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		b, err := NewBatch(order[start:end]...)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return NewSliceStream(batches...), nil
}

// Scaler standardizes features column-wise to zero mean and unit variance.
// Fit on the training split, applied to every split.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes column statistics over every row of every sample.
func FitScaler(samples []*Sample) (*Scaler, error) {
	width := 0
	count := 0
	for _, s := range samples {
		for _, row := range s.Features {
			if width == 0 {
				width = len(row)
			} else if len(row) != width {
				return nil, errors.ShapeMismatch("feature rows differ in width")
			}
			count++
		}
	}
	if count == 0 {
		return nil, errors.InvalidParameter("no feature rows to fit scaler on")
	}
	sc := &Scaler{Mean: make([]float64, width), Std: make([]float64, width)}
	for _, s := range samples {
		for _, row := range s.Features {
			for k, v := range row {
				sc.Mean[k] += v
			}
		}
	}
	for k := range sc.Mean {
		sc.Mean[k] /= float64(count)
	}
	for _, s := range samples {
		for _, row := range s.Features {
			for k, v := range row {
				sc.Std[k] += (v - sc.Mean[k]) * (v - sc.Mean[k])
			}
		}
	}
	for k := range sc.Std {
		sc.Std[k] = math.Sqrt(sc.Std[k] / float64(count))
		if sc.Std[k] == 0 {
			sc.Std[k] = 1
		}
	}
	return sc, nil
}

// Apply standardizes the samples' features in place.
func (sc *Scaler) Apply(samples []*Sample) error {
	for _, s := range samples {
		for _, row := range s.Features {
			if len(row) != len(sc.Mean) {
				return errors.ShapeMismatch("feature width does not match scaler")
			}
			for k := range row {
				row[k] = (row[k] - sc.Mean[k]) / sc.Std[k]
			}
		}
	}
	return nil
}
