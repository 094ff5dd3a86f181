package mesh

import (
	"math"

	"github.com/bindscape/meshbind/pkg/errors"
)

// WeightMethod selects the distance-to-weight kernel used when point
// features are spread over nearby mesh vertices.
type WeightMethod string

const (
	// WeightInverseDistance decays hyperbolically from the point outward.
	WeightInverseDistance WeightMethod = "inverse_distance"
	// WeightLinear decays linearly from the point to the cutoff.
	WeightLinear WeightMethod = "linear"
	// WeightBinary gives every contributing vertex unit weight.
	WeightBinary WeightMethod = "binary"
)

// IsValid reports whether the method is one of the supported kernels.
func (w WeightMethod) IsValid() bool {
	switch w {
	case WeightInverseDistance, WeightLinear, WeightBinary:
		return true
	}
	return false
}

// MapMode selects which vertices receive a point's features.
type MapMode string

const (
	// MapNeighborhood spreads each point over all vertices within the
	// distance cutoff.
	MapNeighborhood MapMode = "neighborhood"
	// MapNearest assigns each point to its single nearest vertex.
	MapNearest MapMode = "nearest"
)

// IsValid reports whether the mode is supported.
func (m MapMode) IsValid() bool {
	return m == MapNeighborhood || m == MapNearest
}

// MapOptions parameterizes MapPointFeaturesToMesh. The zero value is not
// valid; start from DefaultMapOptions.
type MapOptions struct {
	Mode           MapMode
	DistanceCutoff float64

	// Offset enlarges point i's neighborhood ball to DistanceCutoff +
	// Offset[i] and shifts the kernel argument by the same amount. Nil means
	// zero for every point; otherwise one entry per point.
	Offset []float64

	Weight    WeightMethod
	MinWeight float64
	MaxWeight float64

	// ClipValues requests accumulator clipping before accumulation. The
	// accumulator is still zero at that point, so the clip never changes
	// anything; the flag is honoured for compatibility with existing
	// configurations.
	ClipValues bool

	// LaplaceSmooth runs SmoothIterations passes of Laplacian smoothing over
	// the mapped features.
	LaplaceSmooth    bool
	SmoothIterations int
}

// DefaultMapOptions returns the standard mapping configuration.
func DefaultMapOptions() MapOptions {
	return MapOptions{
		Mode:             MapNeighborhood,
		DistanceCutoff:   3.0,
		Weight:           WeightInverseDistance,
		MinWeight:        0.5,
		MaxWeight:        2.0,
		SmoothIterations: 1,
	}
}

// weightKernel returns the distance-to-weight function for the options. The
// second argument is the per-point offset.
func weightKernel(opts MapOptions) (func(d, offset float64) float64, error) {
	if !opts.Weight.IsValid() {
		return nil, errors.UnsupportedOption("weight_method", string(opts.Weight))
	}
	if opts.MinWeight >= opts.MaxWeight {
		return nil, errors.InvalidParameter("weight range is empty").
			WithDetail("min_weight must be strictly below max_weight")
	}
	cutoff := opts.DistanceCutoff
	minw, maxw := opts.MinWeight, opts.MaxWeight
	clip := func(w float64) float64 {
		return math.Min(math.Max(w, minw), maxw)
	}
	switch opts.Weight {
	case WeightInverseDistance:
		b := maxw / (minw - maxw)
		a := minw * b
		return func(d, offset float64) float64 {
			u := (cutoff - d + offset) / cutoff
			return clip(a / (u + b))
		}, nil
	case WeightLinear:
		return func(d, offset float64) float64 {
			u := (cutoff - d + offset) / cutoff
			return clip((maxw-minw)*u + minw)
		}, nil
	default:
		return func(float64, float64) float64 { return 1 }, nil
	}
}

// clipToStdBand clips every entry of features to mean +/- nStd standard
// deviations, computed over the whole matrix. Used both by the interpolation
// compatibility path and by callers sanitizing raw point features.
func clipToStdBand(features [][]float64, nStd float64) {
	n := 0
	mean := 0.0
	for _, row := range features {
		for _, v := range row {
			mean += v
			n++
		}
	}
	if n == 0 {
		return
	}
	mean /= float64(n)
	ss := 0.0
	for _, row := range features {
		for _, v := range row {
			ss += (v - mean) * (v - mean)
		}
	}
	std := math.Sqrt(ss / float64(n))
	lo, hi := mean-nStd*std, mean+nStd*std
	for _, row := range features {
		for i, v := range row {
			if v < lo {
				row[i] = lo
			} else if v > hi {
				row[i] = hi
			}
		}
	}
}

// ClipOutliers clips feature values beyond nStd standard deviations of the
// matrix mean in place.
func ClipOutliers(features [][]float64, nStd float64) error {
	if nStd <= 0 {
		return errors.InvalidParameter("standard-deviation band must be positive")
	}
	clipToStdBand(features, nStd)
	return nil
}

// clipValuesStdBand is the band applied by the ClipValues compatibility path.
const clipValuesStdBand = 4.0

// MapPointFeaturesToMesh spreads per-point feature vectors onto mesh
// vertices. Each point contributes to the vertices selected by opts.Mode,
// weighted by the configured kernel; per-vertex sums are normalized by total
// weight. Vertices no point reaches keep zero features. The result has one
// row per mesh vertex.
func MapPointFeaturesToMesh(m *Mesh, points [][3]float64, features [][]float64, opts MapOptions) ([][]float64, error) {
	if len(points) != len(features) {
		return nil, errors.ShapeMismatch("points and features differ in length")
	}
	if opts.Offset != nil && len(opts.Offset) != len(points) {
		return nil, errors.ShapeMismatch("points and offsets differ in length")
	}
	width := 0
	for i, row := range features {
		if i == 0 {
			width = len(row)
		} else if len(row) != width {
			return nil, errors.ShapeMismatch("feature rows differ in width")
		}
	}
	if !opts.Mode.IsValid() {
		return nil, errors.UnsupportedOption("map", string(opts.Mode))
	}
	if opts.DistanceCutoff <= 0 {
		return nil, errors.InvalidParameter("distance cutoff must be positive")
	}
	kernel, err := weightKernel(opts)
	if err != nil {
		return nil, err
	}

	accum := make([][]float64, m.VertexCount())
	for i := range accum {
		accum[i] = make([]float64, width)
	}
	weights := make([]float64, m.VertexCount())

	if opts.ClipValues {
		clipToStdBand(accum, clipValuesStdBand)
	}

	for i, p := range points {
		offset := 0.0
		if opts.Offset != nil {
			offset = opts.Offset[i]
		}
		var targets []int
		switch opts.Mode {
		case MapNearest:
			v, _ := m.NearestVertex(p)
			if v >= 0 {
				targets = []int{v}
			}
		default:
			targets = m.VerticesInBall(p, opts.DistanceCutoff+offset)
		}
		for _, v := range targets {
			w := kernel(dist(p, m.Vertex(v)), offset)
			for k := 0; k < width; k++ {
				accum[v][k] += w * features[i][k]
			}
			weights[v] += w
		}
	}

	for v := range accum {
		w := weights[v]
		if w == 0 {
			w = 1
		}
		for k := 0; k < width; k++ {
			accum[v][k] /= w
		}
	}

	if opts.LaplaceSmooth {
		iterations := opts.SmoothIterations
		if iterations <= 0 {
			iterations = 1
		}
		accum = Smooth(m, accum, iterations)
	}
	return accum, nil
}
