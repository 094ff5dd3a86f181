package training

import (
	"math"
	"math/rand"

	"github.com/bindscape/meshbind/pkg/errors"
)

// Parameters is the flat trainable-parameter store of a model. The optimizer
// mutates Data in place; Grad is accumulated by Backward and cleared by the
// trainer between steps.
type Parameters struct {
	Data []float64
	Grad []float64
}

func newParameters(n int) *Parameters {
	return &Parameters{Data: make([]float64, n), Grad: make([]float64, n)}
}

// ZeroGrad clears the accumulated gradients.
func (p *Parameters) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Snapshot returns a deep copy of the parameter values.
func (p *Parameters) Snapshot() []float64 {
	return append([]float64(nil), p.Data...)
}

// Load replaces the parameter values with a snapshot.
func (p *Parameters) Load(values []float64) error {
	if len(values) != len(p.Data) {
		return errors.ShapeMismatch("parameter snapshot has wrong length")
	}
	copy(p.Data, values)
	return nil
}

// Model is a trainable per-vertex classifier over batched surface graphs.
// Forward caches whatever Backward needs; the trainer guarantees the calls
// alternate on the same batch.
type Model interface {
	Name() string

	// Forward returns per-vertex logits, one row per batch row, one column
	// per class.
	Forward(b *Batch) [][]float64

	// Backward accumulates parameter gradients from the loss gradient with
	// respect to the logits of the latest Forward call.
	Backward(b *Batch, gradLogits [][]float64)

	Parameters() *Parameters

	// SetTraining toggles training mode (stochastic regularization on) versus
	// inference mode.
	SetTraining(training bool)
}

// ModelConfig selects and sizes a model from the registry.
type ModelConfig struct {
	Name      string  `mapstructure:"name"`
	InputDim  int     `mapstructure:"input_dim"`
	HiddenDim int     `mapstructure:"hidden_dim"`
	Classes   int     `mapstructure:"classes"`
	Dropout   float64 `mapstructure:"dropout"`
	Seed      int64   `mapstructure:"seed"`
}

func (c ModelConfig) validate() error {
	if c.InputDim <= 0 {
		return errors.InvalidParameter("model input_dim must be positive")
	}
	if c.HiddenDim <= 0 {
		return errors.InvalidParameter("model hidden_dim must be positive")
	}
	if c.Classes < 2 {
		return errors.InvalidParameter("model needs at least two classes")
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.InvalidParameter("model dropout must be in [0,1)")
	}
	return nil
}

// ModelBuilder constructs a model from its configuration.
type ModelBuilder func(cfg ModelConfig) (Model, error)

var modelRegistry = map[string]ModelBuilder{
	"pointnet-lite": newPointNetLite,
	"surface-gcn":   newSurfaceGCN,
}

// RegisterModel adds a builder to the registry, replacing any previous entry
// under the same name.
func RegisterModel(name string, builder ModelBuilder) {
	modelRegistry[name] = builder
}

// NewModel builds the named model. Unknown names fail fast.
func NewModel(cfg ModelConfig) (Model, error) {
	builder, ok := modelRegistry[cfg.Name]
	if !ok {
		return nil, errors.UnsupportedOption("model", cfg.Name)
	}
	return builder(cfg)
}

// ModelNames returns the registered model names.
func ModelNames() []string {
	out := make([]string, 0, len(modelRegistry))
	for name := range modelRegistry {
		out = append(out, name)
	}
	return out
}

// linear is a dense layer whose weights live in a shared flat parameter
// store: W is row-major (out x in) at wOff, the bias at bOff.
type linear struct {
	in, out    int
	wOff, bOff int
	params     *Parameters

	input [][]float64
}

func (l *linear) w(o, i int) float64 { return l.params.Data[l.wOff+o*l.in+i] }
func (l *linear) bias(o int) float64 { return l.params.Data[l.bOff+o] }
func (l *linear) gradW(o, i int) *float64 { return &l.params.Grad[l.wOff+o*l.in+i] }
func (l *linear) gradB(o int) *float64 { return &l.params.Grad[l.bOff+o] }

func (l *linear) forward(x [][]float64) [][]float64 {
	l.input = x
	out := make([][]float64, len(x))
	for r, row := range x {
		y := make([]float64, l.out)
		for o := 0; o < l.out; o++ {
			sum := l.bias(o)
			for i := 0; i < l.in; i++ {
				sum += l.w(o, i) * row[i]
			}
			y[o] = sum
		}
		out[r] = y
	}
	return out
}

func (l *linear) backward(grad [][]float64) [][]float64 {
	dx := make([][]float64, len(grad))
	for r, g := range grad {
		row := l.input[r]
		d := make([]float64, l.in)
		for o := 0; o < l.out; o++ {
			*l.gradB(o) += g[o]
			for i := 0; i < l.in; i++ {
				*l.gradW(o, i) += g[o] * row[i]
				d[i] += g[o] * l.w(o, i)
			}
		}
		dx[r] = d
	}
	return dx
}

// relu with cached activation signs.
type relu struct {
	active [][]bool
}

func (r *relu) forward(x [][]float64) [][]float64 {
	r.active = make([][]bool, len(x))
	out := make([][]float64, len(x))
	for i, row := range x {
		a := make([]bool, len(row))
		y := make([]float64, len(row))
		for j, v := range row {
			if v > 0 {
				a[j] = true
				y[j] = v
			}
		}
		r.active[i] = a
		out[i] = y
	}
	return out
}

func (r *relu) backward(grad [][]float64) [][]float64 {
	out := make([][]float64, len(grad))
	for i, g := range grad {
		d := make([]float64, len(g))
		for j, v := range g {
			if r.active[i][j] {
				d[j] = v
			}
		}
		out[i] = d
	}
	return out
}

// dropout zeroes activations with rate p during training, scaling survivors
// by 1/(1-p).
type dropout struct {
	rate     float64
	rng      *rand.Rand
	training bool
	kept     [][]bool
}

func (d *dropout) forward(x [][]float64) [][]float64 {
	if !d.training || d.rate == 0 {
		d.kept = nil
		return x
	}
	scale := 1 / (1 - d.rate)
	d.kept = make([][]bool, len(x))
	out := make([][]float64, len(x))
	for i, row := range x {
		k := make([]bool, len(row))
		y := make([]float64, len(row))
		for j, v := range row {
			if d.rng.Float64() >= d.rate {
				k[j] = true
				y[j] = v * scale
			}
		}
		d.kept[i] = k
		out[i] = y
	}
	return out
}

func (d *dropout) backward(grad [][]float64) [][]float64 {
	if d.kept == nil {
		return grad
	}
	scale := 1 / (1 - d.rate)
	out := make([][]float64, len(grad))
	for i, g := range grad {
		dd := make([]float64, len(g))
		for j, v := range g {
			if d.kept[i][j] {
				dd[j] = v * scale
			}
		}
		out[i] = dd
	}
	return out
}

// initWeights fills a layer's weight block with scaled uniform noise and
// zero biases.
func initWeights(l *linear, rng *rand.Rand) {
	bound := math.Sqrt(6.0 / float64(l.in+l.out))
	for o := 0; o < l.out; o++ {
		for i := 0; i < l.in; i++ {
			l.params.Data[l.wOff+o*l.in+i] = (rng.Float64()*2 - 1) * bound
		}
	}
}

// pointNetLite is a per-vertex multilayer perceptron: each vertex is
// classified from its own features alone.
type pointNetLite struct {
	cfg    ModelConfig
	params *Parameters

	l1   *linear
	act  *relu
	drop *dropout
	l2   *linear
}

var _ Model = (*pointNetLite)(nil)

func newPointNetLite(cfg ModelConfig) (Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n1 := cfg.HiddenDim*cfg.InputDim + cfg.HiddenDim
	n2 := cfg.Classes*cfg.HiddenDim + cfg.Classes
	params := newParameters(n1 + n2)
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &pointNetLite{
		cfg:    cfg,
		params: params,
		l1:     &linear{in: cfg.InputDim, out: cfg.HiddenDim, wOff: 0, bOff: cfg.HiddenDim * cfg.InputDim, params: params},
		act:    &relu{},
		drop:   &dropout{rate: cfg.Dropout, rng: rng},
		l2:     &linear{in: cfg.HiddenDim, out: cfg.Classes, wOff: n1, bOff: n1 + cfg.Classes*cfg.HiddenDim, params: params},
	}
	initWeights(m.l1, rng)
	initWeights(m.l2, rng)
	return m, nil
}

func (m *pointNetLite) Name() string            { return m.cfg.Name }
func (m *pointNetLite) Parameters() *Parameters { return m.params }
func (m *pointNetLite) SetTraining(t bool)      { m.drop.training = t }

func (m *pointNetLite) Forward(b *Batch) [][]float64 {
	h := m.l1.forward(b.Features)
	h = m.act.forward(h)
	h = m.drop.forward(h)
	return m.l2.forward(h)
}

func (m *pointNetLite) Backward(_ *Batch, grad [][]float64) {
	g := m.l2.backward(grad)
	g = m.drop.backward(g)
	g = m.act.backward(g)
	m.l1.backward(g)
}

// surfaceGCN stacks two graph-convolution blocks (mean aggregation over edge
// neighbors, then a dense layer with ReLU) and a linear classifier head.
type surfaceGCN struct {
	cfg    ModelConfig
	params *Parameters

	l1   *linear
	a1   *relu
	l2   *linear
	a2   *relu
	drop *dropout
	head *linear

	// caches for the aggregation backward passes
	agg1, agg2 *aggregation
}

var _ Model = (*surfaceGCN)(nil)

func newSurfaceGCN(cfg ModelConfig) (Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n1 := cfg.HiddenDim*cfg.InputDim + cfg.HiddenDim
	n2 := cfg.HiddenDim*cfg.HiddenDim + cfg.HiddenDim
	n3 := cfg.Classes*cfg.HiddenDim + cfg.Classes
	params := newParameters(n1 + n2 + n3)
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &surfaceGCN{
		cfg:    cfg,
		params: params,
		l1:     &linear{in: cfg.InputDim, out: cfg.HiddenDim, wOff: 0, bOff: cfg.HiddenDim * cfg.InputDim, params: params},
		a1:     &relu{},
		l2:     &linear{in: cfg.HiddenDim, out: cfg.HiddenDim, wOff: n1, bOff: n1 + cfg.HiddenDim*cfg.HiddenDim, params: params},
		a2:     &relu{},
		drop:   &dropout{rate: cfg.Dropout, rng: rng},
		head:   &linear{in: cfg.HiddenDim, out: cfg.Classes, wOff: n1 + n2, bOff: n1 + n2 + cfg.Classes*cfg.HiddenDim, params: params},
		agg1:   &aggregation{},
		agg2:   &aggregation{},
	}
	initWeights(m.l1, rng)
	initWeights(m.l2, rng)
	initWeights(m.head, rng)
	return m, nil
}

func (m *surfaceGCN) Name() string            { return m.cfg.Name }
func (m *surfaceGCN) Parameters() *Parameters { return m.params }
func (m *surfaceGCN) SetTraining(t bool)      { m.drop.training = t }

func (m *surfaceGCN) Forward(b *Batch) [][]float64 {
	h := m.agg1.forward(b, b.Features)
	h = m.l1.forward(h)
	h = m.a1.forward(h)
	h = m.agg2.forward(b, h)
	h = m.l2.forward(h)
	h = m.a2.forward(h)
	h = m.drop.forward(h)
	return m.head.forward(h)
}

func (m *surfaceGCN) Backward(b *Batch, grad [][]float64) {
	g := m.head.backward(grad)
	g = m.drop.backward(g)
	g = m.a2.backward(g)
	g = m.l2.backward(g)
	g = m.agg2.backward(b, g)
	g = m.a1.backward(g)
	g = m.l1.backward(g)
	m.agg1.backward(b, g)
}

// aggregation is mean neighborhood pooling: each vertex averages itself and
// its edge neighbors. The operation is symmetric in value and gradient up to
// the per-vertex normalization.
type aggregation struct {
	norm []float64
}

func (a *aggregation) forward(b *Batch, x [][]float64) [][]float64 {
	n := len(x)
	a.norm = make([]float64, n)
	out := make([][]float64, n)
	width := 0
	if n > 0 {
		width = len(x[0])
	}
	for v := range x {
		a.norm[v] = 1
		out[v] = append([]float64(nil), x[v]...)
	}
	for _, e := range b.Edges {
		for k := 0; k < width; k++ {
			out[e[0]][k] += x[e[1]][k]
		}
		a.norm[e[0]]++
	}
	for v := range out {
		for k := range out[v] {
			out[v][k] /= a.norm[v]
		}
	}
	return out
}

func (a *aggregation) backward(b *Batch, grad [][]float64) [][]float64 {
	n := len(grad)
	out := make([][]float64, n)
	for v := range grad {
		out[v] = make([]float64, len(grad[v]))
		for k := range grad[v] {
			out[v][k] = grad[v][k] / a.norm[v]
		}
	}
	for _, e := range b.Edges {
		for k := range grad[e[0]] {
			out[e[1]][k] += grad[e[0]][k] / a.norm[e[0]]
		}
	}
	return out
}
