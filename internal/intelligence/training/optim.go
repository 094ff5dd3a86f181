package training

import (
	"math"

	"github.com/bindscape/meshbind/pkg/errors"
)

// Optimizer updates model parameters from accumulated gradients. LearningRate
// and SetLearningRate expose the base rate to schedulers.
type Optimizer interface {
	Name() string
	Step(p *Parameters)
	LearningRate() float64
	SetLearningRate(lr float64)

	// State returns the optimizer's internal buffers for checkpointing;
	// LoadState restores them.
	State() OptimizerState
	LoadState(s OptimizerState) error
}

// OptimizerState is the serializable internal state of an optimizer.
type OptimizerState struct {
	Name         string
	LearningRate float64
	StepCount    int
	Buffers      map[string][]float64
}

// OptimizerConfig selects and parameterizes an optimizer.
type OptimizerConfig struct {
	Name         string  `mapstructure:"name"`
	LearningRate float64 `mapstructure:"lr"`
	Momentum     float64 `mapstructure:"momentum"`
	WeightDecay  float64 `mapstructure:"weight_decay"`
	Beta1        float64 `mapstructure:"beta1"`
	Beta2        float64 `mapstructure:"beta2"`
	Epsilon      float64 `mapstructure:"epsilon"`
}

// OptimizerBuilder constructs an optimizer from its configuration.
type OptimizerBuilder func(cfg OptimizerConfig) (Optimizer, error)

var optimizerRegistry = map[string]OptimizerBuilder{
	"sgd":  newSGD,
	"adam": newAdam,
}

// RegisterOptimizer adds a builder to the registry.
func RegisterOptimizer(name string, builder OptimizerBuilder) {
	optimizerRegistry[name] = builder
}

// NewOptimizer builds the named optimizer. Unknown names fail fast.
func NewOptimizer(cfg OptimizerConfig) (Optimizer, error) {
	builder, ok := optimizerRegistry[cfg.Name]
	if !ok {
		return nil, errors.UnsupportedOption("optimizer", cfg.Name)
	}
	if cfg.LearningRate <= 0 {
		return nil, errors.InvalidParameter("learning rate must be positive")
	}
	return builder(cfg)
}

type sgd struct {
	lr          float64
	momentum    float64
	weightDecay float64
	velocity    []float64
	steps       int
}

var _ Optimizer = (*sgd)(nil)

func newSGD(cfg OptimizerConfig) (Optimizer, error) {
	if cfg.Momentum < 0 || cfg.Momentum >= 1 {
		return nil, errors.InvalidParameter("momentum must be in [0,1)")
	}
	return &sgd{lr: cfg.LearningRate, momentum: cfg.Momentum, weightDecay: cfg.WeightDecay}, nil
}

func (o *sgd) Name() string             { return "sgd" }
func (o *sgd) LearningRate() float64    { return o.lr }
func (o *sgd) SetLearningRate(lr float64) { o.lr = lr }

func (o *sgd) Step(p *Parameters) {
	if o.velocity == nil {
		o.velocity = make([]float64, len(p.Data))
	}
	for i := range p.Data {
		g := p.Grad[i] + o.weightDecay*p.Data[i]
		o.velocity[i] = o.momentum*o.velocity[i] + g
		p.Data[i] -= o.lr * o.velocity[i]
	}
	o.steps++
}

func (o *sgd) State() OptimizerState {
	return OptimizerState{
		Name:         "sgd",
		LearningRate: o.lr,
		StepCount:    o.steps,
		Buffers: map[string][]float64{
			"velocity": append([]float64(nil), o.velocity...),
		},
	}
}

func (o *sgd) LoadState(s OptimizerState) error {
	if s.Name != "sgd" {
		return errors.InvalidParameter("optimizer state belongs to " + s.Name)
	}
	o.lr = s.LearningRate
	o.steps = s.StepCount
	o.velocity = append([]float64(nil), s.Buffers["velocity"]...)
	return nil
}

type adam struct {
	lr           float64
	beta1, beta2 float64
	eps          float64
	weightDecay  float64
	m, v         []float64
	steps        int
}

var _ Optimizer = (*adam)(nil)

func newAdam(cfg OptimizerConfig) (Optimizer, error) {
	beta1, beta2, eps := cfg.Beta1, cfg.Beta2, cfg.Epsilon
	if beta1 == 0 {
		beta1 = 0.9
	}
	if beta2 == 0 {
		beta2 = 0.999
	}
	if eps == 0 {
		eps = 1e-8
	}
	if beta1 < 0 || beta1 >= 1 || beta2 < 0 || beta2 >= 1 {
		return nil, errors.InvalidParameter("adam betas must be in [0,1)")
	}
	return &adam{lr: cfg.LearningRate, beta1: beta1, beta2: beta2, eps: eps, weightDecay: cfg.WeightDecay}, nil
}

func (o *adam) Name() string             { return "adam" }
func (o *adam) LearningRate() float64    { return o.lr }
func (o *adam) SetLearningRate(lr float64) { o.lr = lr }

func (o *adam) Step(p *Parameters) {
	if o.m == nil {
		o.m = make([]float64, len(p.Data))
		o.v = make([]float64, len(p.Data))
	}
	o.steps++
	bc1 := 1 - math.Pow(o.beta1, float64(o.steps))
	bc2 := 1 - math.Pow(o.beta2, float64(o.steps))
	for i := range p.Data {
		g := p.Grad[i] + o.weightDecay*p.Data[i]
		o.m[i] = o.beta1*o.m[i] + (1-o.beta1)*g
		o.v[i] = o.beta2*o.v[i] + (1-o.beta2)*g*g
		mHat := o.m[i] / bc1
		vHat := o.v[i] / bc2
		p.Data[i] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
	}
}

func (o *adam) State() OptimizerState {
	return OptimizerState{
		Name:         "adam",
		LearningRate: o.lr,
		StepCount:    o.steps,
		Buffers: map[string][]float64{
			"m": append([]float64(nil), o.m...),
			"v": append([]float64(nil), o.v...),
		},
	}
}

func (o *adam) LoadState(s OptimizerState) error {
	if s.Name != "adam" {
		return errors.InvalidParameter("optimizer state belongs to " + s.Name)
	}
	o.lr = s.LearningRate
	o.steps = s.StepCount
	o.m = append([]float64(nil), s.Buffers["m"]...)
	o.v = append([]float64(nil), s.Buffers["v"]...)
	return nil
}

// Cadence says when a scheduler expects to be stepped.
type Cadence int

const (
	// PerEpoch schedulers step once at the end of every epoch.
	PerEpoch Cadence = iota
	// PerBatch schedulers step after every optimizer step.
	PerBatch
)

// Scheduler adjusts the optimizer's learning rate over the course of
// training. The trainer calls Step at the scheduler's cadence.
type Scheduler interface {
	Name() string
	Cadence() Cadence
	Step()

	State() SchedulerState
	LoadState(s SchedulerState) error
}

// SchedulerState is the serializable progress of a scheduler.
type SchedulerState struct {
	Name      string
	StepCount int
}

// SchedulerConfig selects and parameterizes a scheduler.
type SchedulerConfig struct {
	Name string `mapstructure:"name"`
	// Gamma is the decay factor for exponential and step schedules.
	Gamma float64 `mapstructure:"gamma"`
	// StepSize is the epoch period of the step schedule.
	StepSize int `mapstructure:"step_size"`
	// MaxLR and TotalSteps shape the one-cycle schedule.
	MaxLR      float64 `mapstructure:"max_lr"`
	TotalSteps int     `mapstructure:"total_steps"`
}

// SchedulerBuilder constructs a scheduler bound to an optimizer.
type SchedulerBuilder func(cfg SchedulerConfig, opt Optimizer) (Scheduler, error)

var schedulerRegistry = map[string]SchedulerBuilder{
	"none":        newNoneScheduler,
	"exponential": newExponentialScheduler,
	"step":        newStepScheduler,
	"onecycle":    newOneCycleScheduler,
}

// RegisterScheduler adds a builder to the registry.
func RegisterScheduler(name string, builder SchedulerBuilder) {
	schedulerRegistry[name] = builder
}

// NewScheduler builds the named scheduler. Unknown names fail fast; an empty
// name selects "none".
func NewScheduler(cfg SchedulerConfig, opt Optimizer) (Scheduler, error) {
	name := cfg.Name
	if name == "" {
		name = "none"
	}
	builder, ok := schedulerRegistry[name]
	if !ok {
		return nil, errors.UnsupportedOption("scheduler", cfg.Name)
	}
	return builder(cfg, opt)
}

type noneScheduler struct{ steps int }

func newNoneScheduler(SchedulerConfig, Optimizer) (Scheduler, error) {
	return &noneScheduler{}, nil
}

func (s *noneScheduler) Name() string     { return "none" }
func (s *noneScheduler) Cadence() Cadence { return PerEpoch }
func (s *noneScheduler) Step()            { s.steps++ }
func (s *noneScheduler) State() SchedulerState {
	return SchedulerState{Name: "none", StepCount: s.steps}
}
func (s *noneScheduler) LoadState(st SchedulerState) error {
	s.steps = st.StepCount
	return nil
}

// exponentialScheduler multiplies the learning rate by gamma each epoch.
type exponentialScheduler struct {
	opt   Optimizer
	gamma float64
	steps int
}

func newExponentialScheduler(cfg SchedulerConfig, opt Optimizer) (Scheduler, error) {
	if cfg.Gamma <= 0 || cfg.Gamma > 1 {
		return nil, errors.InvalidParameter("exponential gamma must be in (0,1]")
	}
	return &exponentialScheduler{opt: opt, gamma: cfg.Gamma}, nil
}

func (s *exponentialScheduler) Name() string     { return "exponential" }
func (s *exponentialScheduler) Cadence() Cadence { return PerEpoch }
func (s *exponentialScheduler) Step() {
	s.steps++
	s.opt.SetLearningRate(s.opt.LearningRate() * s.gamma)
}
func (s *exponentialScheduler) State() SchedulerState {
	return SchedulerState{Name: "exponential", StepCount: s.steps}
}
func (s *exponentialScheduler) LoadState(st SchedulerState) error {
	s.steps = st.StepCount
	return nil
}

// stepScheduler multiplies the learning rate by gamma every StepSize epochs.
type stepScheduler struct {
	opt      Optimizer
	gamma    float64
	stepSize int
	steps    int
}

func newStepScheduler(cfg SchedulerConfig, opt Optimizer) (Scheduler, error) {
	if cfg.Gamma <= 0 || cfg.Gamma > 1 {
		return nil, errors.InvalidParameter("step gamma must be in (0,1]")
	}
	if cfg.StepSize <= 0 {
		return nil, errors.InvalidParameter("step size must be positive")
	}
	return &stepScheduler{opt: opt, gamma: cfg.Gamma, stepSize: cfg.StepSize}, nil
}

func (s *stepScheduler) Name() string     { return "step" }
func (s *stepScheduler) Cadence() Cadence { return PerEpoch }
func (s *stepScheduler) Step() {
	s.steps++
	if s.steps%s.stepSize == 0 {
		s.opt.SetLearningRate(s.opt.LearningRate() * s.gamma)
	}
}
func (s *stepScheduler) State() SchedulerState {
	return SchedulerState{Name: "step", StepCount: s.steps}
}
func (s *stepScheduler) LoadState(st SchedulerState) error {
	s.steps = st.StepCount
	return nil
}

// oneCycleScheduler ramps the learning rate linearly up to MaxLR for the
// first half of TotalSteps and back down for the second half. It steps per
// batch.
type oneCycleScheduler struct {
	opt    Optimizer
	baseLR float64
	maxLR  float64
	total  int
	steps  int
}

func newOneCycleScheduler(cfg SchedulerConfig, opt Optimizer) (Scheduler, error) {
	if cfg.MaxLR <= 0 {
		return nil, errors.InvalidParameter("one-cycle max_lr must be positive")
	}
	if cfg.TotalSteps <= 0 {
		return nil, errors.InvalidParameter("one-cycle total_steps must be positive")
	}
	return &oneCycleScheduler{opt: opt, baseLR: opt.LearningRate(), maxLR: cfg.MaxLR, total: cfg.TotalSteps}, nil
}

func (s *oneCycleScheduler) Name() string     { return "onecycle" }
func (s *oneCycleScheduler) Cadence() Cadence { return PerBatch }

func (s *oneCycleScheduler) Step() {
	s.steps++
	half := float64(s.total) / 2
	pos := float64(s.steps)
	var lr float64
	switch {
	case pos >= float64(s.total):
		lr = s.baseLR
	case pos <= half:
		lr = s.baseLR + (s.maxLR-s.baseLR)*(pos/half)
	default:
		lr = s.maxLR - (s.maxLR-s.baseLR)*((pos-half)/half)
	}
	s.opt.SetLearningRate(lr)
}

func (s *oneCycleScheduler) State() SchedulerState {
	return SchedulerState{Name: "onecycle", StepCount: s.steps}
}

func (s *oneCycleScheduler) LoadState(st SchedulerState) error {
	s.steps = st.StepCount
	return nil
}
