package opt

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"wavepick/internal/wave"
)

// ErrNoFeasibleSolution reports that every construction strategy failed.
// Solve returns it inside Result, not as its error.
var ErrNoFeasibleSolution = errors.New("no feasible solution found")

// Status summarizes a solve outcome.
type Status string

const (
	StatusFeasible   Status = "feasible"
	StatusNoFeasible Status = "no_feasible"
)

// Stop reasons reported in Metrics.
const (
	StopMaxIterations = "max_iterations"
	StopStagnation    = "stagnation"
	StopDeadline      = "deadline"
	StopNoFeasible    = "no_feasible"
)

const (
	snapshotEvery   = 50
	fallbackAlpha   = 0.5
	stagnationSlope = 0.1
)

type Metrics struct {
	Iterations            int               `json:"iterations"`
	Improvements          int               `json:"improvements"`
	BestUpdates           int               `json:"bestUpdates"`
	TabuRejections        int               `json:"tabuRejections"`
	PerturbationFallbacks int               `json:"perturbationFallbacks"`
	VNDPasses             int               `json:"vndPasses"`
	Inconsistencies       int               `json:"inconsistencies"`
	Construction          string            `json:"construction"`
	BatchStrategy         string            `json:"batchStrategy,omitempty"`
	BatchAttempts         []StrategyAttempt `json:"batchAttempts,omitempty"`
	InitialObjective      float64           `json:"initialObjective"`
	BestObjective         float64           `json:"bestObjective"`
	StopReason            string            `json:"stopReason"`
	Elapsed               time.Duration     `json:"elapsedNs"`
	Snapshots             []Snapshot        `json:"snapshots,omitempty"`
}

// Snapshot samples the search state every few iterations.
type Snapshot struct {
	Iteration          int     `json:"iteration"`
	Current            float64 `json:"current"`
	Best               float64 `json:"best"`
	Intensity          float64 `json:"intensity"`
	WithoutImprovement int     `json:"withoutImprovement"`
}

// Result is what Solve hands back. Solution is always set, possibly empty.
type Result struct {
	Solution wave.Solution `json:"solution"`
	Status   Status        `json:"status"`
	Err      error         `json:"-"`
	Metrics  Metrics       `json:"metrics"`
}

// Progress is passed to the observer on every new best.
type Progress struct {
	Iteration int
	Best      wave.Solution
	Elapsed   time.Duration
}

// Engine runs ILS over one instance. It is not safe for concurrent use;
// run one Engine per goroutine.
type Engine struct {
	*kit
	cfg      Config
	rng      *rand.Rand
	clock    Clock
	deadline time.Time
	started  time.Time

	accel     *AccelerationContext
	batch     BatchEvaluator
	fallbacks []ConstructorFactory
	grasp     *GRASP
	observer  func(Progress)

	supply  []int
	demand  []int
	metrics Metrics
}

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithAcceleration injects the process-wide acceleration context.
func WithAcceleration(a *AccelerationContext) Option { return func(e *Engine) { e.accel = a } }

// WithFallback appends a constructor tried after GRASP.
func WithFallback(f ConstructorFactory) Option {
	return func(e *Engine) { e.fallbacks = append(e.fallbacks, f) }
}

// WithObserver registers a callback fired on every new best solution.
func WithObserver(fn func(Progress)) Option { return func(e *Engine) { e.observer = fn } }

func WithLogger(l *logrus.Entry) Option { return func(e *Engine) { e.kit.log = l } }

// NewEngine validates inputs and prepares an engine. A zero deadline means
// the search is bounded by iteration counts only.
func NewEngine(inst *wave.Instance, cfg Config, deadline time.Time, opts ...Option) (*Engine, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		kit:      newKit(inst, logrus.WithField("prefix", "opt")),
		cfg:      cfg,
		rng:      rngFromSeed(cfg.Seed),
		clock:    SystemClock,
		deadline: deadline,
		supply:   make([]int, inst.NItems),
		demand:   make([]int, inst.NItems),
	}
	for _, o := range opts {
		o(e)
	}
	if len(e.fallbacks) == 0 {
		e.fallbacks = []ConstructorFactory{NewGreedyDensity}
	}
	e.grasp = newGRASP(e.kit, e.rng, cfg.RCLSize)
	if cfg.UseBatchEvaluation {
		if e.accel == nil {
			e.accel = NewAccelerationContext(1)
		}
		e.batch, e.metrics.BatchAttempts = e.accel.Evaluator(inst, e.log)
		e.metrics.BatchStrategy = e.batch.Name()
	}
	return e, nil
}

func (e *Engine) expired() bool {
	return Remaining(e.clock, e.deadline) <= 0
}

// Solve runs the full search. The returned error is non-nil only for an
// invalid instance or config.
func Solve(inst *wave.Instance, cfg Config, deadline time.Time, opts ...Option) (Result, error) {
	e, err := NewEngine(inst, cfg, deadline, opts...)
	if err != nil {
		return Result{}, err
	}
	return e.Run(), nil
}

// Run executes construction followed by the ILS loop and returns the best
// wave found.
func (e *Engine) Run() Result {
	e.started = e.clock.Now()
	e.metrics = Metrics{BatchStrategy: e.metrics.BatchStrategy, BatchAttempts: e.metrics.BatchAttempts}
	log := e.log.WithField("orders", e.inst.NOrders).WithField("aisles", e.inst.NAisles)

	chain := []Constructor{e.grasp}
	for _, f := range e.fallbacks {
		chain = append(chain, f(e.inst, e.rng, e.log))
	}
	initial, name, ok := constructChain(e.kit, chain, e.cfg.Alpha)
	e.metrics.Construction = name
	if !ok {
		log.Warn("no construction strategy produced a feasible wave")
		return e.finish(Result{Solution: initial, Status: StatusNoFeasible, Err: ErrNoFeasibleSolution}, StopNoFeasible)
	}
	e.metrics.InitialObjective = initial.Objective

	cur := e.vnd(initial, nil)
	best := cur
	e.notify(best)
	tabu := newTabuMemory(e.cfg.TabuTenure, e.cfg.SimilarityThreshold)
	tabu.add(cur.Orders)

	stop := StopMaxIterations
	noImprove := 0
	stalled := func() bool {
		noImprove++
		return noImprove >= e.cfg.MaxIterationsWithoutImprovement
	}
	for it := 0; it < e.cfg.MaxIterations; it++ {
		if e.expired() {
			stop = StopDeadline
			break
		}
		e.metrics.Iterations++
		intensity := math.Min(1, e.cfg.PerturbationStrength*(1+stagnationSlope*float64(noImprove)))
		if e.metrics.Iterations%snapshotEvery == 0 {
			e.metrics.Snapshots = append(e.metrics.Snapshots, Snapshot{
				Iteration: e.metrics.Iterations, Current: cur.Objective, Best: best.Objective,
				Intensity: intensity, WithoutImprovement: noImprove,
			})
		}

		cand, ok := e.perturb(cur, intensity)
		if !ok {
			if stalled() {
				stop = StopStagnation
				break
			}
			continue
		}
		if tabu.rejects(cand.Orders) {
			e.metrics.TabuRejections++
			if stalled() {
				stop = StopStagnation
				break
			}
			continue
		}

		next := e.vnd(cand, nil)
		if better(next, cur) {
			cur = next
			tabu.add(cur.Orders)
			noImprove = 0
			e.metrics.Improvements++
			if better(cur, best) {
				best = cur
				e.metrics.BestUpdates++
				e.notify(best)
				log.WithField("iteration", e.metrics.Iterations).
					WithField("objective", best.Objective).
					Debug("new best wave")
			}
			continue
		}
		if stalled() {
			stop = StopStagnation
			break
		}
	}
	if stop == StopMaxIterations && e.expired() {
		stop = StopDeadline
	}
	log.WithField("objective", best.Objective).
		WithField("iterations", e.metrics.Iterations).
		WithField("stop", stop).
		Info("search finished")
	return e.finish(Result{Solution: best.Clone(), Status: StatusFeasible}, stop)
}

func (e *Engine) finish(r Result, stop string) Result {
	e.metrics.StopReason = stop
	e.metrics.BestObjective = r.Solution.Objective
	e.metrics.Inconsistencies = e.kit.inconsistencies
	e.metrics.Elapsed = e.clock.Now().Sub(e.started)
	r.Metrics = e.metrics
	return r
}

func (e *Engine) notify(best wave.Solution) {
	if e.observer == nil {
		return
	}
	e.observer(Progress{Iteration: e.metrics.Iterations, Best: best.Clone(), Elapsed: e.clock.Now().Sub(e.started)})
}

// perturb produces one feasible candidate from cur, through the batch
// evaluator when enabled. An infeasible perturbation is replaced by a fresh
// GRASP wave, repaired if needed.
func (e *Engine) perturb(cur wave.Solution, intensity float64) (wave.Solution, bool) {
	var cand wave.Solution
	if e.batch != nil {
		cand = e.perturbBatch(cur, intensity)
	} else {
		cand = e.build(e.perturbOrders(cur.Orders, intensity))
	}
	if cand.Feasible {
		return cand, true
	}
	e.metrics.PerturbationFallbacks++
	if e.expired() {
		return cand, false
	}
	cand = e.grasp.Construct(fallbackAlpha)
	if !cand.Feasible {
		fixed, ok := e.repair(cand)
		if !ok {
			return cand, false
		}
		cand = fixed
	}
	return cand, true
}

// perturbOrders removes max(1, ceil(intensity*|selected|)) random selected
// orders, adds up to as many random unselected ones that fit under UB, then
// keeps adding until LB is met.
func (e *Engine) perturbOrders(selected []int, intensity float64) []int {
	inst := e.inst
	n := max(1, int(math.Ceil(intensity*float64(len(selected)))))

	sel := append([]int(nil), selected...)
	nRemove := min(n, len(sel))
	removed := e.sampleInto(sel, nRemove)
	keep := wave.MaskOf(inst.NOrders, sel[nRemove:])
	units := 0
	keep.ForEach(func(o int) { units += inst.OrderUnits[o] })

	dropped := wave.MaskOf(inst.NOrders, removed)
	perm := e.rng.Perm(inst.NOrders)
	added := 0
	for _, o := range perm {
		if added >= n {
			break
		}
		if keep.Has(o) || dropped.Has(o) || !e.servable[o] {
			continue
		}
		if units+inst.OrderUnits[o] <= inst.UB {
			keep.Set(o)
			units += inst.OrderUnits[o]
			added++
		}
	}
	for _, o := range perm {
		if units >= inst.LB {
			break
		}
		if keep.Has(o) || !e.servable[o] {
			continue
		}
		if units+inst.OrderUnits[o] <= inst.UB {
			keep.Set(o)
			units += inst.OrderUnits[o]
		}
	}
	return keep.Indices()
}

// perturbBatch draws BatchSize perturbations in sequence and keeps the best
// by the batch evaluator. The draws do not depend on the strategy, so every
// strategy picks the same candidate.
func (e *Engine) perturbBatch(cur wave.Solution, intensity float64) wave.Solution {
	masks := make([]wave.Mask, e.cfg.BatchSize)
	for i := range masks {
		masks[i] = wave.MaskOf(e.inst.NOrders, e.perturbOrders(cur.Orders, intensity))
	}
	results, err := e.batch.EvaluateMasks(context.Background(), masks)
	if err != nil {
		e.log.WithError(err).Warn("batch evaluation failed")
		return wave.Solution{}
	}
	i := BestIndex(results)
	if i < 0 {
		return wave.Solution{Orders: masks[0].Indices()}
	}
	r := results[i]
	return wave.Solution{
		Orders:     masks[i].Indices(),
		Aisles:     r.Aisles.Indices(),
		TotalUnits: r.Units,
		Feasible:   r.Feasible,
		Objective:  r.Objective,
	}
}
