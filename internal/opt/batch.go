package opt

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wavepick/internal/wave"
)

// Strategy names accepted by AccelerationContext.
const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"
)

// ErrStrategyUnavailable is returned when a batch strategy cannot be built.
var ErrStrategyUnavailable = errors.New("batch strategy unavailable")

// BatchResult is the evaluation of one candidate order mask.
type BatchResult struct {
	Units     int
	Aisles    wave.Mask
	Feasible  bool
	Objective float64
}

// BatchEvaluator scores many candidate order masks against one instance.
// Every strategy returns identical results for identical input.
type BatchEvaluator interface {
	Name() string
	EvaluateMasks(ctx context.Context, masks []wave.Mask) ([]BatchResult, error)
}

// AccelerationContext is created once per process and injected into solves.
// Strategies are tried in order; the sequential strategy always succeeds.
type AccelerationContext struct {
	MaxWorkers int
	Strategies []string
}

// NewAccelerationContext defaults maxWorkers <= 0 to the CPU count.
func NewAccelerationContext(maxWorkers int) *AccelerationContext {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	return &AccelerationContext{
		MaxWorkers: maxWorkers,
		Strategies: []string{StrategyParallel, StrategySequential},
	}
}

// StrategyAttempt records why a strategy was or was not selected.
type StrategyAttempt struct {
	Strategy string `json:"strategy"`
	Selected bool   `json:"selected"`
	Reason   string `json:"reason,omitempty"`
}

// Evaluator returns the first strategy that builds for inst. The sequential
// strategy is appended when the list does not end in one.
func (a *AccelerationContext) Evaluator(inst *wave.Instance, log *logrus.Entry) (BatchEvaluator, []StrategyAttempt) {
	names := a.Strategies
	if len(names) == 0 || names[len(names)-1] != StrategySequential {
		names = append(append([]string(nil), names...), StrategySequential)
	}
	var attempts []StrategyAttempt
	for _, name := range names {
		be, err := a.build(name, inst)
		if err != nil {
			attempts = append(attempts, StrategyAttempt{Strategy: name, Reason: err.Error()})
			log.WithField("strategy", name).WithError(err).Info("batch strategy skipped")
			continue
		}
		attempts = append(attempts, StrategyAttempt{Strategy: name, Selected: true})
		log.WithField("strategy", name).Debug("batch strategy selected")
		return be, attempts
	}
	// unreachable: sequential never fails
	return newSequentialBatch(inst), attempts
}

func (a *AccelerationContext) build(name string, inst *wave.Instance) (BatchEvaluator, error) {
	switch name {
	case StrategySequential:
		return newSequentialBatch(inst), nil
	case StrategyParallel:
		if a.MaxWorkers < 2 {
			return nil, fmt.Errorf("%w: parallel needs at least 2 workers (have %d)", ErrStrategyUnavailable, a.MaxWorkers)
		}
		return newParallelBatch(inst, a.MaxWorkers), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrStrategyUnavailable, name)
	}
}

func toBatchResult(me wave.MaskEvaluation) BatchResult {
	return BatchResult{Units: me.Units, Aisles: me.Aisles, Feasible: me.Feasible, Objective: me.Objective}
}

type sequentialBatch struct {
	inc *wave.Incidence
	ws  *wave.Workspace
}

func newSequentialBatch(inst *wave.Instance) *sequentialBatch {
	inc := inst.Incidence()
	return &sequentialBatch{inc: inc, ws: inc.NewWorkspace()}
}

func (s *sequentialBatch) Name() string { return StrategySequential }

func (s *sequentialBatch) EvaluateMasks(ctx context.Context, masks []wave.Mask) ([]BatchResult, error) {
	out := make([]BatchResult, len(masks))
	for i, m := range masks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = toBatchResult(s.inc.EvaluateMask(s.ws, m))
	}
	return out, nil
}

// parallelBatch fans masks out over a bounded errgroup; each goroutine
// borrows its own workspace from the pool.
type parallelBatch struct {
	inc     *wave.Incidence
	workers int
	pool    sync.Pool
}

func newParallelBatch(inst *wave.Instance, workers int) *parallelBatch {
	inc := inst.Incidence()
	p := &parallelBatch{inc: inc, workers: workers}
	p.pool.New = func() any { return inc.NewWorkspace() }
	return p
}

func (p *parallelBatch) Name() string { return StrategyParallel }

func (p *parallelBatch) EvaluateMasks(ctx context.Context, masks []wave.Mask) ([]BatchResult, error) {
	out := make([]BatchResult, len(masks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range masks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ws := p.pool.Get().(*wave.Workspace)
			defer p.pool.Put(ws)
			out[i] = toBatchResult(p.inc.EvaluateMask(ws, masks[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// BestIndex returns the index of the feasible result with the highest
// objective, the lowest index on ties, or -1 when none is feasible.
func BestIndex(results []BatchResult) int {
	best := -1
	for i, r := range results {
		if !r.Feasible {
			continue
		}
		if best < 0 || r.Objective > results[best].Objective {
			best = i
		}
	}
	return best
}
