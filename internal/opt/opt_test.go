package opt

import (
	"context"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"wavepick/internal/wave"
)

func scenarioA(t *testing.T) *wave.Instance {
	t.Helper()
	inst, err := wave.NewInstance(2,
		[][]wave.ItemQty{{{Item: 0, Qty: 5}}, {{Item: 0, Qty: 5}}, {{Item: 1, Qty: 10}}},
		[][]wave.ItemQty{{{Item: 0, Qty: 10}}, {{Item: 1, Qty: 10}}},
		5, 10)
	require.NoError(t, err)
	return inst
}

// randomInstance stocks every item in at least one aisle so feasible waves exist.
func randomInstance(t *testing.T, seed int64, nOrders, nItems, nAisles int) *wave.Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	orders := make([][]wave.ItemQty, nOrders)
	for o := range orders {
		for j := 0; j < 1+rng.Intn(3); j++ {
			orders[o] = append(orders[o], wave.ItemQty{Item: rng.Intn(nItems), Qty: 1 + rng.Intn(3)})
		}
	}
	aisles := make([][]wave.ItemQty, nAisles)
	for item := 0; item < nItems; item++ {
		a := rng.Intn(nAisles)
		aisles[a] = append(aisles[a], wave.ItemQty{Item: item, Qty: 5 + rng.Intn(10)})
	}
	for a := range aisles {
		for j := 0; j < 1+rng.Intn(3); j++ {
			aisles[a] = append(aisles[a], wave.ItemQty{Item: rng.Intn(nItems), Qty: 1 + rng.Intn(8)})
		}
	}
	inst, err := wave.NewInstance(nItems, orders, aisles, 5, 60)
	require.NoError(t, err)
	return inst
}

func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxIterations = 60
	cfg.MaxIterationsWithoutImprovement = 20
	cfg.Seed = 42
	return cfg
}

func quiet() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func requireConsistent(t *testing.T, inst *wave.Instance, s wave.Solution) {
	t.Helper()
	got := wave.NewEvaluator(inst).Evaluate(s.Orders, s.Aisles)
	require.Equal(t, got.Feasible, s.Feasible)
	require.Equal(t, got.Units, s.TotalUnits)
	require.InDelta(t, got.Objective, s.Objective, 1e-12)
	if s.Feasible {
		require.GreaterOrEqual(t, s.TotalUnits, inst.LB)
		require.LessOrEqual(t, s.TotalUnits, inst.UB)
	}
}

func TestSolve_ScenarioA(t *testing.T) {
	inst := scenarioA(t)
	res, err := Solve(inst, quickConfig(), time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, res.Status)
	require.True(t, res.Solution.Feasible)
	// a wave of exactly UB units from one aisle is the optimum
	require.Equal(t, 10, res.Solution.TotalUnits)
	require.Len(t, res.Solution.Aisles, 1)
	require.Equal(t, 10.0, res.Solution.Objective)
	requireConsistent(t, inst, res.Solution)
}

func TestSolve_ScenarioB_EmptyWave(t *testing.T) {
	inst, err := wave.NewInstance(1,
		[][]wave.ItemQty{{{Item: 0, Qty: 2}}},
		[][]wave.ItemQty{{{Item: 0, Qty: 5}}},
		0, 0)
	require.NoError(t, err)
	res, err := Solve(inst, quickConfig(), time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, res.Status)
	require.Empty(t, res.Solution.Orders)
	require.Empty(t, res.Solution.Aisles)
	require.Equal(t, 0.0, res.Solution.Objective)
}

func TestSolve_NoFeasibleIsAValue(t *testing.T) {
	// the only order needs an item no aisle stocks
	inst, err := wave.NewInstance(2,
		[][]wave.ItemQty{{{Item: 1, Qty: 5}}},
		[][]wave.ItemQty{{{Item: 0, Qty: 5}}},
		1, 10)
	require.NoError(t, err)
	res, err := Solve(inst, quickConfig(), time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)
	require.Equal(t, StatusNoFeasible, res.Status)
	require.ErrorIs(t, res.Err, ErrNoFeasibleSolution)
	require.False(t, res.Solution.Feasible)
	require.Equal(t, StopNoFeasible, res.Metrics.StopReason)
}

func TestSolve_InvalidInputs(t *testing.T) {
	_, err := Solve(nil, DefaultConfig(), time.Time{})
	require.ErrorIs(t, err, wave.ErrInvalidInstance)

	cfg := DefaultConfig()
	cfg.PerturbationStrength = 2
	_, err = Solve(scenarioA(t), cfg, time.Time{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"alpha":      func(c *Config) { c.Alpha = -0.1 },
		"stagnation": func(c *Config) { c.MaxIterationsWithoutImprovement = 0 },
		"batch":      func(c *Config) { c.UseBatchEvaluation = true; c.BatchSize = 0 },
		"swaps":      func(c *Config) { c.MaxSwaps = 0 },
		"similarity": func(c *Config) { c.SimilarityThreshold = 0 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, name)
	}
}

// stepClock advances by step on every reading.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func TestSolve_PastDeadlineReturnsConstruction(t *testing.T) {
	inst := randomInstance(t, 1, 40, 10, 8)
	clock := &stepClock{now: time.Unix(1000, 0), step: time.Millisecond}
	res, err := Solve(inst, quickConfig(), time.Unix(999, 0), WithClock(clock), WithLogger(quiet()))
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, res.Status)
	require.Zero(t, res.Metrics.Iterations)
	require.Equal(t, StopDeadline, res.Metrics.StopReason)
	requireConsistent(t, inst, res.Solution)
}

func TestSolve_DeadlineStopsLoop(t *testing.T) {
	inst := randomInstance(t, 2, 60, 12, 10)
	cfg := quickConfig()
	cfg.MaxIterations = 100000
	cfg.MaxIterationsWithoutImprovement = 100000
	clock := &stepClock{now: time.Unix(0, 0), step: time.Millisecond}
	res, err := Solve(inst, cfg, time.Unix(0, 0).Add(2*time.Second), WithClock(clock), WithLogger(quiet()))
	require.NoError(t, err)
	require.Equal(t, StopDeadline, res.Metrics.StopReason)
	require.Less(t, res.Metrics.Iterations, cfg.MaxIterations)
	requireConsistent(t, inst, res.Solution)
}

func TestSolve_DeterministicForSeed(t *testing.T) {
	inst := randomInstance(t, 3, 50, 12, 10)
	a, err := Solve(inst, quickConfig(), time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)
	b, err := Solve(inst, quickConfig(), time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)
	require.Equal(t, a.Solution, b.Solution)
	require.Equal(t, a.Metrics.Iterations, b.Metrics.Iterations)
}

func TestSolve_ImprovesOnConstruction(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		inst := randomInstance(t, seed, 80, 15, 12)
		var seen []float64
		res, err := Solve(inst, quickConfig(), time.Time{},
			WithLogger(quiet()),
			WithObserver(func(p Progress) { seen = append(seen, p.Best.Objective) }))
		require.NoError(t, err)
		require.Equal(t, StatusFeasible, res.Status)
		require.GreaterOrEqual(t, res.Solution.Objective, res.Metrics.InitialObjective)
		require.NotEmpty(t, seen)
		for i := 1; i < len(seen); i++ {
			require.Greater(t, seen[i], seen[i-1])
		}
		require.Equal(t, res.Solution.Objective, seen[len(seen)-1])
		requireConsistent(t, inst, res.Solution)
	}
}

// singleWave has one feasible wave, {0}. Any perturbation of it swaps order 0
// for orders 1 and 2, which together overdraw item 1.
func singleWave(t *testing.T) *wave.Instance {
	t.Helper()
	inst, err := wave.NewInstance(2,
		[][]wave.ItemQty{{{Item: 0, Qty: 10}}, {{Item: 1, Qty: 5}}, {{Item: 1, Qty: 5}}},
		[][]wave.ItemQty{{{Item: 0, Qty: 10}}, {{Item: 1, Qty: 5}}},
		10, 10)
	require.NoError(t, err)
	return inst
}

func TestPerturb_InfeasibleFallsBackToGRASP(t *testing.T) {
	inst := singleWave(t)
	cfg := quickConfig()
	cfg.RCLSize = 1
	e, err := NewEngine(inst, cfg, time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)

	cur := e.build([]int{0})
	require.True(t, cur.Feasible)
	require.False(t, e.build(e.perturbOrders(cur.Orders, 1)).Feasible)

	cand, ok := e.perturb(cur, 1)
	require.True(t, ok)
	require.Equal(t, []int{0}, cand.Orders)
	require.Equal(t, 1, e.metrics.PerturbationFallbacks)
	requireConsistent(t, inst, cand)
}

func TestSolve_StagnationStopsLoop(t *testing.T) {
	// every fallback wave is the tabu initial wave, so nothing improves
	inst := singleWave(t)
	cfg := quickConfig()
	cfg.RCLSize = 1
	cfg.MaxIterations = 1000
	cfg.MaxIterationsWithoutImprovement = 5
	res, err := Solve(inst, cfg, time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, res.Status)
	require.Equal(t, StopStagnation, res.Metrics.StopReason)
	require.Equal(t, 5, res.Metrics.Iterations)
	require.Equal(t, 5, res.Metrics.PerturbationFallbacks)
	require.Equal(t, 5, res.Metrics.TabuRejections)
	require.Equal(t, []int{0}, res.Solution.Orders)

	// a wider instance still stops early once improvements run out
	cfg = quickConfig()
	cfg.MaxIterations = 100000
	res, err = Solve(scenarioA(t), cfg, time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)
	require.Equal(t, StopStagnation, res.Metrics.StopReason)
	require.Less(t, res.Metrics.Iterations, cfg.MaxIterations)
}

func TestVND_Monotone(t *testing.T) {
	for seed := int64(10); seed < 15; seed++ {
		inst := randomInstance(t, seed, 70, 14, 12)
		e, err := NewEngine(inst, quickConfig(), time.Time{}, WithLogger(quiet()))
		require.NoError(t, err)
		start := e.grasp.Construct(0.3)
		var trace []wave.Solution
		out := e.vnd(start, func(_ string, s wave.Solution) { trace = append(trace, s) })

		prev := start.Objective
		if !start.Feasible {
			prev = 0
		}
		for _, s := range trace {
			require.True(t, s.Feasible)
			require.GreaterOrEqual(t, s.Objective, prev)
			prev = s.Objective
			requireConsistent(t, inst, s)
		}
		if out.Feasible {
			require.GreaterOrEqual(t, out.Objective, prev)
		}
	}
}

func TestNeighborhoods_KeepFeasibility(t *testing.T) {
	inst := randomInstance(t, 21, 60, 12, 10)
	e, err := NewEngine(inst, quickConfig(), time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)
	start, ok := e.repair(e.grasp.Construct(0.3))
	require.True(t, ok)
	for _, h := range e.neighborhoods() {
		got := h.explore(start)
		require.True(t, got.Feasible, h.name)
		require.GreaterOrEqual(t, got.Objective, start.Objective, h.name)
		requireConsistent(t, inst, got)
	}
}

func TestAisleSubstitution_DropsRedundantAisle(t *testing.T) {
	// aisle 2 alone stocks everything orders 0 and 1 need
	inst, err := wave.NewInstance(2,
		[][]wave.ItemQty{{{Item: 0, Qty: 3}}, {{Item: 1, Qty: 3}}},
		[][]wave.ItemQty{
			{{Item: 0, Qty: 3}},
			{{Item: 1, Qty: 3}},
			{{Item: 0, Qty: 3}, {Item: 1, Qty: 3}},
		}, 1, 10)
	require.NoError(t, err)
	e, err := NewEngine(inst, quickConfig(), time.Time{}, WithLogger(quiet()))
	require.NoError(t, err)

	start := e.ev.Solution([]int{0, 1}, []int{0, 1})
	require.True(t, start.Feasible)
	require.Equal(t, 3.0, start.Objective)

	// neither aisle 0 nor 1 is removable, since each is the sole visited stock
	require.Equal(t, start, e.aisleSubstitution(start))

	// from {0, 2} aisle 0 is redundant and the cover collapses onto aisle 2
	start = e.ev.Solution([]int{0, 1}, []int{0, 2})
	got := e.aisleSubstitution(start)
	require.True(t, got.Feasible)
	require.Equal(t, []int{2}, got.Aisles)
	require.Equal(t, 6.0, got.Objective)
}

func TestRepair(t *testing.T) {
	inst := scenarioA(t)
	k := newKit(inst, quiet())

	feasible := k.build([]int{0})
	require.True(t, feasible.Feasible)
	got, ok := k.repair(feasible)
	require.True(t, ok)
	require.Equal(t, feasible, got)

	over := k.build([]int{0, 1, 2})
	require.False(t, over.Feasible)
	got, ok = k.repair(over)
	require.True(t, ok)
	require.LessOrEqual(t, got.TotalUnits, inst.UB)
	require.GreaterOrEqual(t, got.TotalUnits, inst.LB)

	under := k.build(nil)
	require.False(t, under.Feasible)
	got, ok = k.repair(under)
	require.True(t, ok)
	require.Equal(t, []int{2}, got.Orders)
}

func TestRepair_DropsOverdrawnOrders(t *testing.T) {
	// orders 0 and 1 together need 8 of item 0 but only 5 are stocked
	inst, err := wave.NewInstance(2,
		[][]wave.ItemQty{{{Item: 0, Qty: 4}}, {{Item: 0, Qty: 4}}, {{Item: 1, Qty: 2}}},
		[][]wave.ItemQty{{{Item: 0, Qty: 5}}, {{Item: 1, Qty: 5}}},
		2, 10)
	require.NoError(t, err)
	k := newKit(inst, quiet())
	bad := k.build([]int{0, 1})
	require.False(t, bad.Feasible)
	got, ok := k.repair(bad)
	require.True(t, ok)
	requireConsistent(t, inst, got)
}

func TestGRASP_AlphaExtremesTerminate(t *testing.T) {
	for seed := int64(1); seed <= 4; seed++ {
		inst := randomInstance(t, seed, 120, 20, 15)
		for _, alpha := range []float64{0, 0.05, 0.95, 1} {
			g := NewGRASP(inst, rngFromSeed(seed), 0, quiet())
			s := g.Construct(alpha)
			requireConsistent(t, inst, s)
		}
	}
}

func TestGRASP_RCLSizeOverride(t *testing.T) {
	inst := randomInstance(t, 9, 50, 10, 8)
	// a single-entry list always takes the top-ranked order that fits
	a := NewGRASP(inst, rngFromSeed(1), 1, quiet()).Construct(0.9)
	b := NewGRASP(inst, rngFromSeed(2), 1, quiet()).Construct(0.1)
	require.Equal(t, a.Orders, b.Orders)
}

func TestConstruct(t *testing.T) {
	s, err := Construct(scenarioA(t), 0.3, 7)
	require.NoError(t, err)
	require.True(t, s.Feasible)

	_, err = Construct(nil, 0.3, 7)
	require.ErrorIs(t, err, wave.ErrInvalidInstance)
}

func TestConstructChain_FallsBack(t *testing.T) {
	// nothing is servable, so repair cannot rescue any attempt
	inst, err := wave.NewInstance(2,
		[][]wave.ItemQty{{{Item: 1, Qty: 5}}},
		[][]wave.ItemQty{{{Item: 0, Qty: 5}}},
		1, 10)
	require.NoError(t, err)
	k := newKit(inst, quiet())
	broken := fixed{name: "broken", sol: wave.Solution{Orders: []int{0}, TotalUnits: 5}}
	good := fixed{name: "good", sol: wave.Solution{Feasible: true}}

	s, name, ok := constructChain(k, []Constructor{broken, good}, 0.3)
	require.True(t, ok)
	require.Equal(t, "good", name)
	require.True(t, s.Feasible)

	_, name, ok = constructChain(k, []Constructor{broken, NewGreedyDensity(inst, nil, quiet())}, 0.3)
	require.False(t, ok)
	require.Equal(t, "greedy_density", name)
}

// fixed always returns the same wave.
type fixed struct {
	name string
	sol  wave.Solution
}

func (f fixed) Name() string { return f.name }

func (f fixed) Construct(float64) wave.Solution { return f.sol }

func TestTabuMemory(t *testing.T) {
	tm := newTabuMemory(2, 0.9)
	a, b, c := []int{1, 2}, []int{3, 4}, []int{5, 6}
	tm.add(a)
	tm.add(b)
	require.True(t, tm.rejects(a))
	tm.add(c)
	require.Equal(t, 2, tm.len())
	require.False(t, tm.contains(a), "oldest entry evicted first")
	require.True(t, tm.contains(b))
	require.True(t, tm.contains(c))

	seq := func(from, to int, extra ...int) []int {
		var out []int
		for i := from; i <= to; i++ {
			out = append(out, i)
		}
		return append(out, extra...)
	}
	sim := newTabuMemory(5, 0.9)
	sim.add(seq(1, 20))
	require.True(t, sim.rejects(seq(1, 19, 21)), "19/21 overlap exceeds threshold")
	require.False(t, sim.rejects(seq(1, 9, 11)), "9/11 overlap does not")

	off := newTabuMemory(0, 0.9)
	off.add(a)
	require.False(t, off.rejects(a))
}

func TestBatch_StrategySelection(t *testing.T) {
	inst := scenarioA(t)
	be, attempts := NewAccelerationContext(1).Evaluator(inst, quiet())
	require.Equal(t, StrategySequential, be.Name())
	require.Len(t, attempts, 2)
	require.False(t, attempts[0].Selected)
	require.Contains(t, attempts[0].Reason, "at least 2 workers")
	require.True(t, attempts[1].Selected)

	be, _ = NewAccelerationContext(4).Evaluator(inst, quiet())
	require.Equal(t, StrategyParallel, be.Name())

	ac := &AccelerationContext{MaxWorkers: 4, Strategies: []string{"gpu"}}
	be, attempts = ac.Evaluator(inst, quiet())
	require.Equal(t, StrategySequential, be.Name())
	require.Len(t, attempts, 2)
	require.Contains(t, attempts[0].Reason, "unknown strategy")
}

func TestBatch_ParallelMatchesSequential(t *testing.T) {
	inst := randomInstance(t, 5, 90, 16, 14)
	rng := rand.New(rand.NewSource(99))
	masks := make([]wave.Mask, 64)
	for i := range masks {
		m := wave.NewMask(inst.NOrders)
		for o := 0; o < inst.NOrders; o++ {
			if rng.Float64() < 0.1 {
				m.Set(o)
			}
		}
		masks[i] = m
	}
	ctx := context.Background()
	seq, err := newSequentialBatch(inst).EvaluateMasks(ctx, masks)
	require.NoError(t, err)
	par, err := newParallelBatch(inst, 8).EvaluateMasks(ctx, masks)
	require.NoError(t, err)
	require.Len(t, par, len(seq))
	for i := range seq {
		require.Equal(t, seq[i].Objective, par[i].Objective, i)
		require.Equal(t, seq[i].Feasible, par[i].Feasible, i)
		require.True(t, seq[i].Aisles.Equal(par[i].Aisles), i)
	}
	require.Equal(t, BestIndex(seq), BestIndex(par))
}

func TestBestIndex_FirstOnTies(t *testing.T) {
	rs := []BatchResult{
		{Feasible: false, Objective: 0},
		{Feasible: true, Objective: 2},
		{Feasible: true, Objective: 3},
		{Feasible: true, Objective: 3},
	}
	require.Equal(t, 2, BestIndex(rs))
	require.Equal(t, -1, BestIndex(rs[:1]))
	require.Equal(t, -1, BestIndex(nil))
}

func TestSolve_BatchStrategyDoesNotChangeOutcome(t *testing.T) {
	inst := randomInstance(t, 6, 70, 14, 12)
	cfg := quickConfig()
	cfg.UseBatchEvaluation = true
	cfg.BatchSize = 6

	seq, err := Solve(inst, cfg, time.Time{}, WithLogger(quiet()), WithAcceleration(NewAccelerationContext(1)))
	require.NoError(t, err)
	par, err := Solve(inst, cfg, time.Time{}, WithLogger(quiet()), WithAcceleration(NewAccelerationContext(4)))
	require.NoError(t, err)

	require.Equal(t, StrategySequential, seq.Metrics.BatchStrategy)
	require.Equal(t, StrategyParallel, par.Metrics.BatchStrategy)
	require.Equal(t, seq.Solution, par.Solution)
	require.Equal(t, seq.Metrics.Iterations, par.Metrics.Iterations)
	requireConsistent(t, inst, par.Solution)
}

func TestMetricsStore(t *testing.T) {
	RecordMetrics("t1", "inst-1", "run-a", Metrics{Iterations: 3})
	RecordMetrics("t1", "inst-1", "run-b", Metrics{Iterations: 5})
	RecordMetrics("t2", "inst-1", "run-c", Metrics{Iterations: 7})
	got := GetMetrics("t1", "inst-1")
	require.Len(t, got, 2)
	require.Equal(t, 5, got["run-b"].Iterations)
}

func TestMetricsStore_EvictsOldestPerTenant(t *testing.T) {
	RecordMetrics("t4", "inst-1", "keep", Metrics{Iterations: 1})
	for i := 0; i < maxRecordedRuns+10; i++ {
		RecordMetrics("t3", "inst-1", "run-"+strconv.Itoa(i), Metrics{Iterations: i})
	}
	got := GetMetrics("t3", "inst-1")
	require.Len(t, got, maxRecordedRuns)
	require.NotContains(t, got, "run-0")
	require.NotContains(t, got, "run-9")
	require.Equal(t, maxRecordedRuns+9, got["run-"+strconv.Itoa(maxRecordedRuns+9)].Iterations)

	// re-recording an existing run replaces it in place
	RecordMetrics("t3", "inst-1", "run-10", Metrics{Iterations: -1})
	got = GetMetrics("t3", "inst-1")
	require.Len(t, got, maxRecordedRuns)
	require.Equal(t, -1, got["run-10"].Iterations)

	require.Len(t, GetMetrics("t4", "inst-1"), 1)
}
