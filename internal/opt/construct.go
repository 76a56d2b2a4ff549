package opt

import (
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"wavepick/internal/wave"
)

// Constructor builds an initial wave. Implementations may ignore alpha.
type Constructor interface {
	Name() string
	Construct(alpha float64) wave.Solution
}

// ConstructorFactory creates a constructor bound to an instance and a random source.
type ConstructorFactory func(inst *wave.Instance, rng *rand.Rand, log *logrus.Entry) Constructor

const (
	minAlpha   = 0.05
	maxAlpha   = 0.95
	minRCLSize = 3
)

// GRASP is the randomized greedy constructor with a restricted candidate list.
type GRASP struct {
	k       *kit
	rng     *rand.Rand
	rclSize int
	ranked  []int
}

// NewGRASP ranks orders once by units / (1 + ln(1 + distinct items)).
// rclSize > 0 fixes the candidate list size regardless of alpha.
func NewGRASP(inst *wave.Instance, rng *rand.Rand, rclSize int, log *logrus.Entry) *GRASP {
	return newGRASP(newKit(inst, log), rng, rclSize)
}

func newGRASP(k *kit, rng *rand.Rand, rclSize int) *GRASP {
	inst := k.inst
	score := make([]float64, inst.NOrders)
	ranked := make([]int, inst.NOrders)
	for o := range ranked {
		ranked[o] = o
		score[o] = float64(inst.OrderUnits[o]) / (1 + math.Log(1+float64(inst.ItemCount(o))))
	}
	sort.SliceStable(ranked, func(i, j int) bool { return score[ranked[i]] > score[ranked[j]] })
	return &GRASP{k: k, rng: rng, rclSize: rclSize, ranked: ranked}
}

func (g *GRASP) Name() string { return "grasp" }

func (g *GRASP) Construct(alpha float64) wave.Solution {
	inst := g.k.inst
	alpha = math.Min(maxAlpha, math.Max(minAlpha, alpha))
	size := g.rclSize
	if size <= 0 {
		size = max(minRCLSize, int(math.Ceil(alpha*float64(inst.NOrders))))
	}

	pool := append([]int(nil), g.ranked...)
	var chosen []int
	units, rejects := 0, 0
	for units < inst.LB && len(pool) > 0 && rejects < size {
		i := g.rng.Intn(min(size, len(pool)))
		o := pool[i]
		pool = append(pool[:i], pool[i+1:]...)
		if units+inst.OrderUnits[o] > inst.UB {
			rejects++
			continue
		}
		rejects = 0
		chosen = append(chosen, o)
		units += inst.OrderUnits[o]
	}
	if units < inst.LB {
		// the candidate list stalled; fill from the rest in random order
		g.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		for _, o := range pool {
			if units >= inst.LB {
				break
			}
			if units+inst.OrderUnits[o] <= inst.UB {
				chosen = append(chosen, o)
				units += inst.OrderUnits[o]
			}
		}
	}
	sort.Ints(chosen)
	return g.k.build(chosen)
}

// GreedyDensity adds servable orders by units per aisle they need on their
// own, densest first, until LB is reached. It is deterministic.
type GreedyDensity struct {
	k     *kit
	order []int
}

func NewGreedyDensity(inst *wave.Instance, _ *rand.Rand, log *logrus.Entry) Constructor {
	k := newKit(inst, log)
	density := make([]float64, inst.NOrders)
	var order []int
	for o := 0; o < inst.NOrders; o++ {
		if !k.servable[o] {
			continue
		}
		aisles, _ := k.cov.Cover([]int{o})
		density[o] = float64(inst.OrderUnits[o]) / float64(max(1, len(aisles)))
		order = append(order, o)
	}
	sort.SliceStable(order, func(i, j int) bool { return density[order[i]] > density[order[j]] })
	return &GreedyDensity{k: k, order: order}
}

func (d *GreedyDensity) Name() string { return "greedy_density" }

func (d *GreedyDensity) Construct(float64) wave.Solution {
	inst := d.k.inst
	var chosen []int
	units := 0
	for _, o := range d.order {
		if units >= inst.LB {
			break
		}
		if units+inst.OrderUnits[o] <= inst.UB {
			chosen = append(chosen, o)
			units += inst.OrderUnits[o]
		}
	}
	sort.Ints(chosen)
	return d.k.build(chosen)
}

// maxChainDepth bounds how many constructors the chain tries.
const maxChainDepth = 4

// constructChain tries each constructor in turn, repairing infeasible output,
// and returns the first feasible solution with the name of its constructor.
// When none succeeds it returns the last attempt and false.
func constructChain(k *kit, chain []Constructor, alpha float64) (wave.Solution, string, bool) {
	var last wave.Solution
	name := ""
	for i, c := range chain {
		if i >= maxChainDepth {
			break
		}
		name = c.Name()
		sol := c.Construct(alpha)
		if !sol.Feasible {
			if fixed, ok := k.repair(sol); ok {
				sol = fixed
			}
		}
		if sol.Feasible {
			return sol, name, true
		}
		k.log.WithField("constructor", name).Debug("constructor produced no feasible wave; trying next")
		last = sol
	}
	return last, name, false
}

// Construct builds one GRASP wave with a repair pass, falling back to the
// density greedy. It is the standalone entry used outside the search loop.
func Construct(inst *wave.Instance, alpha float64, seed int64) (wave.Solution, error) {
	if err := inst.Validate(); err != nil {
		return wave.Solution{}, err
	}
	log := logrus.WithField("prefix", "construct")
	rng := rngFromSeed(seed)
	k := newKit(inst, log)
	chain := []Constructor{newGRASP(k, rng, 0), NewGreedyDensity(inst, rng, log)}
	sol, _, ok := constructChain(k, chain, alpha)
	if !ok {
		return sol, ErrNoFeasibleSolution
	}
	return sol, nil
}
