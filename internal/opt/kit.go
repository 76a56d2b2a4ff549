package opt

import (
	"sort"

	"github.com/sirupsen/logrus"

	"wavepick/internal/wave"
)

const eps = 1e-9

// kit bundles the per-instance evaluation state used by constructors,
// repair and the neighborhoods. It is single-goroutine.
type kit struct {
	inst *wave.Instance
	cov  *wave.Coverer
	ev   *wave.Evaluator
	log  *logrus.Entry

	// servable[o] is false when some item of o exceeds the total stock.
	servable []bool
	// byUnitsDesc lists order ids by units descending, id ascending.
	byUnitsDesc []int
	// inconsistencies counts cover/evaluator disagreements.
	inconsistencies int
}

func newKit(inst *wave.Instance, log *logrus.Entry) *kit {
	k := &kit{
		inst:     inst,
		cov:      wave.NewCoverer(inst),
		ev:       wave.NewEvaluator(inst),
		log:      log,
		servable: make([]bool, inst.NOrders),
	}
	for o, row := range inst.Orders {
		ok := true
		for _, it := range row {
			if it.Qty > inst.ItemStock[it.Item] {
				ok = false
				break
			}
		}
		k.servable[o] = ok
	}
	k.byUnitsDesc = make([]int, inst.NOrders)
	for o := range k.byUnitsDesc {
		k.byUnitsDesc[o] = o
	}
	sort.SliceStable(k.byUnitsDesc, func(i, j int) bool {
		return inst.OrderUnits[k.byUnitsDesc[i]] > inst.OrderUnits[k.byUnitsDesc[j]]
	})
	return k
}

// build covers a sorted order set and evaluates it. A disagreement between
// the coverer and the evaluator is logged and the candidate marked infeasible.
func (k *kit) build(orders []int) wave.Solution {
	aisles, complete := k.cov.Cover(orders)
	sol := k.ev.Solution(orders, aisles)
	if complete != k.ev.Evaluate(orders, aisles).Covered {
		k.inconsistencies++
		k.log.WithError(wave.ErrInternalInconsistency).
			WithField("orders", len(orders)).
			Error("cover and evaluator disagree; rejecting candidate")
		sol.Feasible = false
		sol.Objective = 0
	}
	return sol
}

func insertSorted(ids []int, v int) []int {
	i := sort.SearchInts(ids, v)
	out := make([]int, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, v)
	return append(out, ids[i:]...)
}

func removeSorted(ids []int, v int) []int {
	i := sort.SearchInts(ids, v)
	out := make([]int, 0, len(ids))
	out = append(out, ids[:i]...)
	if i < len(ids) && ids[i] == v {
		i++
	}
	return append(out, ids[i:]...)
}

// complement returns the ids in [0,n) that are not in the sorted set.
func complement(n int, sorted []int) []int {
	out := make([]int, 0, n-len(sorted))
	j := 0
	for i := 0; i < n; i++ {
		if j < len(sorted) && sorted[j] == i {
			j++
			continue
		}
		out = append(out, i)
	}
	return out
}
