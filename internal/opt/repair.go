package opt

import (
	"sort"

	"wavepick/internal/wave"
)

// repairRounds bounds the coverage-driven retries.
const repairRounds = 2

// repair tries to turn s into a feasible wave. A feasible input is returned
// unchanged. Otherwise unit bounds are fixed first (add largest servable
// orders below LB; above UB drop smallest, then re-add dropped ones largest
// first if that undershot LB) and the aisles recomputed. If coverage still
// fails, orders demanding over-stocked items are dropped and the bounds pass
// runs again.
func (k *kit) repair(s wave.Solution) (wave.Solution, bool) {
	if s.Feasible {
		return s, true
	}
	inst := k.inst
	orders := wave.SortedCopy(s.Orders)
	sol := s
	for round := 0; round < repairRounds; round++ {
		orders = k.fixBounds(orders)
		sol = k.build(orders)
		if sol.Feasible {
			return sol, true
		}
		units := inst.UnitsOf(orders)
		if units < inst.LB || units > inst.UB {
			return sol, false
		}
		orders = k.dropOverdrawn(orders)
	}
	return sol, false
}

func (k *kit) fixBounds(orders []int) []int {
	inst := k.inst
	units := inst.UnitsOf(orders)
	switch {
	case units < inst.LB:
		selected := wave.MaskOf(inst.NOrders, orders)
		for _, o := range k.byUnitsDesc {
			if units >= inst.LB {
				break
			}
			if selected.Has(o) || !k.servable[o] {
				continue
			}
			if units+inst.OrderUnits[o] <= inst.UB {
				selected.Set(o)
				units += inst.OrderUnits[o]
			}
		}
		return selected.Indices()
	case units > inst.UB:
		asc := append([]int(nil), orders...)
		sort.SliceStable(asc, func(i, j int) bool { return inst.OrderUnits[asc[i]] < inst.OrderUnits[asc[j]] })
		var dropped []int
		for len(asc) > 0 && units > inst.UB {
			o := asc[0]
			asc = asc[1:]
			dropped = append(dropped, o)
			units -= inst.OrderUnits[o]
		}
		for i := len(dropped) - 1; i >= 0 && units < inst.LB; i-- {
			o := dropped[i]
			if units+inst.OrderUnits[o] <= inst.UB {
				asc = append(asc, o)
				units += inst.OrderUnits[o]
			}
		}
		sort.Ints(asc)
		return asc
	}
	return orders
}

// dropOverdrawn removes the smallest orders demanding any item whose aggregate
// demand exceeds the total stock, until every item is within stock.
func (k *kit) dropOverdrawn(orders []int) []int {
	inst := k.inst
	demand := make(map[int]int)
	for _, o := range orders {
		for _, it := range inst.Orders[o] {
			demand[it.Item] += it.Qty
		}
	}
	asc := append([]int(nil), orders...)
	sort.SliceStable(asc, func(i, j int) bool { return inst.OrderUnits[asc[i]] < inst.OrderUnits[asc[j]] })
	keep := asc[:0]
	for _, o := range asc {
		over := false
		for _, it := range inst.Orders[o] {
			if demand[it.Item] > inst.ItemStock[it.Item] {
				over = true
				break
			}
		}
		if !over {
			keep = append(keep, o)
			continue
		}
		for _, it := range inst.Orders[o] {
			demand[it.Item] -= it.Qty
		}
	}
	sort.Ints(keep)
	return keep
}
