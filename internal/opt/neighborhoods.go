package opt

import (
	"sort"

	"wavepick/internal/wave"
)

// neighborhood explores one move type from a feasible wave and returns the
// best feasible neighbor found, or the input when nothing improves on it.
type neighborhood struct {
	name    string
	explore func(s wave.Solution) wave.Solution
}

func (e *Engine) neighborhoods() []neighborhood {
	return []neighborhood{
		{"swap", e.swap},
		{"insert", e.insert},
		{"remove", e.remove},
		{"k_swap", e.kSwap},
		{"aisle_substitution", e.aisleSubstitution},
	}
}

func (e *Engine) shuffled(ids []int) []int {
	out := append([]int(nil), ids...)
	e.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// unselectedServable lists orders outside s that could be stocked at all.
func (e *Engine) unselectedServable(s wave.Solution) []int {
	out := complement(e.inst.NOrders, s.Orders)
	keep := out[:0]
	for _, o := range out {
		if e.servable[o] {
			keep = append(keep, o)
		}
	}
	return keep
}

func better(cand, than wave.Solution) bool {
	return cand.Feasible && cand.Objective > than.Objective+eps
}

// swap exchanges one selected order for one unselected order. Attempts are
// spread over the selected orders so the cap does not starve later ones.
func (e *Engine) swap(s wave.Solution) wave.Solution {
	inst := e.inst
	sel := e.shuffled(s.Orders)
	unsel := e.shuffled(e.unselectedServable(s))
	if len(sel) == 0 || len(unsel) == 0 {
		return s
	}
	perOut := max(1, e.cfg.MaxSwaps/len(sel))
	best := s
	attempts, offset := 0, 0
	for _, out := range sel {
		base := removeSorted(s.Orders, out)
		baseUnits := s.TotalUnits - inst.OrderUnits[out]
		tried := 0
		for n := 0; n < len(unsel) && tried < perOut; n++ {
			if attempts >= e.cfg.MaxSwaps || e.expired() {
				return best
			}
			in := unsel[(offset+n)%len(unsel)]
			u := baseUnits + inst.OrderUnits[in]
			if u < inst.LB || u > inst.UB {
				continue
			}
			attempts++
			tried++
			if cand := e.build(insertSorted(base, in)); better(cand, best) {
				best = cand
			}
		}
		offset += perOut
	}
	return best
}

// insert adds unselected orders one at a time, keeping each that improves.
func (e *Engine) insert(s wave.Solution) wave.Solution {
	inst := e.inst
	cur := s
	attempts := 0
	for _, o := range e.shuffled(e.unselectedServable(s)) {
		if attempts >= e.cfg.MaxInserts || e.expired() {
			break
		}
		if cur.TotalUnits+inst.OrderUnits[o] > inst.UB {
			continue
		}
		attempts++
		if cand := e.build(insertSorted(cur.Orders, o)); better(cand, cur) {
			cur = cand
		}
	}
	return cur
}

// remove drops selected orders one at a time, keeping each that improves.
func (e *Engine) remove(s wave.Solution) wave.Solution {
	inst := e.inst
	cur := s
	attempts := 0
	for _, o := range e.shuffled(s.Orders) {
		if attempts >= e.cfg.MaxRemoves || e.expired() {
			break
		}
		if cur.TotalUnits-inst.OrderUnits[o] < inst.LB {
			continue
		}
		attempts++
		if cand := e.build(removeSorted(cur.Orders, o)); better(cand, cur) {
			cur = cand
		}
	}
	return cur
}

// sampleInto partially shuffles pool in place and returns its first k ids.
func (e *Engine) sampleInto(pool []int, k int) []int {
	for i := 0; i < k; i++ {
		j := i + e.rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// kSwap replaces k random selected orders with k random unselected ones.
func (e *Engine) kSwap(s wave.Solution) wave.Solution {
	inst := e.inst
	k := e.cfg.KSwapK
	sel := append([]int(nil), s.Orders...)
	unsel := e.unselectedServable(s)
	if len(sel) < k || len(unsel) < k {
		return s
	}
	best := s
	for t := 0; t < e.cfg.MaxKSwapAttempts; t++ {
		if e.expired() {
			break
		}
		outs := e.sampleInto(sel, k)
		ins := e.sampleInto(unsel, k)
		u := s.TotalUnits
		for i := 0; i < k; i++ {
			u += inst.OrderUnits[ins[i]] - inst.OrderUnits[outs[i]]
		}
		if u < inst.LB || u > inst.UB {
			continue
		}
		next := s.Orders
		for _, o := range outs {
			next = removeSorted(next, o)
		}
		for _, o := range ins {
			next = insertSorted(next, o)
		}
		if cand := e.build(next); better(cand, best) {
			best = cand
		}
	}
	return best
}

// aisleSubstitution swaps a visited aisle that no selected item depends on
// exclusively for an unvisited one, keeps the selected orders the new aisle
// set can still stock, tops up with unselected orders that draw on the new
// aisle, and recomputes the cover.
func (e *Engine) aisleSubstitution(s wave.Solution) wave.Solution {
	inst := e.inst
	if len(s.Aisles) == 0 || len(s.Aisles) == inst.NAisles {
		return s
	}
	supply, demand := e.supply, e.demand
	defer func() {
		clear(supply)
		clear(demand)
	}()
	inst.Supply(supply, s.Aisles)
	for _, o := range s.Orders {
		for _, it := range inst.Orders[o] {
			demand[it.Item] += it.Qty
		}
	}

	var removable []int
	for _, a := range s.Aisles {
		ok := true
		for _, it := range inst.Aisles[a] {
			if demand[it.Item] > 0 && supply[it.Item] == it.Qty {
				// a is the only visited aisle stocking a demanded item
				ok = false
				break
			}
		}
		if ok {
			removable = append(removable, a)
		}
	}
	if len(removable) == 0 {
		return s
	}
	unused := e.shuffled(complement(inst.NAisles, s.Aisles))
	removable = e.shuffled(removable)

	byUnits := append([]int(nil), s.Orders...)
	sort.SliceStable(byUnits, func(i, j int) bool { return inst.OrderUnits[byUnits[i]] > inst.OrderUnits[byUnits[j]] })

	perOut := max(1, e.cfg.MaxAisleSubstitutions/len(removable))
	best := s
	attempts, offset := 0, 0
	for _, a := range removable {
		for n := 0; n < len(unused) && n < perOut; n++ {
			if attempts >= e.cfg.MaxAisleSubstitutions || e.expired() {
				return best
			}
			attempts++
			b := unused[(offset+n)%len(unused)]
			if cand, ok := e.substitute(s, byUnits, a, b); ok && better(cand, best) {
				best = cand
			}
		}
		offset += perOut
	}
	return best
}

// substitute evaluates the visited aisles minus a plus b. e.supply must
// hold the stock of the visited aisles and is restored before returning.
func (e *Engine) substitute(s wave.Solution, byUnits []int, a, b int) (wave.Solution, bool) {
	inst := e.inst
	supply := e.supply
	for _, it := range inst.Aisles[a] {
		supply[it.Item] -= it.Qty
	}
	for _, it := range inst.Aisles[b] {
		supply[it.Item] += it.Qty
	}
	defer func() {
		for _, it := range inst.Aisles[a] {
			supply[it.Item] += it.Qty
		}
		for _, it := range inst.Aisles[b] {
			supply[it.Item] -= it.Qty
		}
	}()

	used := make(map[int]int)
	fits := func(o int) bool {
		for _, it := range inst.Orders[o] {
			if used[it.Item]+it.Qty > supply[it.Item] {
				return false
			}
		}
		return true
	}
	take := func(o int) {
		for _, it := range inst.Orders[o] {
			used[it.Item] += it.Qty
		}
	}

	kept := wave.NewMask(inst.NOrders)
	units := 0
	for _, o := range byUnits {
		if units+inst.OrderUnits[o] <= inst.UB && fits(o) {
			take(o)
			kept.Set(o)
			units += inst.OrderUnits[o]
		}
	}

	var extra []int
	for _, it := range inst.Aisles[b] {
		for _, o := range inst.ItemOrders[it.Item] {
			if !kept.Has(o) && e.servable[o] && !containsSorted(s.Orders, o) {
				extra = append(extra, o)
			}
		}
	}
	sort.SliceStable(extra, func(i, j int) bool { return inst.OrderUnits[extra[i]] > inst.OrderUnits[extra[j]] })
	for _, o := range extra {
		if kept.Has(o) {
			continue
		}
		if units+inst.OrderUnits[o] <= inst.UB && fits(o) {
			take(o)
			kept.Set(o)
			units += inst.OrderUnits[o]
		}
	}
	if units < inst.LB {
		return s, false
	}
	return e.build(kept.Indices()), true
}

func containsSorted(ids []int, v int) bool {
	i := sort.SearchInts(ids, v)
	return i < len(ids) && ids[i] == v
}
