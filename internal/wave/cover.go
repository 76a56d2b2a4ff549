package wave

import "sort"

// Coverer computes a small aisle set whose stock satisfies the aggregate
// demand of a set of orders. It reuses scratch buffers between calls and must
// not be shared across goroutines.
type Coverer struct {
	inst      *Instance
	remaining []int
	items     []int
	chosen    []bool
	isCand    []bool
	cands     []int
}

func NewCoverer(inst *Instance) *Coverer {
	return &Coverer{
		inst:      inst,
		remaining: make([]int, inst.NItems),
		chosen:    make([]bool, inst.NAisles),
		isCand:    make([]bool, inst.NAisles),
	}
}

// Cover returns the selected aisles in ascending order and whether every
// demanded unit is covered. Items stocked by a single aisle force that aisle
// first; the rest is a greedy set cover on uncovered units, ties going to the
// lowest aisle id.
func (c *Coverer) Cover(orders []int) ([]int, bool) {
	inst := c.inst
	c.items = c.items[:0]
	for _, o := range orders {
		for _, it := range inst.Orders[o] {
			if c.remaining[it.Item] == 0 {
				c.items = append(c.items, it.Item)
			}
			c.remaining[it.Item] += it.Qty
		}
	}
	if len(c.items) == 0 {
		return []int{}, true
	}
	sort.Ints(c.items)

	var result []int
	uncovered := 0
	for _, item := range c.items {
		uncovered += c.remaining[item]
	}
	take := func(a int) {
		c.chosen[a] = true
		result = append(result, a)
		for _, it := range inst.Aisles[a] {
			r := c.remaining[it.Item]
			if r == 0 {
				continue
			}
			if it.Qty >= r {
				uncovered -= r
				c.remaining[it.Item] = 0
			} else {
				uncovered -= it.Qty
				c.remaining[it.Item] = r - it.Qty
			}
		}
	}

	// exclusive items
	for _, item := range c.items {
		if c.remaining[item] > 0 && len(inst.ItemAisles[item]) == 1 {
			if a := inst.ItemAisles[item][0]; !c.chosen[a] {
				take(a)
			}
		}
	}

	c.cands = c.cands[:0]
	for _, item := range c.items {
		for _, a := range inst.ItemAisles[item] {
			if !c.isCand[a] {
				c.isCand[a] = true
				c.cands = append(c.cands, a)
			}
		}
	}
	sort.Ints(c.cands)

	for uncovered > 0 {
		best, bestGain := -1, 0
		for _, a := range c.cands {
			if c.chosen[a] {
				continue
			}
			gain := 0
			for _, it := range inst.Aisles[a] {
				if r := c.remaining[it.Item]; r > 0 {
					gain += min(r, it.Qty)
				}
			}
			if gain > bestGain {
				best, bestGain = a, gain
			}
		}
		if best < 0 {
			break
		}
		take(best)
	}
	complete := uncovered == 0

	for _, item := range c.items {
		c.remaining[item] = 0
	}
	for _, a := range c.cands {
		c.isCand[a] = false
		c.chosen[a] = false
	}
	for _, a := range result {
		c.chosen[a] = false
	}
	sort.Ints(result)
	if result == nil {
		result = []int{}
	}
	return result, complete
}
