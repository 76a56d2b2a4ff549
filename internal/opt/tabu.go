package opt

import "wavepick/internal/wave"

// tabuMemory remembers the last tenure order sets. A candidate is rejected
// when its key is remembered or it is too similar to a remembered set.
// Eviction is first-in first-out.
type tabuMemory struct {
	tenure    int
	threshold float64
	ring      []tabuEntry
	next      int
	size      int
	index     map[uint64]int
}

type tabuEntry struct {
	key    uint64
	orders []int
}

func newTabuMemory(tenure int, threshold float64) *tabuMemory {
	return &tabuMemory{
		tenure:    tenure,
		threshold: threshold,
		ring:      make([]tabuEntry, tenure),
		index:     make(map[uint64]int, tenure),
	}
}

func (t *tabuMemory) add(orders []int) {
	if t.tenure == 0 {
		return
	}
	if t.size == t.tenure {
		old := t.ring[t.next]
		if t.index[old.key]--; t.index[old.key] <= 0 {
			delete(t.index, old.key)
		}
	} else {
		t.size++
	}
	key := wave.OrderSetKey(orders)
	t.ring[t.next] = tabuEntry{key: key, orders: append([]int(nil), orders...)}
	t.index[key]++
	t.next = (t.next + 1) % t.tenure
}

func (t *tabuMemory) contains(orders []int) bool {
	_, ok := t.index[wave.OrderSetKey(orders)]
	return ok
}

func (t *tabuMemory) rejects(orders []int) bool {
	if t.tenure == 0 {
		return false
	}
	if t.contains(orders) {
		return true
	}
	for i := 0; i < t.size; i++ {
		if wave.Jaccard(orders, t.ring[i].orders) > t.threshold {
			return true
		}
	}
	return false
}

func (t *tabuMemory) len() int { return t.size }
