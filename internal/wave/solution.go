package wave

import (
	"hash/fnv"
	"sort"
)

// Solution is a candidate wave. Orders and Aisles are sorted ascending and are
// never shared between two Solution values that are mutated independently.
type Solution struct {
	Orders     []int   `json:"orders"`
	Aisles     []int   `json:"aisles"`
	TotalUnits int     `json:"totalUnits"`
	Feasible   bool    `json:"feasible"`
	Objective  float64 `json:"objective"`
}

// Clone returns a deep copy.
func (s Solution) Clone() Solution {
	out := s
	out.Orders = append([]int(nil), s.Orders...)
	out.Aisles = append([]int(nil), s.Aisles...)
	return out
}

// OrderKey hashes the order set (FNV-1a over the sorted ids).
func (s Solution) OrderKey() uint64 { return OrderSetKey(s.Orders) }

// OrderSetKey hashes a sorted order-id set.
func OrderSetKey(orders []int) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, o := range orders {
		v := uint64(o)
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// Jaccard returns |a∩b| / |a∪b| for two sorted id sets; two empty sets are identical.
func Jaccard(a, b []int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// SortedCopy returns ids sorted ascending without touching the input.
func SortedCopy(ids []int) []int {
	out := append([]int(nil), ids...)
	sort.Ints(out)
	return out
}

// Objective is units per visited aisle, or 0 when infeasible or no aisle is visited.
func Objective(units, aisles int, feasible bool) float64 {
	if !feasible || aisles == 0 {
		return 0
	}
	return float64(units) / float64(aisles)
}
