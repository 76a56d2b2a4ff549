// Package wave holds the order/aisle wave model: the immutable instance, the
// solution value, feasibility evaluation and the aisle-covering solvers.
package wave

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidInstance is returned when an instance cannot be searched.
	ErrInvalidInstance = errors.New("invalid instance")
	// ErrInternalInconsistency marks a cover that disagrees with the evaluator.
	ErrInternalInconsistency = errors.New("internal inconsistency")
)

// MaxCount bounds the order, aisle, item and row entry counts an instance may
// declare. Per-item workspaces are sized by the item count.
const MaxCount = 1 << 20

// ItemQty is one sparse (item, quantity) entry of an order or aisle row.
type ItemQty struct {
	Item int `json:"item"`
	Qty  int `json:"qty"`
}

// Instance is the read-only problem data. Rows are sorted by item id and
// carry no duplicate items. All derived indexes are built once in NewInstance.
type Instance struct {
	NOrders int
	NAisles int
	NItems  int
	LB      int
	UB      int

	Orders [][]ItemQty // order -> demanded items
	Aisles [][]ItemQty // aisle -> stocked items

	OrderUnits []int   // order -> total quantity
	AisleUnits []int   // aisle -> total quantity
	ItemOrders [][]int // item -> orders demanding it
	ItemAisles [][]int // item -> aisles stocking it
	ItemStock  []int   // item -> total stock across aisles

	inc *Incidence
}

// NewInstance copies and normalizes the rows and builds the inverted indexes.
func NewInstance(nItems int, orders, aisles [][]ItemQty, lb, ub int) (*Instance, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: no orders", ErrInvalidInstance)
	}
	if len(aisles) == 0 {
		return nil, fmt.Errorf("%w: no aisles", ErrInvalidInstance)
	}
	if nItems <= 0 || nItems > MaxCount {
		return nil, fmt.Errorf("%w: items must be in [1,%d] (got %d)", ErrInvalidInstance, MaxCount, nItems)
	}
	if len(orders) > MaxCount || len(aisles) > MaxCount {
		return nil, fmt.Errorf("%w: at most %d orders and %d aisles (got %d, %d)", ErrInvalidInstance, MaxCount, MaxCount, len(orders), len(aisles))
	}
	if lb < 0 || ub < lb {
		return nil, fmt.Errorf("%w: bounds must satisfy 0 <= LB <= UB (got %d, %d)", ErrInvalidInstance, lb, ub)
	}
	inst := &Instance{
		NOrders: len(orders),
		NAisles: len(aisles),
		NItems:  nItems,
		LB:      lb,
		UB:      ub,
	}
	var err error
	if inst.Orders, inst.OrderUnits, err = normalizeRows("order", orders, nItems); err != nil {
		return nil, err
	}
	if inst.Aisles, inst.AisleUnits, err = normalizeRows("aisle", aisles, nItems); err != nil {
		return nil, err
	}

	inst.ItemOrders = make([][]int, nItems)
	for o, row := range inst.Orders {
		for _, e := range row {
			inst.ItemOrders[e.Item] = append(inst.ItemOrders[e.Item], o)
		}
	}
	inst.ItemAisles = make([][]int, nItems)
	inst.ItemStock = make([]int, nItems)
	for a, row := range inst.Aisles {
		for _, e := range row {
			inst.ItemAisles[e.Item] = append(inst.ItemAisles[e.Item], a)
			inst.ItemStock[e.Item] += e.Qty
		}
	}
	inst.inc = newIncidence(inst)
	return inst, nil
}

func normalizeRows(kind string, rows [][]ItemQty, nItems int) ([][]ItemQty, []int, error) {
	out := make([][]ItemQty, len(rows))
	units := make([]int, len(rows))
	for id, row := range rows {
		merged := make(map[int]int, len(row))
		for _, e := range row {
			if e.Item < 0 || e.Item >= nItems {
				return nil, nil, fmt.Errorf("%w: %s %d references item %d out of range [0,%d)", ErrInvalidInstance, kind, id, e.Item, nItems)
			}
			if e.Qty <= 0 {
				return nil, nil, fmt.Errorf("%w: %s %d has non-positive quantity %d for item %d", ErrInvalidInstance, kind, id, e.Qty, e.Item)
			}
			merged[e.Item] += e.Qty
		}
		norm := make([]ItemQty, 0, len(merged))
		for item, q := range merged {
			norm = append(norm, ItemQty{Item: item, Qty: q})
			units[id] += q
		}
		sort.Slice(norm, func(i, j int) bool { return norm[i].Item < norm[j].Item })
		out[id] = norm
	}
	return out, units, nil
}

// Validate re-checks the structural invariants of an instance.
func (inst *Instance) Validate() error {
	if inst == nil {
		return fmt.Errorf("%w: instance is nil", ErrInvalidInstance)
	}
	if inst.NOrders == 0 || len(inst.Orders) != inst.NOrders {
		return fmt.Errorf("%w: orders must be > 0 (got %d)", ErrInvalidInstance, inst.NOrders)
	}
	if inst.NAisles == 0 || len(inst.Aisles) != inst.NAisles {
		return fmt.Errorf("%w: aisles must be > 0 (got %d)", ErrInvalidInstance, inst.NAisles)
	}
	if inst.LB < 0 || inst.UB < inst.LB {
		return fmt.Errorf("%w: bounds must satisfy 0 <= LB <= UB (got %d, %d)", ErrInvalidInstance, inst.LB, inst.UB)
	}
	if len(inst.ItemAisles) != inst.NItems || inst.inc == nil {
		return fmt.Errorf("%w: indexes not built, use NewInstance", ErrInvalidInstance)
	}
	return nil
}

// Incidence returns the matrix form of the instance used by batch evaluation.
func (inst *Instance) Incidence() *Incidence { return inst.inc }

// ItemCount is the number of distinct items demanded by order o.
func (inst *Instance) ItemCount(o int) int { return len(inst.Orders[o]) }

// UnitsOf sums order units over a set of order ids.
func (inst *Instance) UnitsOf(orders []int) int {
	total := 0
	for _, o := range orders {
		total += inst.OrderUnits[o]
	}
	return total
}
