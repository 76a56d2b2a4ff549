package wave

// Evaluation is the outcome of checking one (orders, aisles) pair.
type Evaluation struct {
	Units     int
	InBounds  bool
	Covered   bool
	Feasible  bool
	Objective float64
}

// Evaluator checks feasibility and computes the objective. It keeps scratch
// buffers between calls and must not be shared across goroutines.
type Evaluator struct {
	inst    *Instance
	demand  []int
	supply  []int
	touched []int
}

func NewEvaluator(inst *Instance) *Evaluator {
	return &Evaluator{
		inst:   inst,
		demand: make([]int, inst.NItems),
		supply: make([]int, inst.NItems),
	}
}

// Evaluate applies the bounds test and the aggregate per-item coverage test.
// Coverage is aggregate over all selected orders, not enforced order by order.
func (e *Evaluator) Evaluate(orders, aisles []int) Evaluation {
	inst := e.inst
	var ev Evaluation
	for _, o := range orders {
		ev.Units += inst.OrderUnits[o]
		for _, it := range inst.Orders[o] {
			if e.demand[it.Item] == 0 {
				e.touched = append(e.touched, it.Item)
			}
			e.demand[it.Item] += it.Qty
		}
	}
	for _, a := range aisles {
		for _, it := range inst.Aisles[a] {
			e.supply[it.Item] += it.Qty
		}
	}
	ev.Covered = true
	for _, item := range e.touched {
		if e.supply[item] < e.demand[item] {
			ev.Covered = false
			break
		}
	}
	// reset scratch
	for _, item := range e.touched {
		e.demand[item] = 0
	}
	e.touched = e.touched[:0]
	for _, a := range aisles {
		for _, it := range inst.Aisles[a] {
			e.supply[it.Item] = 0
		}
	}

	ev.InBounds = ev.Units >= inst.LB && ev.Units <= inst.UB
	ev.Feasible = ev.InBounds && ev.Covered
	ev.Objective = Objective(ev.Units, len(aisles), ev.Feasible)
	return ev
}

// Solution builds a Solution value from sorted order and aisle sets.
func (e *Evaluator) Solution(orders, aisles []int) Solution {
	ev := e.Evaluate(orders, aisles)
	return Solution{
		Orders:     orders,
		Aisles:     aisles,
		TotalUnits: ev.Units,
		Feasible:   ev.Feasible,
		Objective:  ev.Objective,
	}
}

// Supply accumulates the per-item stock of the given aisles into dst
// (len NItems). Callers own dst and must zero it themselves.
func (inst *Instance) Supply(dst []int, aisles []int) {
	for _, a := range aisles {
		for _, it := range inst.Aisles[a] {
			dst[it.Item] += it.Qty
		}
	}
}
