package wave

// csr is a compressed sparse row matrix with int quantities.
type csr struct {
	rowPtr []int
	col    []int
	val    []int
}

func newCSR(rows [][]ItemQty) csr {
	m := csr{rowPtr: make([]int, len(rows)+1)}
	for r, row := range rows {
		for _, e := range row {
			m.col = append(m.col, e.Item)
			m.val = append(m.val, e.Qty)
		}
		m.rowPtr[r+1] = len(m.col)
	}
	return m
}

// Incidence is the matrix form of an instance: order×item and aisle×item
// incidence in CSR layout plus per-item column summaries. It is immutable and
// safe to share; per-call state lives in a Workspace.
type Incidence struct {
	nOrders, nAisles, nItems int
	lb, ub                   int

	orderItem  csr
	aisleItem  csr
	orderUnits []int
	// itemAisleCount[i] is the column count of item i in aisleItem;
	// itemSoleAisle[i] is the aisle when that count is exactly one.
	itemAisleCount []int
	itemSoleAisle  []int
}

func newIncidence(inst *Instance) *Incidence {
	inc := &Incidence{
		nOrders:        inst.NOrders,
		nAisles:        inst.NAisles,
		nItems:         inst.NItems,
		lb:             inst.LB,
		ub:             inst.UB,
		orderItem:      newCSR(inst.Orders),
		aisleItem:      newCSR(inst.Aisles),
		orderUnits:     inst.OrderUnits,
		itemAisleCount: make([]int, inst.NItems),
		itemSoleAisle:  make([]int, inst.NItems),
	}
	for i := range inc.itemSoleAisle {
		inc.itemSoleAisle[i] = -1
	}
	for a := 0; a < inc.nAisles; a++ {
		for k := inc.aisleItem.rowPtr[a]; k < inc.aisleItem.rowPtr[a+1]; k++ {
			item := inc.aisleItem.col[k]
			inc.itemAisleCount[item]++
			inc.itemSoleAisle[item] = a
		}
	}
	return inc
}

// Workspace holds the dense vectors used by one matrix evaluation at a time.
type Workspace struct {
	demand []int
	remain []int
	supply []int
	gains  []int
	chosen Mask
}

func (inc *Incidence) NewWorkspace() *Workspace {
	return &Workspace{
		demand: make([]int, inc.nItems),
		remain: make([]int, inc.nItems),
		supply: make([]int, inc.nItems),
		gains:  make([]int, inc.nAisles),
		chosen: NewMask(inc.nAisles),
	}
}

// MaskEvaluation is the per-mask result of the matrix evaluator.
type MaskEvaluation struct {
	Units     int
	Aisles    Mask
	Covered   bool
	Feasible  bool
	Objective float64
}

// demandOf computes d = Aᵀx for the order mask x.
func (inc *Incidence) demandOf(ws *Workspace, orders Mask) int {
	for i := range ws.demand {
		ws.demand[i] = 0
	}
	units := 0
	orders.ForEach(func(o int) {
		units += inc.orderUnits[o]
		for k := inc.orderItem.rowPtr[o]; k < inc.orderItem.rowPtr[o+1]; k++ {
			ws.demand[inc.orderItem.col[k]] += inc.orderItem.val[k]
		}
	})
	return units
}

// CoverMask is the matrix form of Coverer.Cover and returns the same aisles.
func (inc *Incidence) CoverMask(ws *Workspace, orders Mask) (Mask, bool) {
	inc.demandOf(ws, orders)
	return inc.coverDemand(ws)
}

func (inc *Incidence) coverDemand(ws *Workspace) (Mask, bool) {
	copy(ws.remain, ws.demand)
	ws.chosen.Reset()
	uncovered := 0
	for _, r := range ws.remain {
		uncovered += r
	}
	aisles := NewMask(inc.nAisles)
	if uncovered == 0 {
		return aisles, true
	}

	take := func(a int) {
		ws.chosen.Set(a)
		aisles.Set(a)
		for k := inc.aisleItem.rowPtr[a]; k < inc.aisleItem.rowPtr[a+1]; k++ {
			item := inc.aisleItem.col[k]
			dec := min(ws.remain[item], inc.aisleItem.val[k])
			ws.remain[item] -= dec
			uncovered -= dec
		}
	}

	for item, r := range ws.remain {
		if r > 0 && inc.itemAisleCount[item] == 1 {
			if a := inc.itemSoleAisle[item]; !ws.chosen.Has(a) {
				take(a)
			}
		}
	}

	for uncovered > 0 {
		// g = min(A, r)·1 over every aisle row
		for a := 0; a < inc.nAisles; a++ {
			g := 0
			if !ws.chosen.Has(a) {
				for k := inc.aisleItem.rowPtr[a]; k < inc.aisleItem.rowPtr[a+1]; k++ {
					g += min(ws.remain[inc.aisleItem.col[k]], inc.aisleItem.val[k])
				}
			}
			ws.gains[a] = g
		}
		best, bestGain := -1, 0
		for a, g := range ws.gains {
			if g > bestGain {
				best, bestGain = a, g
			}
		}
		if best < 0 {
			break
		}
		take(best)
	}
	return aisles, uncovered == 0
}

// EvaluateMask covers the order mask and evaluates the result with the same
// rules as Evaluator.Evaluate.
func (inc *Incidence) EvaluateMask(ws *Workspace, orders Mask) MaskEvaluation {
	units := inc.demandOf(ws, orders)
	aisles, _ := inc.coverDemand(ws)

	for i := range ws.supply {
		ws.supply[i] = 0
	}
	aisles.ForEach(func(a int) {
		for k := inc.aisleItem.rowPtr[a]; k < inc.aisleItem.rowPtr[a+1]; k++ {
			ws.supply[inc.aisleItem.col[k]] += inc.aisleItem.val[k]
		}
	})
	covered := true
	for i, d := range ws.demand {
		if ws.supply[i] < d {
			covered = false
			break
		}
	}
	feasible := covered && units >= inc.lb && units <= inc.ub
	return MaskEvaluation{
		Units:     units,
		Aisles:    aisles,
		Covered:   covered,
		Feasible:  feasible,
		Objective: Objective(units, aisles.Count(), feasible),
	}
}
