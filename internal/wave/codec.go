package wave

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// tokenReader reads whitespace separated integers.
type tokenReader struct {
	sc *bufio.Scanner
}

func newTokenReader(r io.Reader) *tokenReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)
	return &tokenReader{sc: sc}
}

func (t *tokenReader) int(what string) (int, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("unexpected end of input reading %s", what)
	}
	v, err := strconv.Atoi(t.sc.Text())
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", what, err)
	}
	return v, nil
}

// count reads a length prefix. Slices sized from it start small and grow
// with the data actually read, so a large count on a short input fails at
// end of input instead of allocating up front.
func (t *tokenReader) count(what string) (int, error) {
	n, err := t.int(what)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > MaxCount {
		return 0, fmt.Errorf("%w: %s %d out of range [0,%d]", ErrInvalidInstance, what, n, MaxCount)
	}
	return n, nil
}

func initialCap(n int) int { return min(n, 1024) }

func (t *tokenReader) rows(kind string, n int) ([][]ItemQty, error) {
	rows := make([][]ItemQty, 0, initialCap(n))
	for r := 0; r < n; r++ {
		k, err := t.count(fmt.Sprintf("%s %d entry count", kind, r))
		if err != nil {
			return nil, err
		}
		row := make([]ItemQty, 0, initialCap(k))
		for j := 0; j < k; j++ {
			var e ItemQty
			if e.Item, err = t.int(fmt.Sprintf("%s %d item", kind, r)); err != nil {
				return nil, err
			}
			if e.Qty, err = t.int(fmt.Sprintf("%s %d quantity", kind, r)); err != nil {
				return nil, err
			}
			row = append(row, e)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadInstance parses the text format: a header "orders items aisles", one
// line per order and per aisle ("k item qty ..."), then "LB UB".
func ReadInstance(r io.Reader) (*Instance, error) {
	t := newTokenReader(r)
	nOrders, err := t.count("order count")
	if err != nil {
		return nil, err
	}
	nItems, err := t.count("item count")
	if err != nil {
		return nil, err
	}
	nAisles, err := t.count("aisle count")
	if err != nil {
		return nil, err
	}
	orders, err := t.rows("order", nOrders)
	if err != nil {
		return nil, err
	}
	aisles, err := t.rows("aisle", nAisles)
	if err != nil {
		return nil, err
	}
	lb, err := t.int("wave lower bound")
	if err != nil {
		return nil, err
	}
	ub, err := t.int("wave upper bound")
	if err != nil {
		return nil, err
	}
	return NewInstance(nItems, orders, aisles, lb, ub)
}

// WriteSolution writes the order count and ids, then the aisle count and ids,
// one value per line.
func WriteSolution(w io.Writer, s Solution) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, len(s.Orders))
	for _, o := range s.Orders {
		fmt.Fprintln(bw, o)
	}
	fmt.Fprintln(bw, len(s.Aisles))
	for _, a := range s.Aisles {
		fmt.Fprintln(bw, a)
	}
	return bw.Flush()
}

// ReadSolution parses the WriteSolution format and evaluates it against inst.
func ReadSolution(r io.Reader, inst *Instance) (Solution, error) {
	t := newTokenReader(r)
	read := func(kind string, limit int) ([]int, error) {
		n, err := t.int(kind + " count")
		if err != nil {
			return nil, err
		}
		if n < 0 || n > limit {
			return nil, fmt.Errorf("%s count %d out of range [0,%d]", kind, n, limit)
		}
		ids := make([]int, n)
		for i := range ids {
			if ids[i], err = t.int(kind + " id"); err != nil {
				return nil, err
			}
			if ids[i] < 0 || ids[i] >= limit {
				return nil, fmt.Errorf("%s id %d out of range [0,%d)", kind, ids[i], limit)
			}
		}
		return SortedCopy(ids), nil
	}
	orders, err := read("order", inst.NOrders)
	if err != nil {
		return Solution{}, err
	}
	aisles, err := read("aisle", inst.NAisles)
	if err != nil {
		return Solution{}, err
	}
	return NewEvaluator(inst).Solution(orders, aisles), nil
}
