package wave

import "github.com/bits-and-blooms/bitset"

// Mask is a fixed-size bitset over dense ids (orders or aisles). Copies share
// bits; use Clone for an independent mask. The zero Mask is empty.
type Mask struct {
	n    int
	bits *bitset.BitSet
}

// NewMask returns an empty mask over [0, n).
func NewMask(n int) Mask {
	return Mask{n: n, bits: bitset.New(uint(n))}
}

// MaskOf returns a mask over [0, n) with the given ids set.
func MaskOf(n int, ids []int) Mask {
	m := NewMask(n)
	for _, id := range ids {
		m.Set(id)
	}
	return m
}

func (m Mask) Len() int { return m.n }

func (m Mask) Has(i int) bool { return m.bits != nil && m.bits.Test(uint(i)) }

func (m Mask) Set(i int) { m.bits.Set(uint(i)) }

func (m Mask) Clear(i int) { m.bits.Clear(uint(i)) }

// Reset clears every bit.
func (m Mask) Reset() {
	if m.bits != nil {
		m.bits.ClearAll()
	}
}

func (m Mask) Count() int {
	if m.bits == nil {
		return 0
	}
	return int(m.bits.Count())
}

func (m Mask) Clone() Mask {
	if m.bits == nil {
		return NewMask(m.n)
	}
	return Mask{n: m.n, bits: m.bits.Clone()}
}

// Equal reports whether both masks have the same size and bits.
func (m Mask) Equal(o Mask) bool {
	if m.n != o.n {
		return false
	}
	return m.Count() == o.Count() && (m.Count() == 0 || m.bits.Equal(o.bits))
}

// Indices returns the set ids in ascending order.
func (m Mask) Indices() []int {
	out := make([]int, 0, m.Count())
	m.ForEach(func(i int) { out = append(out, i) })
	return out
}

// ForEach calls fn for every set id in ascending order.
func (m Mask) ForEach(fn func(i int)) {
	if m.bits == nil {
		return
	}
	for i, ok := m.bits.NextSet(0); ok; i, ok = m.bits.NextSet(i + 1) {
		fn(int(i))
	}
}
