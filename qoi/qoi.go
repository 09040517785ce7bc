package qoi

import (
	"fmt"
	"sort"

	"github.com/notargets/FEMAdjoint/fem"
)

// QoIAllocator is the part of a system an evaluator sizes QoI storage on
type QoIAllocator interface {
	InitQoIs(n int)
}

// Evaluator is a per-problem quantity of interest: a boundary functional of
// the solution together with its derivative with respect to every local dof.
// SideQoI and SideQoIDerivative must stay derivative-matched; a change to
// one integrand has to be mirrored in the other.
type Evaluator interface {
	// InitQoICount declares how many QoIs the system stores
	InitQoICount(sys QoIAllocator) error
	// InitContext declares on c which basis data the side and element
	// integrands read, once per assembly pass
	InitContext(c fem.AssemblyContext) error
	// SideQoI adds the current side's contribution into c.QoIs()
	SideQoI(c fem.AssemblyContext, qois QoISet)
	// SideQoIDerivative adds the current side's contribution into
	// c.QoIDerivatives
	SideQoIDerivative(c fem.AssemblyContext, qois QoISet)
}

// ElementEvaluator is implemented by evaluators with interior contributions
type ElementEvaluator interface {
	ElementQoI(c fem.AssemblyContext, qois QoISet)
	ElementQoIDerivative(c fem.AssemblyContext, qois QoISet)
}

// Joiner is implemented by evaluators whose partial QoI values do not
// combine by plain summation
type Joiner interface {
	ThreadJoin(dst, src []float64, qois QoISet)
}

// ThreadJoin merges src into dst with the evaluator's Joiner, or adds the
// requested entries when it has none
func ThreadJoin(ev Evaluator, dst, src []float64, qois QoISet) {
	if j, ok := ev.(Joiner); ok {
		j.ThreadJoin(dst, src, qois)
		return
	}
	for q := range dst {
		if qois.Has(q) {
			dst[q] += src[q]
		}
	}
}

// QoISet selects which QoIs an assembly pass computes. The zero value
// selects every QoI.
type QoISet struct {
	selected map[int]bool
}

// AllQoIs selects every QoI
func AllQoIs() QoISet { return QoISet{} }

// NewQoISet selects the listed QoIs only
func NewQoISet(indices ...int) QoISet {
	s := QoISet{selected: make(map[int]bool, len(indices))}
	for _, q := range indices {
		s.selected[q] = true
	}
	return s
}

// All reports whether every QoI is selected
func (s QoISet) All() bool { return s.selected == nil }

// Has reports whether QoI q is selected
func (s QoISet) Has(q int) bool {
	if s.selected == nil {
		return q >= 0
	}
	return s.selected[q]
}

func (s QoISet) String() string {
	if s.All() {
		return "all"
	}
	idx := make([]int, 0, len(s.selected))
	for q := range s.selected {
		idx = append(idx, q)
	}
	sort.Ints(idx)
	return fmt.Sprint(idx)
}
