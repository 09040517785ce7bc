package system

import (
	"fmt"

	"github.com/notargets/FEMAdjoint/fem"
	"gonum.org/v1/gonum/mat"
)

// AdjointRHS stores dQ_q/du for every (qoi, variable) pair, one vector per
// variable over that variable's dofs. Assembly only ever adds into it.
type AdjointRHS struct {
	disc *fem.Discretization
	vecs [][]*mat.VecDense // [qoi][variable]
}

// NewAdjointRHS allocates zero vectors for nQoI quantities over disc
func NewAdjointRHS(disc *fem.Discretization, nQoI int) *AdjointRHS {
	a := &AdjointRHS{disc: disc, vecs: make([][]*mat.VecDense, nQoI)}
	for q := range a.vecs {
		a.vecs[q] = make([]*mat.VecDense, disc.NumVariables())
		for v := range a.vecs[q] {
			a.vecs[q][v] = mat.NewVecDense(disc.DofMaps[v].NDofs, nil)
		}
	}
	return a
}

// NumQoIs returns the number of quantities stored
func (a *AdjointRHS) NumQoIs() int { return len(a.vecs) }

// Vector returns the derivative of QoI q with respect to variable v's dofs
func (a *AdjointRHS) Vector(q, v int) *mat.VecDense { return a.vecs[q][v] }

// AddLocal scatters an element vector into variable v's dofs
func (a *AdjointRHS) AddLocal(q, v int, dofs []int, local []float64) {
	vec := a.vecs[q][v]
	for i, gi := range dofs {
		vec.SetVec(gi, vec.AtVec(gi)+local[i])
	}
}

// Add accumulates another store of the same shape into a
func (a *AdjointRHS) Add(o *AdjointRHS) error {
	if len(o.vecs) != len(a.vecs) {
		return fmt.Errorf("adjoint rhs shape mismatch: %d vs %d qois", len(a.vecs), len(o.vecs))
	}
	for q := range a.vecs {
		for v := range a.vecs[q] {
			a.vecs[q][v].AddVec(a.vecs[q][v], o.vecs[q][v])
		}
	}
	return nil
}

// Global returns the derivative of QoI q stacked over all variables, laid
// out like the system solution
func (a *AdjointRHS) Global(q int) *mat.VecDense {
	out := mat.NewVecDense(a.disc.NumDofs(), nil)
	for v, vec := range a.vecs[q] {
		off := a.disc.Offset(v)
		for i := 0; i < vec.Len(); i++ {
			out.SetVec(off+i, vec.AtVec(i))
		}
	}
	return out
}
