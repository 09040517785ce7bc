package element

import (
	"fmt"
	"sync"

	"github.com/notargets/FEMAdjoint/element/library/gonudg"
	"gonum.org/v1/gonum/mat"
)

// LineLagrange is the nodal Lagrange element on the reference line [-1,1]
// with Gauss-Lobatto-Legendre nodes. Node 0 sits at r=-1 and node N at r=1,
// so face 0 is the left end and face 1 the right end.
type LineLagrange struct {
	N    int
	R    []float64
	V    *mat.Dense
	Vinv *mat.Dense
	Dr   *mat.Dense
}

var (
	_ ReferenceElement = (*LineLagrange)(nil)
	_ BasisEvaluator   = (*LineLagrange)(nil)
)

var (
	lineCache   = map[int]*LineLagrange{}
	lineCacheMu sync.Mutex
)

// NewLineLagrange returns the (shared, immutable) reference line of order N
func NewLineLagrange(N int) (*LineLagrange, error) {
	if N < 1 {
		return nil, fmt.Errorf("line element order must be >= 1, got %d", N)
	}
	lineCacheMu.Lock()
	defer lineCacheMu.Unlock()
	if el, ok := lineCache[N]; ok {
		return el, nil
	}

	r := gonudg.JacobiGL(0, 0, N)
	V := gonudg.Vandermonde1D(N, r)
	Vinv := mat.NewDense(N+1, N+1, nil)
	if err := Vinv.Inverse(V); err != nil {
		return nil, fmt.Errorf("order %d Vandermonde is singular: %w", N, err)
	}
	el := &LineLagrange{
		N:    N,
		R:    r,
		V:    V,
		Vinv: Vinv,
		Dr:   gonudg.Dmatrix1D(N, r, V),
	}
	lineCache[N] = el
	return el, nil
}

func (el *LineLagrange) Np() int { return el.N + 1 }

// Phi returns the nodal basis values at points r, [len(r) × Np]
func (el *LineLagrange) Phi(r []float64) *mat.Dense {
	return el.nodal(gonudg.Vandermonde1D(el.N, r))
}

// PhiR returns d(phi)/dr at points r
func (el *LineLagrange) PhiR(r []float64) *mat.Dense {
	return el.nodal(gonudg.GradVandermonde1D(el.N, r))
}

// PhiRR returns d²(phi)/dr² at points r
func (el *LineLagrange) PhiRR(r []float64) *mat.Dense {
	return el.nodal(gonudg.Grad2Vandermonde1D(el.N, r))
}

func (el *LineLagrange) nodal(modal *mat.Dense) *mat.Dense {
	rows, _ := modal.Dims()
	out := mat.NewDense(rows, el.Np(), nil)
	out.Mul(modal, el.Vinv)
	return out
}

func (el *LineLagrange) GetProperties() ElementProperties {
	return ElementProperties{
		Name:       fmt.Sprintf("Lagrange Line Order %d", el.N),
		ShortName:  fmt.Sprintf("Line%d", el.N),
		Type:       Line,
		Order:      el.N,
		Np:         el.N + 1,
		NFp:        1,
		NVp:        2,
		NIp:        el.N - 1,
		NFaces:     2,
		Dimensions: D1,
	}
}

func (el *LineLagrange) GetReferenceGeometry() ReferenceGeometry {
	interior := make([]int, 0, el.N-1)
	for i := 1; i < el.N; i++ {
		interior = append(interior, i)
	}
	return ReferenceGeometry{
		R:              append([]float64(nil), el.R...),
		VertexPoints:   []int{0, el.N},
		FacePoints:     [][]int{{0}, {el.N}},
		InteriorPoints: interior,
	}
}

func (el *LineLagrange) GetNodalModal() NodalModalMatrices {
	// M = (V V^T)^-1 for an orthonormal modal basis
	var VVt mat.Dense
	VVt.Mul(el.V, el.V.T())
	var M mat.Dense
	if err := M.Inverse(&VVt); err != nil {
		panic(err)
	}
	return NodalModalMatrices{
		V:    el.V,
		Vinv: el.Vinv,
		M:    &M,
		Minv: &VVt,
	}
}

func (el *LineLagrange) GetReferenceOperators() ReferenceOperators {
	return ReferenceOperators{Dr: el.Dr}
}
