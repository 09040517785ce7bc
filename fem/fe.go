package fem

import (
	"strings"

	"github.com/notargets/FEMAdjoint/element/library/gonudg"
	"github.com/notargets/FEMAdjoint/mesh"
)

// Quantity is a set of basis quantities a context computes for a variable
type Quantity uint8

const (
	JxW   Quantity = 1 << iota // quadrature weight times Jacobian
	Phi                        // basis values
	DPhi                       // physical first derivatives
	D2Phi                      // physical second derivatives
	XYZ                        // physical quadrature point coordinates
)

// Nothing declares that a variable's basis data will not be read
const Nothing Quantity = 0

// AllQuantities is computed for variables that declare no needs
const AllQuantities = JxW | Phi | DPhi | D2Phi | XYZ

func (q Quantity) Has(o Quantity) bool { return q&o == o }

func (q Quantity) String() string {
	if q == Nothing {
		return "nothing"
	}
	var parts []string
	for _, p := range []struct {
		q    Quantity
		name string
	}{{JxW, "JxW"}, {Phi, "phi"}, {DPhi, "dphi"}, {D2Phi, "d2phi"}, {XYZ, "xyz"}} {
		if q.Has(p.q) {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "|")
}

// Needs declares, per variable index, which quantities the element and side
// bundles must provide. A variable absent from a map gets AllQuantities.
// Needs only control what is precomputed: anything read later is computed
// on demand, so a missing or extra declaration never changes results.
type Needs struct {
	Element map[int]Quantity
	Side    map[int]Quantity
}

// NewNeeds returns an empty descriptor
func NewNeeds() Needs {
	return Needs{Element: map[int]Quantity{}, Side: map[int]Quantity{}}
}

// ElementQuantities returns the declared element quantities of variable v
func (n Needs) ElementQuantities(v int) Quantity {
	if q, ok := n.Element[v]; ok {
		return q
	}
	return AllQuantities
}

// SideQuantities returns the declared side quantities of variable v
func (n Needs) SideQuantities(v int) Quantity {
	if q, ok := n.Side[v]; ok {
		return q
	}
	return AllQuantities
}

// QRule is a quadrature rule on the reference cell or side
type QRule struct {
	Points  []float64
	Weights []float64
}

// NPoints returns the number of quadrature points
func (q QRule) NPoints() int { return len(q.Points) }

// NewGaussRule returns the n point Gauss-Legendre rule on [-1,1]
func NewGaussRule(n int) QRule {
	x, w := gonudg.GaussLegendre(n)
	return QRule{Points: x, Weights: w}
}

// FE is the quadrature-point bundle of one variable on the current element
// or side: phi[i][qp] style indexing, as assembly loops expect.
type FE struct {
	precomputed Quantity
	have        Quantity

	jxw   []float64
	phi   [][]float64
	dphi  [][]float64
	d2phi [][]float64
	xyz   []mesh.Point

	fill func(f *FE, q Quantity)
}

// NewFE builds a fully populated bundle from raw data, for callers that
// drive assembly without a discretization
func NewFE(jxw []float64, phi [][]float64, xyz []mesh.Point) *FE {
	f := &FE{jxw: jxw, phi: phi, xyz: xyz}
	if jxw != nil {
		f.have |= JxW
	}
	if phi != nil {
		f.have |= Phi
	}
	if xyz != nil {
		f.have |= XYZ
	}
	f.precomputed = f.have
	return f
}

// Computed reports the quantities that were precomputed at reinit
func (f *FE) Computed() Quantity { return f.precomputed }

func (f *FE) ensure(q Quantity) {
	if f.have.Has(q) || f.fill == nil {
		return
	}
	f.fill(f, q)
	f.have |= q
}

func (f *FE) JxW() []float64 {
	f.ensure(JxW)
	return f.jxw
}

func (f *FE) Phi() [][]float64 {
	f.ensure(Phi)
	return f.phi
}

func (f *FE) DPhi() [][]float64 {
	f.ensure(DPhi)
	return f.dphi
}

func (f *FE) D2Phi() [][]float64 {
	f.ensure(D2Phi)
	return f.d2phi
}

func (f *FE) XYZ() []mesh.Point {
	f.ensure(XYZ)
	return f.xyz
}
