package fem

import (
	"fmt"

	"github.com/notargets/FEMAdjoint/element"
	"github.com/notargets/FEMAdjoint/mesh"
	"gonum.org/v1/gonum/mat"
)

// AssemblyContext is what a per-element / per-side integrand sees: basis
// data for the current element or side, the interpolated solution, boundary
// tags, and the caller-owned QoI accumulators bound for this assembly call.
type AssemblyContext interface {
	// VariableNumber resolves a variable name to its index
	VariableNumber(name string) (int, error)
	// SetNeeds declares which basis quantities will be read
	SetNeeds(n Needs)

	ElementFE(v int) *FE
	SideFE(v int) *FE
	NDofIndices(v int) int
	ElementQRule() QRule
	SideQRule() QRule

	ElementValue(v, qp int) float64
	SideValue(v, qp int) float64
	HasSideBoundaryID(id mesh.BoundaryID) bool

	// QoIs is the accumulator for this pass; contributions are added, never assigned
	QoIs() []float64
	// QoIDerivatives is the local adjoint right hand side of (qoi, variable)
	// on the current element, of length NDofIndices(v)
	QoIDerivatives(q, v int) []float64
}

type tabulation struct {
	phi, phiR, phiRR *mat.Dense
}

// Context is the AssemblyContext of a Discretization and a solution vector
type Context struct {
	disc     *Discretization
	solution mat.Vector
	needs    Needs

	elemRule QRule
	sideRule QRule
	elemTab  []tabulation
	sideTab  [][mesh.NumSides]tabulation

	cell   *mesh.Cell
	side   int
	coeffs [][]float64
	elemFE []*FE
	sideFE []*FE

	qois      []float64
	qoiDerivs [][][]float64
}

// NewContext creates a context over disc reading the global solution vector.
// The element rule integrates polynomials of degree 2*maxDegree+1 exactly.
func NewContext(disc *Discretization, solution mat.Vector) (*Context, error) {
	if solution != nil && solution.Len() != disc.NumDofs() {
		return nil, fmt.Errorf("solution length %d does not match %d dofs",
			solution.Len(), disc.NumDofs())
	}
	maxDeg := 1
	for _, v := range disc.Variables {
		if v.Degree > maxDeg {
			maxDeg = v.Degree
		}
	}
	c := &Context{
		disc:     disc,
		solution: solution,
		needs:    NewNeeds(),
		sideRule: QRule{Points: []float64{0}, Weights: []float64{1}},
		coeffs:   make([][]float64, disc.NumVariables()),
		elemFE:   make([]*FE, disc.NumVariables()),
		sideFE:   make([]*FE, disc.NumVariables()),
		side:     -1,
	}
	c.SetElementQRule(NewGaussRule(maxDeg + 1))
	c.sideTab = make([][mesh.NumSides]tabulation, disc.NumVariables())
	for v, el := range disc.Elements {
		for s, r := range []float64{-1, 1} {
			c.sideTab[v][s] = tabulateBasis(el, []float64{r})
		}
	}
	return c, nil
}

// SetElementQRule replaces the element quadrature rule
func (c *Context) SetElementQRule(rule QRule) {
	c.elemRule = rule
	c.elemTab = make([]tabulation, c.disc.NumVariables())
	for v, el := range c.disc.Elements {
		c.elemTab[v] = tabulateBasis(el, rule.Points)
	}
}

func tabulateBasis(el element.BasisEvaluator, r []float64) tabulation {
	return tabulation{phi: el.Phi(r), phiR: el.PhiR(r), phiRR: el.PhiRR(r)}
}

// Discretization returns the discretization the context assembles over
func (c *Context) Discretization() *Discretization { return c.disc }

// BindQoIs attaches the caller's accumulator for the duration of an assembly
// pass and sizes the local derivative buffers for nQoI quantities
func (c *Context) BindQoIs(qois []float64) {
	c.qois = qois
	c.qoiDerivs = make([][][]float64, len(qois))
	for q := range qois {
		c.qoiDerivs[q] = make([][]float64, c.disc.NumVariables())
		for v := range c.qoiDerivs[q] {
			c.qoiDerivs[q][v] = make([]float64, c.disc.DofMaps[v].Degree+1)
		}
	}
}

func (c *Context) VariableNumber(name string) (int, error) {
	return c.disc.VariableNumber(name)
}

func (c *Context) SetNeeds(n Needs) { c.needs = n }

// Needs returns the declared needs
func (c *Context) Needs() Needs { return c.needs }

// Cell returns the current element
func (c *Context) Cell() *mesh.Cell { return c.cell }

// Side returns the current side, or -1 on the element interior
func (c *Context) Side() int { return c.side }

// ReinitElement moves the context to an active cell: gathers the local
// solution, precomputes the declared element quantities and zeroes the
// local derivative buffers
func (c *Context) ReinitElement(id mesh.CellID) error {
	cell := c.disc.Mesh.Cell(id)
	if cell == nil || !cell.Active() {
		return fmt.Errorf("cell %d is not an active cell", id)
	}
	c.cell = cell
	c.side = -1
	for v := range c.disc.Variables {
		idx, err := c.disc.GlobalDofIndices(id, v)
		if err != nil {
			return err
		}
		local := c.coeffs[v][:0]
		for _, gi := range idx {
			val := 0.0
			if c.solution != nil {
				val = c.solution.AtVec(gi)
			}
			local = append(local, val)
		}
		c.coeffs[v] = local

		f := &FE{fill: c.elementFill(v, *cell)}
		f.precomputed = c.needs.ElementQuantities(v)
		f.ensure(f.precomputed)
		c.elemFE[v] = f
		c.sideFE[v] = nil
	}
	for q := range c.qoiDerivs {
		for v := range c.qoiDerivs[q] {
			clear(c.qoiDerivs[q][v])
		}
	}
	return nil
}

// ReinitSide moves the context to a side of the current element
func (c *Context) ReinitSide(side int) error {
	if c.cell == nil {
		return fmt.Errorf("side reinit before element reinit")
	}
	if side < 0 || side >= mesh.NumSides {
		return fmt.Errorf("invalid side %d", side)
	}
	c.side = side
	for v := range c.disc.Variables {
		f := &FE{fill: c.sideFill(v, *c.cell, side)}
		f.precomputed = c.needs.SideQuantities(v)
		f.ensure(f.precomputed)
		c.sideFE[v] = f
	}
	return nil
}

func (c *Context) elementFill(v int, cell mesh.Cell) func(f *FE, q Quantity) {
	return func(f *FE, q Quantity) {
		tab := c.elemTab[v]
		nq, np := c.elemRule.NPoints(), c.disc.Elements[v].Np()
		h := cell.H()
		jac := 2.0 / h
		if q.Has(JxW) && !f.have.Has(JxW) {
			f.jxw = make([]float64, nq)
			for qp, w := range c.elemRule.Weights {
				f.jxw[qp] = w * h / 2
			}
		}
		if q.Has(XYZ) && !f.have.Has(XYZ) {
			f.xyz = make([]mesh.Point, nq)
			for qp, r := range c.elemRule.Points {
				f.xyz[qp] = mesh.Point{cell.X0 + (r+1)/2*h}
			}
		}
		if q.Has(Phi) && !f.have.Has(Phi) {
			f.phi = tabulate(tab.phi, np, nq, 1)
		}
		if q.Has(DPhi) && !f.have.Has(DPhi) {
			f.dphi = tabulate(tab.phiR, np, nq, jac)
		}
		if q.Has(D2Phi) && !f.have.Has(D2Phi) {
			f.d2phi = tabulate(tab.phiRR, np, nq, jac*jac)
		}
		f.have |= q
	}
}

func (c *Context) sideFill(v int, cell mesh.Cell, side int) func(f *FE, q Quantity) {
	return func(f *FE, q Quantity) {
		tab := c.sideTab[v][side]
		np := c.disc.Elements[v].Np()
		jac := 2.0 / cell.H()
		if q.Has(JxW) && !f.have.Has(JxW) {
			f.jxw = []float64{1}
		}
		if q.Has(XYZ) && !f.have.Has(XYZ) {
			x := cell.X0
			if side == mesh.RightSide {
				x = cell.X1
			}
			f.xyz = []mesh.Point{{x}}
		}
		if q.Has(Phi) && !f.have.Has(Phi) {
			f.phi = tabulate(tab.phi, np, 1, 1)
		}
		if q.Has(DPhi) && !f.have.Has(DPhi) {
			f.dphi = tabulate(tab.phiR, np, 1, jac)
		}
		if q.Has(D2Phi) && !f.have.Has(D2Phi) {
			f.d2phi = tabulate(tab.phiRR, np, 1, jac*jac)
		}
		f.have |= q
	}
}

// tabulate transposes a [points × basis] matrix into [basis][points], scaled
func tabulate(m *mat.Dense, np, nq int, scale float64) [][]float64 {
	out := make([][]float64, np)
	for i := range out {
		out[i] = make([]float64, nq)
		for qp := 0; qp < nq; qp++ {
			out[i][qp] = scale * m.At(qp, i)
		}
	}
	return out
}

func (c *Context) ElementFE(v int) *FE { return c.elemFE[v] }

func (c *Context) SideFE(v int) *FE { return c.sideFE[v] }

func (c *Context) NDofIndices(v int) int { return c.disc.DofMaps[v].Degree + 1 }

func (c *Context) ElementQRule() QRule { return c.elemRule }

func (c *Context) SideQRule() QRule { return c.sideRule }

// LocalSolution returns the current element's coefficients of variable v
func (c *Context) LocalSolution(v int) []float64 { return c.coeffs[v] }

func (c *Context) ElementValue(v, qp int) float64 {
	return interpolate(c.coeffs[v], c.elemFE[v].Phi(), qp)
}

// ElementGradient returns du/dx of variable v at an element quadrature point
func (c *Context) ElementGradient(v, qp int) float64 {
	return interpolate(c.coeffs[v], c.elemFE[v].DPhi(), qp)
}

func (c *Context) SideValue(v, qp int) float64 {
	return interpolate(c.coeffs[v], c.sideFE[v].Phi(), qp)
}

func interpolate(coeffs []float64, phi [][]float64, qp int) float64 {
	var u float64
	for i, ci := range coeffs {
		u += ci * phi[i][qp]
	}
	return u
}

func (c *Context) HasSideBoundaryID(id mesh.BoundaryID) bool {
	if c.cell == nil || c.side < 0 {
		return false
	}
	for _, b := range c.cell.BoundaryIDs[c.side] {
		if b == id {
			return true
		}
	}
	return false
}

func (c *Context) QoIs() []float64 { return c.qois }

func (c *Context) QoIDerivatives(q, v int) []float64 { return c.qoiDerivs[q][v] }
