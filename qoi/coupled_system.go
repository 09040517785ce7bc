package qoi

import (
	"errors"
	"fmt"

	"github.com/notargets/FEMAdjoint/fem"
	"github.com/notargets/FEMAdjoint/mesh"
)

// OutletID is the boundary id of the outlet
const OutletID mesh.BoundaryID = 2

// CoupledSystemQoI is the negative flux -u*C through the left half of the
// outlet, for a flow system with velocity u, concentration C and optionally
// pressure p.
//
// The QoISet argument is ignored: the system has a single QoI and it is
// always computed.
type CoupledSystemQoI struct {
	uVar, cVar, pVar int
}

// NewCoupledSystemQoI returns an evaluator whose variables are resolved by
// InitContext
func NewCoupledSystemQoI() *CoupledSystemQoI {
	return &CoupledSystemQoI{uVar: -1, cVar: -1, pVar: -1}
}

func (q *CoupledSystemQoI) InitQoICount(sys QoIAllocator) error {
	sys.InitQoIs(1)
	return nil
}

func (q *CoupledSystemQoI) InitContext(c fem.AssemblyContext) (err error) {
	if q.uVar, err = c.VariableNumber("u"); err != nil {
		return fmt.Errorf("coupled system qoi: %w", err)
	}
	if q.cVar, err = c.VariableNumber("C"); err != nil {
		return fmt.Errorf("coupled system qoi: %w", err)
	}
	q.pVar = -1
	if p, perr := c.VariableNumber("p"); perr == nil {
		q.pVar = p
	} else if !errors.Is(perr, fem.ErrUnknownVariable) {
		return perr
	}

	needs := fem.NewNeeds()
	needs.Side[q.uVar] = fem.JxW | fem.Phi | fem.XYZ
	needs.Side[q.cVar] = fem.Phi
	needs.Element[q.uVar] = fem.Nothing
	needs.Element[q.cVar] = fem.Nothing
	if q.pVar >= 0 {
		needs.Side[q.pVar] = fem.Nothing
		needs.Element[q.pVar] = fem.Nothing
	}
	c.SetNeeds(needs)
	return nil
}

func (q *CoupledSystemQoI) SideQoI(c fem.AssemblyContext, _ QoISet) {
	if !c.HasSideBoundaryID(OutletID) {
		return
	}
	fe := c.SideFE(q.uVar)
	jxw, xyz := fe.JxW(), fe.XYZ()
	qois := c.QoIs()
	for qp := 0; qp < c.SideQRule().NPoints(); qp++ {
		if xyz[qp][0] >= 0 {
			continue
		}
		u := c.SideValue(q.uVar, qp)
		C := c.SideValue(q.cVar, qp)
		qois[0] += jxw[qp] * -u * C
	}
}

func (q *CoupledSystemQoI) SideQoIDerivative(c fem.AssemblyContext, _ QoISet) {
	if !c.HasSideBoundaryID(OutletID) {
		return
	}
	uFE, cFE := c.SideFE(q.uVar), c.SideFE(q.cVar)
	jxw, xyz := uFE.JxW(), uFE.XYZ()
	phiU, phiC := uFE.Phi(), cFE.Phi()
	Qu := c.QoIDerivatives(0, q.uVar)
	QC := c.QoIDerivatives(0, q.cVar)
	nU, nC := c.NDofIndices(q.uVar), c.NDofIndices(q.cVar)
	for qp := 0; qp < c.SideQRule().NPoints(); qp++ {
		if xyz[qp][0] >= 0 {
			continue
		}
		u := c.SideValue(q.uVar, qp)
		C := c.SideValue(q.cVar, qp)
		for i := 0; i < nU; i++ {
			Qu[i] += jxw[qp] * -phiU[i][qp] * C
		}
		for i := 0; i < nC; i++ {
			QC[i] += jxw[qp] * phiC[i][qp] * -u
		}
	}
}
