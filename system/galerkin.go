package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/notargets/FEMAdjoint/fem"
	"github.com/notargets/FEMAdjoint/mesh"
	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when the assembled operator cannot be factored
var ErrSingular = errors.New("singular system matrix")

// Problem is the scalar problem -(Diffusion u')' + Reaction u = Source for
// one variable, with Dirichlet values on tagged boundary sides.
// Diffusion = 0 and Reaction = 1 gives the L2 projection of Source.
type Problem struct {
	Diffusion float64
	Reaction  float64
	Source    func(x float64) float64
	Dirichlet map[mesh.BoundaryID]float64
}

// GalerkinSolver solves each variable's Problem independently with a dense
// continuous Galerkin discretization. Variables without a Problem are set
// to zero.
type GalerkinSolver struct {
	Problems map[string]Problem
}

// NewGalerkinSolver returns a solver for the given per-variable problems
func NewGalerkinSolver(problems map[string]Problem) *GalerkinSolver {
	return &GalerkinSolver{Problems: problems}
}

func (gs *GalerkinSolver) Solve(ctx context.Context, s *System) error {
	disc := s.Disc
	fc, err := fem.NewContext(disc, nil)
	if err != nil {
		return err
	}
	for v, vr := range disc.Variables {
		if err := ctx.Err(); err != nil {
			return err
		}
		block := s.VariableSolution(v)
		prob, ok := gs.Problems[vr.Name]
		if !ok {
			block.Zero()
			continue
		}
		x, err := solveVariable(fc, v, prob)
		if err != nil {
			return fmt.Errorf("variable %s: %w", vr.Name, err)
		}
		block.CopyVec(x)
	}
	return nil
}

func solveVariable(fc *fem.Context, v int, prob Problem) (*mat.VecDense, error) {
	disc := fc.Discretization()
	dm := disc.DofMaps[v]
	n := dm.NDofs
	K := mat.NewDense(n, n, nil)
	F := mat.NewVecDense(n, nil)

	for _, id := range dm.Cells() {
		if err := fc.ReinitElement(id); err != nil {
			return nil, err
		}
		idx, err := dm.DofIndices(id)
		if err != nil {
			return nil, err
		}
		fe := fc.ElementFE(v)
		jxw, phi, dphi, xyz := fe.JxW(), fe.Phi(), fe.DPhi(), fe.XYZ()
		for qp := range jxw {
			f := 0.0
			if prob.Source != nil {
				f = prob.Source(xyz[qp][0])
			}
			for i, gi := range idx {
				F.SetVec(gi, F.AtVec(gi)+jxw[qp]*f*phi[i][qp])
				for j, gj := range idx {
					kij := prob.Diffusion*dphi[i][qp]*dphi[j][qp] + prob.Reaction*phi[i][qp]*phi[j][qp]
					K.Set(gi, gj, K.At(gi, gj)+jxw[qp]*kij)
				}
			}
		}
	}

	// Dirichlet rows are replaced by the identity; the end nodes of a GLL
	// element are its first and last local dofs.
	for _, id := range dm.Cells() {
		cell := disc.Mesh.Cell(id)
		idx, _ := dm.DofIndices(id)
		for side := 0; side < mesh.NumSides; side++ {
			for _, b := range cell.BoundaryIDs[side] {
				val, ok := prob.Dirichlet[b]
				if !ok {
					continue
				}
				g := idx[0]
				if side == mesh.RightSide {
					g = idx[len(idx)-1]
				}
				for j := 0; j < n; j++ {
					K.Set(g, j, 0)
				}
				K.Set(g, g, 1)
				F.SetVec(g, val)
			}
		}
	}

	var x mat.VecDense
	if err := x.SolveVec(K, F); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return &x, nil
}
