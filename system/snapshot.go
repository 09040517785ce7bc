package system

import (
	"fmt"

	"github.com/notargets/FEMAdjoint/fem"
	"github.com/notargets/FEMAdjoint/mesh"
	"gonum.org/v1/gonum/mat"
)

// Snapshot is a deep copy of the state an estimator must leave untouched:
// the mesh (refinement level included), the variable degrees and the
// solution values
type Snapshot struct {
	Mesh      *mesh.Mesh
	Variables []fem.Variable
	Solution  []float64
}

// Snapshot captures the current state of the system
func (s *System) Snapshot() *Snapshot {
	snap := &Snapshot{
		Mesh:      s.Disc.Mesh.Clone(),
		Variables: append([]fem.Variable(nil), s.Disc.Variables...),
	}
	if s.Solution != nil {
		snap.Solution = append([]float64(nil), s.Solution.RawVector().Data...)
	}
	return snap
}

// Restore puts the system back into a snapshotted state. The mesh is
// restored in place so systems sharing it keep sharing it. A mesh that is
// unchanged, or only refined since the snapshot, keeps its cells: later
// refinements are coarsened away and existing *mesh.Cell pointers stay valid.
func (s *System) Restore(snap *Snapshot) error {
	live := s.Disc.Mesh
	rebuild := true
	switch {
	case len(live.Cells) == len(snap.Mesh.Cells) && live.Extends(snap.Mesh):
		rebuild = false
	case live.Extends(snap.Mesh):
		if err := live.Coarsen(len(snap.Mesh.Cells)); err != nil {
			return fmt.Errorf("restoring system %s: %w", s.Name, err)
		}
	default:
		*live = *snap.Mesh.Clone()
	}

	rebuild = rebuild || len(snap.Variables) != len(s.Disc.Variables)
	for v := range snap.Variables {
		if rebuild || snap.Variables[v] != s.Disc.Variables[v] {
			rebuild = true
			break
		}
	}
	if rebuild || s.Disc.NumDofs() != len(snap.Solution) {
		disc, err := fem.NewDiscretization(s.Disc.Mesh, snap.Variables...)
		if err != nil {
			return fmt.Errorf("restoring system %s: %w", s.Name, err)
		}
		s.Disc = disc
	}
	if snap.Solution == nil {
		s.Solution = nil
		return nil
	}
	if s.Solution == nil || s.Solution.Len() != len(snap.Solution) {
		s.Solution = mat.NewVecDense(len(snap.Solution), nil)
	}
	copy(s.Solution.RawVector().Data, snap.Solution)
	return nil
}
