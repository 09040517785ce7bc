package fem

import (
	"fmt"

	"github.com/notargets/FEMAdjoint/mesh"
)

// DofMap numbers the continuous Lagrange degrees of freedom of one variable.
// Active cells are taken left to right; local node j of the k-th cell maps to
// global dof k*Degree + j, so neighbors share their common vertex dof.
type DofMap struct {
	Degree int
	NDofs  int

	cells   []mesh.CellID
	ordinal map[mesh.CellID]int
}

// NewDofMap numbers the active cells of m for a degree p variable
func NewDofMap(m *mesh.Mesh, degree int) (*DofMap, error) {
	if degree < 1 {
		return nil, fmt.Errorf("variable degree must be >= 1, got %d", degree)
	}
	cells := m.ActiveCells()
	for k := 1; k < len(cells); k++ {
		if m.Cell(cells[k-1]).X1 != m.Cell(cells[k]).X0 {
			return nil, fmt.Errorf("%w: active cells %d and %d are not adjacent",
				mesh.ErrInvalidMesh, cells[k-1], cells[k])
		}
	}
	dm := &DofMap{
		Degree:  degree,
		NDofs:   len(cells)*degree + 1,
		cells:   cells,
		ordinal: make(map[mesh.CellID]int, len(cells)),
	}
	for k, id := range cells {
		dm.ordinal[id] = k
	}
	return dm, nil
}

// Cells returns the active cells in dof order
func (dm *DofMap) Cells() []mesh.CellID { return dm.cells }

// DofIndices returns the variable-local dof indices of a cell's nodes
func (dm *DofMap) DofIndices(id mesh.CellID) ([]int, error) {
	k, ok := dm.ordinal[id]
	if !ok {
		return nil, fmt.Errorf("cell %d is not active in this dof map", id)
	}
	idx := make([]int, dm.Degree+1)
	for j := range idx {
		idx[j] = k*dm.Degree + j
	}
	return idx, nil
}
