package mesh

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUniformMesh(t *testing.T) {
	m, err := NewUniformMesh(-1, 1, 4, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, m.NumActive())
	assert.Equal(t, []BoundaryID{1}, m.Cells[0].BoundaryIDs[LeftSide])
	assert.Equal(t, []BoundaryID{2}, m.Cells[3].BoundaryIDs[RightSide])
	assert.Nil(t, m.Cells[1].BoundaryIDs[LeftSide])
	assert.InDelta(t, 0.5, m.Cells[2].H(), 1.e-15)

	_, err = NewUniformMesh(0, 1, 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidMesh)
	_, err = NewUniformMesh(1, 1, 2, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidMesh)
}

func TestNewMeshFromVertices(t *testing.T) {
	m, err := NewMeshFromVertices([]float64{-1, -0.25, 0, 2}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumActive())
	assert.InDelta(t, 0.75, m.Cells[0].H(), 1.e-15)

	_, err = NewMeshFromVertices([]float64{0, 0}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidMesh)
}

func TestUniformlyRefine(t *testing.T) {
	m, err := NewUniformMesh(0, 1, 2, 7, 8)
	require.NoError(t, err)
	m.UniformlyRefine()
	m.UniformlyRefine()

	assert.Equal(t, 8, m.NumActive())
	assert.Equal(t, 2, m.MaxLevel())

	active := m.ActiveCells()
	for i := 1; i < len(active); i++ {
		assert.Equal(t, m.Cell(active[i-1]).X1, m.Cell(active[i]).X0)
	}
	first, last := m.Cell(active[0]), m.Cell(active[len(active)-1])
	assert.Equal(t, []BoundaryID{7}, first.BoundaryIDs[LeftSide])
	assert.Equal(t, []BoundaryID{8}, last.BoundaryIDs[RightSide])
	assert.True(t, m.IsBoundarySide(first.ID, LeftSide))
	assert.False(t, m.IsBoundarySide(first.ID, RightSide))

	desc := m.ActiveDescendants(0)
	require.Len(t, desc, 4)
	var h float64
	for _, id := range desc {
		h += m.Cell(id).H()
		assert.Equal(t, 2, m.Cell(id).Level)
	}
	assert.InDelta(t, 0.5, h, 1.e-15)
}

func TestCloneIsIndependent(t *testing.T) {
	m, err := NewUniformMesh(0, 1, 3, 0, 1)
	require.NoError(t, err)
	before := m.Clone()

	fine := m.Clone()
	fine.UniformlyRefine()
	fine.Cells[0].BoundaryIDs[LeftSide][0] = 99

	if diff := cmp.Diff(before, m); diff != "" {
		t.Errorf("refining a clone changed the original (-want +got):\n%s", diff)
	}
}

func TestCoarsenRevertsRefinement(t *testing.T) {
	m, err := NewUniformMesh(0, 1, 3, 0, 1)
	require.NoError(t, err)
	before := m.Clone()
	n := len(m.Cells)

	m.UniformlyRefine()
	require.NoError(t, m.Coarsen(n))
	if diff := cmp.Diff(before, m); diff != "" {
		t.Errorf("coarsen did not restore the mesh (-want +got):\n%s", diff)
	}
	assert.ErrorIs(t, m.Coarsen(0), ErrInvalidMesh)
}

func TestExtends(t *testing.T) {
	m, err := NewUniformMesh(0, 1, 3, 0, 1)
	require.NoError(t, err)
	snap := m.Clone()
	assert.True(t, m.Extends(snap))

	m.UniformlyRefine()
	assert.True(t, m.Extends(snap))
	assert.False(t, snap.Extends(m))

	moved := snap.Clone()
	moved.Cells[1].X1 = 0.5
	assert.False(t, m.Extends(moved))

	tagged := snap.Clone()
	tagged.Cells[0].BoundaryIDs[LeftSide] = []BoundaryID{5}
	assert.False(t, m.Extends(tagged))

	// a snapshot taken after refinement does not match a different refinement
	refined := m.Clone()
	other := snap.Clone()
	other.Cells = append(other.Cells, Cell{ID: 3, X0: 0, X1: 1. / 6, Level: 1, Parent: 1})
	other.Cells[1].Children = []CellID{3}
	assert.False(t, refined.Extends(other))
}
