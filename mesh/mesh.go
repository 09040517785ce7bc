package mesh

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrInvalidMesh is returned for malformed mesh construction requests
var ErrInvalidMesh = errors.New("invalid mesh")

// CellID identifies a cell for the lifetime of a mesh and all its clones.
// Refinement appends children, so ids of existing cells never change.
type CellID int

// NoCell marks a missing parent or neighbor
const NoCell CellID = -1

// BoundaryID tags a boundary side for selective assembly
type BoundaryID int

// Point is a physical coordinate; only component 0 is used in 1D
type Point [3]float64

// Side indices of a line cell
const (
	LeftSide  = 0
	RightSide = 1
	NumSides  = 2
)

// Cell is a line segment [X0, X1] in a refinement hierarchy
type Cell struct {
	ID       CellID
	X0, X1   float64
	Level    int
	Parent   CellID
	Children []CellID // empty for active cells

	// Boundary ids carried by each side; interior sides carry none
	BoundaryIDs [NumSides][]BoundaryID
}

// Active reports whether the cell is a leaf of the refinement tree
func (c *Cell) Active() bool { return len(c.Children) == 0 }

// H returns the cell length
func (c *Cell) H() float64 { return c.X1 - c.X0 }

// Mesh is a one dimensional hierarchical mesh of a single interval
type Mesh struct {
	Cells []Cell
}

// NewUniformMesh builds n equal cells on [x0, x1], tagging the left end of
// the domain with leftID and the right end with rightID
func NewUniformMesh(x0, x1 float64, n int, leftID, rightID BoundaryID) (*Mesh, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: need at least one cell, got %d", ErrInvalidMesh, n)
	}
	if !(x1 > x0) {
		return nil, fmt.Errorf("%w: empty domain [%v, %v]", ErrInvalidMesh, x0, x1)
	}
	m := &Mesh{Cells: make([]Cell, n)}
	h := (x1 - x0) / float64(n)
	for k := 0; k < n; k++ {
		m.Cells[k] = Cell{
			ID:     CellID(k),
			X0:     x0 + float64(k)*h,
			X1:     x0 + float64(k+1)*h,
			Parent: NoCell,
		}
	}
	m.Cells[n-1].X1 = x1
	m.Cells[0].BoundaryIDs[LeftSide] = []BoundaryID{leftID}
	m.Cells[n-1].BoundaryIDs[RightSide] = []BoundaryID{rightID}
	return m, nil
}

// NewMeshFromVertices builds cells between consecutive vertices
func NewMeshFromVertices(vx []float64, leftID, rightID BoundaryID) (*Mesh, error) {
	if len(vx) < 2 {
		return nil, fmt.Errorf("%w: need at least two vertices", ErrInvalidMesh)
	}
	m := &Mesh{Cells: make([]Cell, len(vx)-1)}
	for k := range m.Cells {
		if !(vx[k+1] > vx[k]) {
			return nil, fmt.Errorf("%w: vertices must increase, got %v then %v",
				ErrInvalidMesh, vx[k], vx[k+1])
		}
		m.Cells[k] = Cell{ID: CellID(k), X0: vx[k], X1: vx[k+1], Parent: NoCell}
	}
	m.Cells[0].BoundaryIDs[LeftSide] = []BoundaryID{leftID}
	m.Cells[len(m.Cells)-1].BoundaryIDs[RightSide] = []BoundaryID{rightID}
	return m, nil
}

// Cell returns the cell with the given id
func (m *Mesh) Cell(id CellID) *Cell {
	if id < 0 || int(id) >= len(m.Cells) {
		return nil
	}
	return &m.Cells[id]
}

// ActiveCells returns the leaf cells ordered left to right
func (m *Mesh) ActiveCells() []CellID {
	ids := make([]CellID, 0, len(m.Cells))
	for i := range m.Cells {
		if m.Cells[i].Active() {
			ids = append(ids, m.Cells[i].ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.Cells[ids[i]].X0 < m.Cells[ids[j]].X0
	})
	return ids
}

// NumActive returns the number of leaf cells
func (m *Mesh) NumActive() int {
	var n int
	for i := range m.Cells {
		if m.Cells[i].Active() {
			n++
		}
	}
	return n
}

// MaxLevel returns the deepest refinement level among active cells
func (m *Mesh) MaxLevel() int {
	var lvl int
	for i := range m.Cells {
		if m.Cells[i].Active() && m.Cells[i].Level > lvl {
			lvl = m.Cells[i].Level
		}
	}
	return lvl
}

// IsBoundarySide reports whether a side lies on the domain boundary
func (m *Mesh) IsBoundarySide(id CellID, side int) bool {
	c := m.Cell(id)
	if c == nil {
		return false
	}
	x := c.X0
	if side == RightSide {
		x = c.X1
	}
	lo, hi := m.Bounds()
	return x == lo || x == hi
}

// Bounds returns the domain extent
func (m *Mesh) Bounds() (lo, hi float64) {
	lo, hi = m.Cells[0].X0, m.Cells[0].X1
	for i := range m.Cells {
		if m.Cells[i].X0 < lo {
			lo = m.Cells[i].X0
		}
		if m.Cells[i].X1 > hi {
			hi = m.Cells[i].X1
		}
	}
	return
}

// Clone returns a deep copy of the mesh
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{Cells: make([]Cell, len(m.Cells))}
	for i, c := range m.Cells {
		out.Cells[i] = c
		if c.Children != nil {
			out.Cells[i].Children = append([]CellID(nil), c.Children...)
		}
		for s := 0; s < NumSides; s++ {
			if c.BoundaryIDs[s] != nil {
				out.Cells[i].BoundaryIDs[s] = append([]BoundaryID(nil), c.BoundaryIDs[s]...)
			}
		}
	}
	return out
}

// UniformlyRefine bisects every active cell once. Children inherit the
// boundary ids of the parent side they share; the new interior side
// carries none.
func (m *Mesh) UniformlyRefine() {
	active := m.ActiveCells()
	for _, id := range active {
		parent := m.Cells[id]
		mid := 0.5 * (parent.X0 + parent.X1)
		left := Cell{
			ID:     CellID(len(m.Cells)),
			X0:     parent.X0,
			X1:     mid,
			Level:  parent.Level + 1,
			Parent: parent.ID,
		}
		right := Cell{
			ID:     CellID(len(m.Cells) + 1),
			X0:     mid,
			X1:     parent.X1,
			Level:  parent.Level + 1,
			Parent: parent.ID,
		}
		if ids := parent.BoundaryIDs[LeftSide]; ids != nil {
			left.BoundaryIDs[LeftSide] = append([]BoundaryID(nil), ids...)
		}
		if ids := parent.BoundaryIDs[RightSide]; ids != nil {
			right.BoundaryIDs[RightSide] = append([]BoundaryID(nil), ids...)
		}
		m.Cells = append(m.Cells, left, right)
		m.Cells[id].Children = []CellID{left.ID, right.ID}
	}
}

// Coarsen truncates the mesh to its first numCells cells, reverting every
// UniformlyRefine made after the mesh had that many cells
func (m *Mesh) Coarsen(numCells int) error {
	if numCells < 1 || numCells > len(m.Cells) {
		return fmt.Errorf("%w: cannot coarsen %d cells to %d", ErrInvalidMesh, len(m.Cells), numCells)
	}
	m.Cells = m.Cells[:numCells]
	for i := range m.Cells {
		kept := m.Cells[i].Children[:0]
		for _, ch := range m.Cells[i].Children {
			if int(ch) < numCells {
				kept = append(kept, ch)
			}
		}
		if len(kept) == 0 {
			m.Cells[i].Children = nil
		} else {
			m.Cells[i].Children = kept
		}
	}
	return nil
}

// Extends reports whether m is o with zero or more refinements appended:
// o's cells are a prefix of m's, with children beyond that prefix ignored.
// Coarsen(len(o.Cells)) then turns m back into o.
func (m *Mesh) Extends(o *Mesh) bool {
	n := len(o.Cells)
	if len(m.Cells) < n {
		return false
	}
	for i := 0; i < n; i++ {
		a, b := &m.Cells[i], &o.Cells[i]
		if a.ID != b.ID || a.X0 != b.X0 || a.X1 != b.X1 || a.Level != b.Level || a.Parent != b.Parent {
			return false
		}
		for s := 0; s < NumSides; s++ {
			if !slices.Equal(a.BoundaryIDs[s], b.BoundaryIDs[s]) {
				return false
			}
		}
		var kept []CellID
		for _, ch := range a.Children {
			if int(ch) < n {
				kept = append(kept, ch)
			}
		}
		if !slices.Equal(kept, b.Children) {
			return false
		}
	}
	return true
}

// ActiveDescendants returns the active cells below (or equal to) id, left to right
func (m *Mesh) ActiveDescendants(id CellID) []CellID {
	var out []CellID
	var walk func(CellID)
	walk = func(c CellID) {
		cell := &m.Cells[c]
		if cell.Active() {
			out = append(out, c)
			return
		}
		for _, ch := range cell.Children {
			walk(ch)
		}
	}
	walk(id)
	sort.Slice(out, func(i, j int) bool { return m.Cells[out[i]].X0 < m.Cells[out[j]].X0 })
	return out
}

// String returns a summary of the mesh
func (m *Mesh) String() string {
	var sb strings.Builder
	lo, hi := m.Bounds()
	sb.WriteString(fmt.Sprintf("Mesh [%.4g, %.4g]: %d cells, %d active, max level %d\n",
		lo, hi, len(m.Cells), m.NumActive(), m.MaxLevel()))
	return sb.String()
}
