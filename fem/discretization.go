package fem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notargets/FEMAdjoint/element"
	"github.com/notargets/FEMAdjoint/mesh"
)

// ErrUnknownVariable is returned when a variable name or index is not defined
var ErrUnknownVariable = errors.New("unknown variable")

// Variable is a named scalar field with a Lagrange interpolation degree.
// Its index is its position in the discretization.
type Variable struct {
	Name   string `yaml:"name"`
	Degree int    `yaml:"degree"`
}

// Discretization binds variables to a mesh: one reference element and one
// dof map per variable, with the variables' dofs stacked in one global
// vector in declaration order.
type Discretization struct {
	Mesh      *mesh.Mesh
	Variables []Variable
	DofMaps   []*DofMap
	Elements  []*element.LineLagrange

	offsets []int
	nDofs   int
}

// NewDiscretization builds the dof maps and reference elements for vars on m
func NewDiscretization(m *mesh.Mesh, vars ...Variable) (*Discretization, error) {
	if len(vars) == 0 {
		return nil, errors.New("discretization needs at least one variable")
	}
	d := &Discretization{
		Mesh:      m,
		Variables: append([]Variable(nil), vars...),
		DofMaps:   make([]*DofMap, len(vars)),
		Elements:  make([]*element.LineLagrange, len(vars)),
		offsets:   make([]int, len(vars)),
	}
	seen := make(map[string]bool, len(vars))
	for v, vr := range vars {
		if vr.Name == "" || seen[vr.Name] {
			return nil, fmt.Errorf("variable %d: name %q is empty or duplicated", v, vr.Name)
		}
		seen[vr.Name] = true
		dm, err := NewDofMap(m, vr.Degree)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", vr.Name, err)
		}
		el, err := element.NewLineLagrange(vr.Degree)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", vr.Name, err)
		}
		d.DofMaps[v] = dm
		d.Elements[v] = el
		d.offsets[v] = d.nDofs
		d.nDofs += dm.NDofs
	}
	return d, nil
}

// NumVariables returns the number of variables
func (d *Discretization) NumVariables() int { return len(d.Variables) }

// NumDofs returns the total number of dofs of all variables
func (d *Discretization) NumDofs() int { return d.nDofs }

// Offset returns the position of variable v's block in the global vector
func (d *Discretization) Offset(v int) int { return d.offsets[v] }

// VariableNumber resolves a variable name to its index
func (d *Discretization) VariableNumber(name string) (int, error) {
	for v, vr := range d.Variables {
		if vr.Name == name {
			return v, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
}

// GlobalDofIndices returns the global vector indices of variable v on a cell
func (d *Discretization) GlobalDofIndices(id mesh.CellID, v int) ([]int, error) {
	if v < 0 || v >= len(d.Variables) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownVariable, v)
	}
	idx, err := d.DofMaps[v].DofIndices(id)
	if err != nil {
		return nil, err
	}
	for j := range idx {
		idx[j] += d.offsets[v]
	}
	return idx, nil
}

// OnMesh rebuilds the discretization on another mesh, raising every
// variable's degree by degreeIncrease
func (d *Discretization) OnMesh(m *mesh.Mesh, degreeIncrease int) (*Discretization, error) {
	if degreeIncrease < 0 {
		return nil, fmt.Errorf("degree increase must be non-negative, got %d", degreeIncrease)
	}
	vars := make([]Variable, len(d.Variables))
	for v, vr := range d.Variables {
		vars[v] = Variable{Name: vr.Name, Degree: vr.Degree + degreeIncrease}
	}
	return NewDiscretization(m, vars...)
}

// Refine returns a discretization on a clone of the mesh, bisected nh times
// and with every degree raised by np. The receiver is not modified.
func (d *Discretization) Refine(nh, np int) (*Discretization, error) {
	if nh < 0 {
		return nil, fmt.Errorf("number of h refinements must be non-negative, got %d", nh)
	}
	fine := d.Mesh.Clone()
	for i := 0; i < nh; i++ {
		fine.UniformlyRefine()
	}
	return d.OnMesh(fine, np)
}

// String returns a summary of the discretization
func (d *Discretization) String() string {
	var sb strings.Builder
	sb.WriteString(d.Mesh.String())
	for v, vr := range d.Variables {
		sb.WriteString(fmt.Sprintf("Variable %d %q: degree %d, %d dofs\n",
			v, vr.Name, vr.Degree, d.DofMaps[v].NDofs))
		sb.WriteString(element.Summary(d.Elements[v]))
	}
	sb.WriteString(fmt.Sprintf("Total degrees of freedom: %d\n", d.nDofs))
	return sb.String()
}
