package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/notargets/FEMAdjoint/fem"
	"github.com/notargets/FEMAdjoint/mesh"
	"gonum.org/v1/gonum/mat"
)

// Solver produces a system's solution on its current discretization.
// Solve must have no side effect other than writing s.Solution.
type Solver interface {
	Solve(ctx context.Context, s *System) error
}

// System is a set of variables discretized on a mesh, with one global
// solution vector, the solver that fills it, and its QoI values
type System struct {
	Name     string
	Disc     *fem.Discretization
	Solution *mat.VecDense
	Solver   Solver

	qois []float64
}

// NewSystem creates a system with a zero solution
func NewSystem(name string, disc *fem.Discretization, solver Solver) *System {
	return &System{
		Name:     name,
		Disc:     disc,
		Solution: mat.NewVecDense(disc.NumDofs(), nil),
		Solver:   solver,
	}
}

// VariableNumber resolves a variable name to its index
func (s *System) VariableNumber(name string) (int, error) {
	return s.Disc.VariableNumber(name)
}

// NumVariables returns the number of variables
func (s *System) NumVariables() int { return s.Disc.NumVariables() }

// InitQoIs allocates storage for n quantities of interest
func (s *System) InitQoIs(n int) {
	s.qois = make([]float64, n)
}

// QoIs returns the system's QoI values
func (s *System) QoIs() []float64 { return s.qois }

// Solve runs the system's solver
func (s *System) Solve(ctx context.Context) error {
	if s.Solver == nil {
		return fmt.Errorf("system %s has no solver", s.Name)
	}
	if s.Solution == nil || s.Solution.Len() != s.Disc.NumDofs() {
		s.Solution = mat.NewVecDense(s.Disc.NumDofs(), nil)
	}
	return s.Solver.Solve(ctx, s)
}

// Refined returns a disposable copy of the system on a uniformly refined
// clone of its mesh, with a zero solution and the same solver
func (s *System) Refined(nh, np int) (*System, error) {
	disc, err := s.Disc.Refine(nh, np)
	if err != nil {
		return nil, fmt.Errorf("refining system %s: %w", s.Name, err)
	}
	return NewSystem(s.Name, disc, s.Solver), nil
}

// OnMesh returns a copy of the system on another mesh, degrees raised by np
func (s *System) OnMesh(m *mesh.Mesh, np int) (*System, error) {
	disc, err := s.Disc.OnMesh(m, np)
	if err != nil {
		return nil, fmt.Errorf("system %s: %w", s.Name, err)
	}
	return NewSystem(s.Name, disc, s.Solver), nil
}

// VariableSolution returns a view of variable v's block of the solution
func (s *System) VariableSolution(v int) *mat.VecDense {
	off := s.Disc.Offset(v)
	return s.Solution.SliceVec(off, off+s.Disc.DofMaps[v].NDofs).(*mat.VecDense)
}

// EquationSystems is an ordered set of named systems sharing one mesh
type EquationSystems struct {
	Mesh    *mesh.Mesh
	systems []*System
	byName  map[string]*System
}

// NewEquationSystems creates an empty container over m
func NewEquationSystems(m *mesh.Mesh) *EquationSystems {
	return &EquationSystems{Mesh: m, byName: map[string]*System{}}
}

// Add appends a system; its discretization must live on the shared mesh
func (es *EquationSystems) Add(s *System) error {
	if s.Disc.Mesh != es.Mesh {
		return fmt.Errorf("system %s is not discretized on the shared mesh", s.Name)
	}
	if _, ok := es.byName[s.Name]; ok {
		return fmt.Errorf("system %s already exists", s.Name)
	}
	es.systems = append(es.systems, s)
	es.byName[s.Name] = s
	return nil
}

// Systems returns the systems in insertion order
func (es *EquationSystems) Systems() []*System { return es.systems }

// Get returns the named system
func (es *EquationSystems) Get(name string) (*System, bool) {
	s, ok := es.byName[name]
	return s, ok
}

// Solve solves every system in order
func (es *EquationSystems) Solve(ctx context.Context) error {
	for _, s := range es.systems {
		if err := s.Solve(ctx); err != nil {
			return fmt.Errorf("solving system %s: %w", s.Name, err)
		}
	}
	return nil
}

// Refined returns a disposable container on a clone of the shared mesh
// refined once for all systems
func (es *EquationSystems) Refined(nh, np int) (*EquationSystems, error) {
	if nh < 0 || np < 0 {
		return nil, errors.New("refinement counts must be non-negative")
	}
	fine := es.Mesh.Clone()
	for i := 0; i < nh; i++ {
		fine.UniformlyRefine()
	}
	out := NewEquationSystems(fine)
	for _, s := range es.systems {
		fs, err := s.OnMesh(fine, np)
		if err != nil {
			return nil, err
		}
		if err := out.Add(fs); err != nil {
			return nil, err
		}
	}
	return out, nil
}
