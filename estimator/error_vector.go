package estimator

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/FEMAdjoint/mesh"
	"github.com/notargets/FEMAdjoint/system"
	"gonum.org/v1/gonum/floats"
)

// ErrorVector holds a non-negative error per active coarse cell, and per
// parent cell when parent estimation was requested
type ErrorVector struct {
	Cells   map[mesh.CellID]float64
	Parents map[mesh.CellID]float64
}

// NewErrorVector returns an empty vector
func NewErrorVector() *ErrorVector {
	return &ErrorVector{Cells: map[mesh.CellID]float64{}}
}

// CellIDs returns the ids of the cells with an entry, ascending
func (ev *ErrorVector) CellIDs() []mesh.CellID { return sortedKeys(ev.Cells) }

// ParentIDs returns the ids of the parents with an entry, ascending
func (ev *ErrorVector) ParentIDs() []mesh.CellID { return sortedKeys(ev.Parents) }

// Total returns the global estimate, the l2 norm of the cell errors
func (ev *ErrorVector) Total() float64 {
	vals := make([]float64, 0, len(ev.Cells))
	for _, id := range ev.CellIDs() {
		vals = append(vals, ev.Cells[id])
	}
	return floats.Norm(vals, 2)
}

func sortedKeys(m map[mesh.CellID]float64) []mesh.CellID {
	ids := make([]mesh.CellID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// reset sizes the vector to the active cells of m, and their parents when
// parents is set, with every entry zero
func (ev *ErrorVector) reset(m *mesh.Mesh, parents bool) {
	ev.Cells = make(map[mesh.CellID]float64, m.NumActive())
	ev.Parents = nil
	if parents {
		ev.Parents = map[mesh.CellID]float64{}
	}
	for _, id := range m.ActiveCells() {
		ev.Cells[id] = 0
		if p := m.Cell(id).Parent; parents && p != mesh.NoCell {
			ev.Parents[p] = 0
		}
	}
}

// accumulate adds a squared contribution for a coarse cell
func (ev *ErrorVector) accumulate(m *mesh.Mesh, id mesh.CellID, err2 float64) {
	ev.Cells[id] += err2
	if ev.Parents == nil {
		return
	}
	if p := m.Cell(id).Parent; p != mesh.NoCell {
		ev.Parents[p] += err2
	}
}

func (ev *ErrorVector) sqrt() {
	for id, e2 := range ev.Cells {
		ev.Cells[id] = math.Sqrt(e2)
	}
	for id, e2 := range ev.Parents {
		ev.Parents[id] = math.Sqrt(e2)
	}
}

// ErrorKey selects one variable of one system
type ErrorKey struct {
	System   string
	Variable int
}

// ErrorMap receives one error vector per key the caller placed in it
type ErrorMap map[ErrorKey]*ErrorVector

// target is one (system, variable) contribution routed into a vector
type target struct {
	variable int
	scale    float64
	into     *ErrorVector
}

// errorSink decides which variables are differenced and where their
// contributions go
type errorSink interface {
	// validate checks the sink against the systems before any work
	validate(systems []*system.System) error
	// targets returns the contributions of one system
	targets(sys *system.System) []target
	// vectors returns every distinct output vector
	vectors() []*ErrorVector
}

// singleSink folds every variable of the systems into one vector, scaled
// per system when scales are given
type singleSink struct {
	out    *ErrorVector
	scales map[string][]float64
}

func (s *singleSink) validate(systems []*system.System) error {
	for _, sys := range systems {
		sc, ok := s.scales[sys.Name]
		if ok && len(sc) < sys.NumVariables() {
			return &ConfigurationError{Field: "component_scales",
				Reason: fmt.Sprintf("system %s has %d variables, %d scales given",
					sys.Name, sys.NumVariables(), len(sc))}
		}
	}
	return nil
}

func (s *singleSink) targets(sys *system.System) []target {
	out := make([]target, sys.NumVariables())
	sc := s.scales[sys.Name]
	for v := range out {
		out[v] = target{variable: v, scale: 1, into: s.out}
		if sc != nil {
			out[v].scale = sc[v]
		}
	}
	return out
}

func (s *singleSink) vectors() []*ErrorVector { return []*ErrorVector{s.out} }

// mapSink fills the caller's pre-keyed error map, unscaled
type mapSink struct {
	errs ErrorMap
}

func (s *mapSink) validate(systems []*system.System) error {
	byName := make(map[string]*system.System, len(systems))
	for _, sys := range systems {
		byName[sys.Name] = sys
	}
	for key := range s.errs {
		sys, ok := byName[key.System]
		if !ok {
			return &ConfigurationError{Field: "error_map",
				Reason: fmt.Sprintf("unknown system %q", key.System)}
		}
		if key.Variable < 0 || key.Variable >= sys.NumVariables() {
			return &ConfigurationError{Field: "error_map",
				Reason: fmt.Sprintf("system %s has no variable %d", key.System, key.Variable)}
		}
	}
	for key, ev := range s.errs {
		if ev == nil {
			s.errs[key] = NewErrorVector()
		}
	}
	return nil
}

func (s *mapSink) targets(sys *system.System) []target {
	var out []target
	for v := 0; v < sys.NumVariables(); v++ {
		if ev, ok := s.errs[ErrorKey{System: sys.Name, Variable: v}]; ok {
			out = append(out, target{variable: v, scale: 1, into: ev})
		}
	}
	return out
}

// vectors lists each vector once, however many keys share it
func (s *mapSink) vectors() []*ErrorVector {
	out := make([]*ErrorVector, 0, len(s.errs))
	seen := make(map[*ErrorVector]bool, len(s.errs))
	for _, ev := range s.errs {
		if !seen[ev] {
			seen[ev] = true
			out = append(out, ev)
		}
	}
	return out
}
