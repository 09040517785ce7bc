package qoi

import (
	"testing"

	"github.com/notargets/FEMAdjoint/fem"
	"github.com/notargets/FEMAdjoint/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// stubContext serves fixed side data for two or three variables
type stubContext struct {
	names  []string
	sideFE []*fem.FE
	values [][]float64 // [variable][qp]
	ids    []mesh.BoundaryID
	needs  fem.Needs
	qois   []float64
	derivs [][]float64 // [variable][dof], qoi 0 only
}

func newStub(jxw []float64, x []float64, u, C []float64, phi [][]float64, ids ...mesh.BoundaryID) *stubContext {
	xyz := make([]mesh.Point, len(x))
	for i := range x {
		xyz[i] = mesh.Point{x[i]}
	}
	return &stubContext{
		names: []string{"u", "C", "p"},
		sideFE: []*fem.FE{
			fem.NewFE(jxw, phi, xyz),
			fem.NewFE(jxw, phi, xyz),
			fem.NewFE(nil, nil, nil),
		},
		values: [][]float64{u, C, nil},
		ids:    ids,
		qois:   make([]float64, 1),
		derivs: [][]float64{make([]float64, len(phi)), make([]float64, len(phi)), nil},
	}
}

func (s *stubContext) VariableNumber(name string) (int, error) {
	for i, n := range s.names {
		if n == name {
			return i, nil
		}
	}
	return -1, fem.ErrUnknownVariable
}
func (s *stubContext) SetNeeds(n fem.Needs)          { s.needs = n }
func (s *stubContext) ElementFE(v int) *fem.FE        { return nil }
func (s *stubContext) SideFE(v int) *fem.FE           { return s.sideFE[v] }
func (s *stubContext) NDofIndices(v int) int          { return len(s.derivs[v]) }
func (s *stubContext) ElementQRule() fem.QRule        { return fem.QRule{} }
func (s *stubContext) SideQRule() fem.QRule           { return fem.QRule{Points: make([]float64, len(s.values[0]))} }
func (s *stubContext) ElementValue(v, qp int) float64 { return 0 }
func (s *stubContext) SideValue(v, qp int) float64    { return s.values[v][qp] }
func (s *stubContext) QoIs() []float64                { return s.qois }
func (s *stubContext) QoIDerivatives(q, v int) []float64 {
	return s.derivs[v]
}
func (s *stubContext) HasSideBoundaryID(id mesh.BoundaryID) bool {
	for _, b := range s.ids {
		if b == id {
			return true
		}
	}
	return false
}

type countAllocator struct{ n int }

func (c *countAllocator) InitQoIs(n int) { c.n = n }

func TestCoupledSystemQoICount(t *testing.T) {
	var a countAllocator
	require.NoError(t, NewCoupledSystemQoI().InitQoICount(&a))
	assert.Equal(t, 1, a.n)
}

func TestCoupledSystemQoINeeds(t *testing.T) {
	s := newStub([]float64{1}, []float64{-1}, []float64{2}, []float64{3}, [][]float64{{1}, {0}}, 2)
	q := NewCoupledSystemQoI()
	require.NoError(t, q.InitContext(s))
	assert.Equal(t, fem.JxW|fem.Phi|fem.XYZ, s.needs.SideQuantities(0))
	assert.Equal(t, fem.Phi, s.needs.SideQuantities(1))
	assert.Equal(t, fem.Nothing, s.needs.SideQuantities(2))
	for v := 0; v < 3; v++ {
		assert.Equal(t, fem.Nothing, s.needs.ElementQuantities(v))
	}

	// without a pressure variable the declaration covers u and C only
	s.names = []string{"u", "C"}
	require.NoError(t, q.InitContext(s))
	_, declared := s.needs.Side[2]
	assert.False(t, declared)

	s.names = []string{"u"}
	assert.ErrorIs(t, q.InitContext(s), fem.ErrUnknownVariable)
}

func TestCoupledSystemQoIStub(t *testing.T) {
	for _, w := range []float64{1, 0.5, 0.125} {
		phi := [][]float64{{1}, {0}}
		s := newStub([]float64{w}, []float64{-1}, []float64{2}, []float64{3}, phi, 2)
		q := NewCoupledSystemQoI()
		require.NoError(t, q.InitContext(s))

		q.SideQoI(s, AllQoIs())
		assert.InDelta(t, -6*w, s.qois[0], 1.e-15)

		q.SideQoIDerivative(s, AllQoIs())
		assert.InDeltaSlicef(t, []float64{-3 * w, 0}, s.derivs[0], 1.e-15, "dQ/du, w=%v", w)
		assert.InDeltaSlicef(t, []float64{-2 * w, 0}, s.derivs[1], 1.e-15, "dQ/dC, w=%v", w)

		// accumulation, never assignment
		q.SideQoI(s, NewQoISet(5))
		assert.InDelta(t, -12*w, s.qois[0], 1.e-15)
	}
}

func TestCoupledSystemQoIRestriction(t *testing.T) {
	phi := [][]float64{{0.5, 0.5}, {0.5, 0.5}}
	two := []float64{2, 2}
	three := []float64{3, 3}
	tests := []struct {
		name string
		x    []float64
		ids  []mesh.BoundaryID
		want float64
	}{
		{"wrong id", []float64{-1, -0.5}, []mesh.BoundaryID{1}, 0},
		{"no id", []float64{-1, -0.5}, nil, 0},
		{"outlet right half", []float64{0, 0.5}, []mesh.BoundaryID{2}, 0},
		{"outlet left half", []float64{-1, -0.5}, []mesh.BoundaryID{2}, -12},
		{"outlet straddling", []float64{-0.5, 0.5}, []mesh.BoundaryID{1, 2}, -6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStub([]float64{1, 1}, tt.x, two, three, phi, tt.ids...)
			q := NewCoupledSystemQoI()
			require.NoError(t, q.InitContext(s))
			q.SideQoI(s, AllQoIs())
			q.SideQoIDerivative(s, AllQoIs())
			assert.InDelta(t, tt.want, s.qois[0], 1.e-15)
			if tt.want == 0 {
				assert.Equal(t, []float64{0, 0}, s.derivs[0])
				assert.Equal(t, []float64{0, 0}, s.derivs[1])
			}
		})
	}
}

func coupledContext(t *testing.T, u, C []float64) *fem.Context {
	m, err := mesh.NewUniformMesh(-1, 0, 1, 2, 1)
	require.NoError(t, err)
	disc, err := fem.NewDiscretization(m,
		fem.Variable{Name: "u", Degree: 1}, fem.Variable{Name: "C", Degree: 1})
	require.NoError(t, err)
	fc, err := fem.NewContext(disc, mat.NewVecDense(4, append(append([]float64{}, u...), C...)))
	require.NoError(t, err)
	return fc
}

func TestCoupledSystemQoIContext(t *testing.T) {
	fc := coupledContext(t, []float64{2, 2}, []float64{3, 3})
	q := NewCoupledSystemQoI()
	require.NoError(t, q.InitContext(fc))
	qois := make([]float64, 1)
	fc.BindQoIs(qois)

	require.NoError(t, fc.ReinitElement(0))
	assert.Equal(t, fem.Nothing, fc.ElementFE(0).Computed())
	assert.Equal(t, fem.Nothing, fc.ElementFE(1).Computed())

	require.NoError(t, fc.ReinitSide(mesh.LeftSide))
	assert.Equal(t, fem.JxW|fem.Phi|fem.XYZ, fc.SideFE(0).Computed())
	assert.Equal(t, fem.Phi, fc.SideFE(1).Computed())

	q.SideQoI(fc, AllQoIs())
	q.SideQoIDerivative(fc, AllQoIs())
	assert.InDelta(t, -6, qois[0], 1.e-12)
	assert.InDeltaSlicef(t, []float64{-3, 0}, fc.QoIDerivatives(0, 0), 1.e-12, "")
	assert.InDeltaSlicef(t, []float64{-2, 0}, fc.QoIDerivatives(0, 1), 1.e-12, "")

	// the right end sits at x = 0 and carries id 1
	require.NoError(t, fc.ReinitSide(mesh.RightSide))
	q.SideQoI(fc, AllQoIs())
	assert.InDelta(t, -6, qois[0], 1.e-12)
}

func TestCoupledSystemQoIFiniteDifference(t *testing.T) {
	u := []float64{1.3, -0.7}
	C := []float64{0.4, 2.2}
	value := func(u, C []float64) float64 {
		fc := coupledContext(t, u, C)
		q := NewCoupledSystemQoI()
		require.NoError(t, q.InitContext(fc))
		qois := make([]float64, 1)
		fc.BindQoIs(qois)
		require.NoError(t, fc.ReinitElement(0))
		require.NoError(t, fc.ReinitSide(mesh.LeftSide))
		q.SideQoI(fc, AllQoIs())
		return qois[0]
	}

	fc := coupledContext(t, u, C)
	q := NewCoupledSystemQoI()
	require.NoError(t, q.InitContext(fc))
	fc.BindQoIs(make([]float64, 1))
	require.NoError(t, fc.ReinitElement(0))
	require.NoError(t, fc.ReinitSide(mesh.LeftSide))
	q.SideQoIDerivative(fc, AllQoIs())

	const eps = 1.e-6
	perturb := func(x []float64, i int, d float64) []float64 {
		out := append([]float64(nil), x...)
		out[i] += d
		return out
	}
	for i := range u {
		fd := (value(perturb(u, i, eps), C) - value(perturb(u, i, -eps), C)) / (2 * eps)
		assert.InDeltaf(t, fd, fc.QoIDerivatives(0, 0)[i], 1.e-8, "dQ/du_%d", i)
		fd = (value(u, perturb(C, i, eps)) - value(u, perturb(C, i, -eps))) / (2 * eps)
		assert.InDeltaf(t, fd, fc.QoIDerivatives(0, 1)[i], 1.e-8, "dQ/dC_%d", i)
	}
}

func TestThreadJoin(t *testing.T) {
	dst := []float64{1, 2, 3}
	ThreadJoin(NewCoupledSystemQoI(), dst, []float64{1, 1, 1}, NewQoISet(0, 2))
	assert.Equal(t, []float64{2, 2, 4}, dst)
	ThreadJoin(NewCoupledSystemQoI(), dst, []float64{1, 1, 1}, AllQoIs())
	assert.Equal(t, []float64{3, 3, 5}, dst)
	assert.Equal(t, "[0 2]", NewQoISet(2, 0).String())
	assert.Equal(t, "all", AllQoIs().String())
}
