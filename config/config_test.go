package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/notargets/FEMAdjoint/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sample = `
name: poisson
domain:
  x0: 0
  x1: 1
  cells: 4
  left_id: 1
  right_id: 2
systems:
  - name: heat
    variables:
      - name: u
        degree: 1
        diffusion: 1
        source: [2]
        dirichlet: {1: 0, 2: 0}
assembly:
  partitions: 3
  strategy: round-robin
estimator:
  number_h_refinements: 2
  sobolev_order: 0
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "poisson", p.Name)
	assert.Equal(t, 4, p.Domain.Cells)
	require.Len(t, p.Systems, 1)
	v := p.Systems[0].Variables[0]
	assert.Equal(t, "u", v.Name)
	assert.Equal(t, 1, v.Degree)
	assert.Equal(t, []float64{2}, v.Source)
	assert.Len(t, v.Dirichlet, 2)
	assert.Equal(t, 2, p.Estimator.NumberHRefinements)
	assert.Equal(t, 0, p.Estimator.NumberPRefinements)
	assert.Equal(t, 0, p.Estimator.SobolevOrder)

	a := p.Assembler(zap.NewNop())
	assert.Equal(t, 3, a.Partitions)
	assert.Equal(t, partitions.RoundRobin, a.Strategy)
}

func TestBuildAndSolve(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)
	es, err := p.Build()
	require.NoError(t, err)
	require.NoError(t, es.Solve(context.Background()))
	heat, ok := es.Get("heat")
	require.True(t, ok)
	for k := 0; k <= 4; k++ {
		x := float64(k) / 4
		assert.InDelta(t, x*(1-x), heat.Solution.AtVec(k), 1.e-12)
	}
}

func TestBuildFromVertices(t *testing.T) {
	p, err := Parse([]byte(`
domain:
  vertices: [0, 0.25, 1]
  cells: 0
  left_id: 1
  right_id: 2
systems:
  - name: heat
    variables:
      - {name: u, degree: 1, diffusion: 1, source: [2], dirichlet: {1: 0, 2: 0}}
`))
	require.NoError(t, err)
	es, err := p.Build()
	require.NoError(t, err)
	require.Equal(t, 2, es.Mesh.NumActive())
	assert.InDelta(t, 0.25, es.Mesh.Cells[0].H(), 1.e-15)
	assert.InDelta(t, 0.75, es.Mesh.Cells[1].H(), 1.e-15)

	require.NoError(t, es.Solve(context.Background()))
	heat, _ := es.Get("heat")
	assert.InDelta(t, 0.25*0.75, heat.Solution.AtVec(1), 1.e-12)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Problem)
	}{
		{"no cells", func(p *Problem) { p.Domain.Cells = 0 }},
		{"empty domain", func(p *Problem) { p.Domain.X1 = p.Domain.X0 }},
		{"negative refine", func(p *Problem) { p.Domain.Refine = -1 }},
		{"no systems", func(p *Problem) { p.Systems = nil }},
		{"duplicate system", func(p *Problem) { p.Systems = append(p.Systems, p.Systems[0]) }},
		{"degree zero", func(p *Problem) { p.Systems[0].Variables[0].Degree = 0 }},
		{"bad strategy", func(p *Problem) { p.Assembly.Strategy = "metis" }},
		{"bad sobolev", func(p *Problem) { p.Estimator.SobolevOrder = 5 }},
		{"one vertex", func(p *Problem) { p.Domain.Vertices = []float64{0} }},
		{"decreasing vertices", func(p *Problem) { p.Domain.Vertices = []float64{0, 1, 0.5} }},
	}
	require.NoError(t, DefaultProblem().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProblem()
			tt.mutate(p)
			assert.ErrorIs(t, p.Validate(), ErrInvalid)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "problem.yaml")
	want := DefaultProblem()
	require.NoError(t, want.Save(path))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.Domain, got.Domain)
	assert.Equal(t, want.Estimator, got.Estimator)
	require.Len(t, got.Systems[0].Variables, 3)
	assert.Equal(t, want.Systems[0].Variables[1].Dirichlet, got.Systems[0].Variables[1].Dirichlet)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPolynomial(t *testing.T) {
	f := Polynomial([]float64{1, -2, 3})
	assert.InDelta(t, 1, f(0), 0)
	assert.InDelta(t, 2, f(1), 1.e-15)
	assert.InDelta(t, 1-2*0.5+3*0.25, f(0.5), 1.e-15)
	assert.Zero(t, Polynomial(nil)(3))
}
