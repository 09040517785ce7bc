package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const problemYAML = `
name: outlet
domain: {x0: -1, x1: 1, cells: 4, left_id: 2, right_id: 1}
systems:
  - name: flow
    variables:
      - {name: u, degree: 1, reaction: 1, source: [2]}
      - {name: C, degree: 1, reaction: 1, source: [3]}
estimator: {number_h_refinements: 1, sobolev_order: 0}
`

func run(t *testing.T, args ...string) string {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func writeProblem(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "problem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(problemYAML), 0644))
	return path
}

func TestQoICommand(t *testing.T) {
	out := run(t, "qoi", "--config", writeProblem(t))
	assert.Contains(t, out, "QoI 0 = -6\n")
	assert.Contains(t, out, "dQ0/du")
	assert.Contains(t, out, "dQ0/dC")
}

func TestEstimateCommand(t *testing.T) {
	path := writeProblem(t)
	out := run(t, "estimate", "--config", path)
	assert.Contains(t, out, "all systems")
	assert.Contains(t, out, "total")

	out = run(t, "estimate", "--config", path, "--map", "--parent")
	assert.Contains(t, out, "flow/u")
	assert.Contains(t, out, "flow/C")
}

func TestInitAndSolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coupled.yaml")
	assert.Contains(t, run(t, "init", path), "wrote")
	out := run(t, "solve", "--config", path)
	assert.Contains(t, out, "System flow")
	assert.Contains(t, out, "Total degrees of freedom")
}

func TestUnknownSystem(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"qoi", "--system", "nope"})
	assert.Error(t, root.Execute())
}
