// Package config reads problem descriptions for the femadjoint command and
// the example programs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/notargets/FEMAdjoint/assembly"
	"github.com/notargets/FEMAdjoint/estimator"
	"github.com/notargets/FEMAdjoint/fem"
	"github.com/notargets/FEMAdjoint/mesh"
	"github.com/notargets/FEMAdjoint/partitions"
	"github.com/notargets/FEMAdjoint/system"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid problem configuration")

// Problem is a set of systems on one uniform mesh of an interval
type Problem struct {
	Name      string           `yaml:"name"`
	Domain    Domain           `yaml:"domain"`
	Systems   []SystemConfig   `yaml:"systems"`
	Assembly  AssemblyConfig   `yaml:"assembly"`
	Estimator estimator.Config `yaml:"estimator"`
}

// Domain is the interval, its cell count and the ids of its two ends.
// When Vertices is set it gives the cell boundaries and X0, X1 and Cells
// are ignored.
type Domain struct {
	X0       float64         `yaml:"x0"`
	X1       float64         `yaml:"x1"`
	Cells    int             `yaml:"cells"`
	Vertices []float64       `yaml:"vertices,omitempty"`
	LeftID   mesh.BoundaryID `yaml:"left_id"`
	RightID  mesh.BoundaryID `yaml:"right_id"`
	Refine   int             `yaml:"refine"` // uniform refinements applied before solving
}

func (d Domain) mesh() (*mesh.Mesh, error) {
	if len(d.Vertices) > 0 {
		return mesh.NewMeshFromVertices(d.Vertices, d.LeftID, d.RightID)
	}
	return mesh.NewUniformMesh(d.X0, d.X1, d.Cells, d.LeftID, d.RightID)
}

// SystemConfig is one system and the problem each variable solves
type SystemConfig struct {
	Name      string           `yaml:"name"`
	Variables []VariableConfig `yaml:"variables"`
}

// VariableConfig is -(Diffusion u')' + Reaction u = Source with Source a
// polynomial in x given by its coefficients, constant term first
type VariableConfig struct {
	fem.Variable `yaml:",inline"`
	Diffusion    float64                     `yaml:"diffusion"`
	Reaction     float64                     `yaml:"reaction"`
	Source       []float64                   `yaml:"source"`
	Dirichlet    map[mesh.BoundaryID]float64 `yaml:"dirichlet"`
}

// AssemblyConfig selects the partitioning of QoI assembly
type AssemblyConfig struct {
	Partitions int    `yaml:"partitions"`
	Strategy   string `yaml:"strategy"`
}

// DefaultProblem is the coupled flow problem on [-1, 1] with the outlet,
// boundary id 2, at the left end
func DefaultProblem() *Problem {
	return &Problem{
		Name:   "coupled",
		Domain: Domain{X0: -1, X1: 1, Cells: 8, LeftID: 2, RightID: 1},
		Systems: []SystemConfig{{
			Name: "flow",
			Variables: []VariableConfig{
				{
					Variable:  fem.Variable{Name: "u", Degree: 2},
					Diffusion: 1,
					Source:    []float64{1},
					Dirichlet: map[mesh.BoundaryID]float64{2: 1, 1: 0},
				},
				{
					Variable:  fem.Variable{Name: "C", Degree: 2},
					Diffusion: 0.1,
					Reaction:  1,
					Source:    []float64{0, 0, 1},
					Dirichlet: map[mesh.BoundaryID]float64{1: 1},
				},
				{
					Variable: fem.Variable{Name: "p", Degree: 1},
					Reaction: 1,
					Source:   []float64{0, -1},
				},
			},
		}},
		Assembly:  AssemblyConfig{Partitions: 1, Strategy: "block"},
		Estimator: estimator.DefaultConfig(),
	}
}

// Load reads a problem from a YAML file. Fields the file leaves out keep
// the values of DefaultProblem.
func Load(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML problem
func Parse(data []byte) (*Problem, error) {
	p := DefaultProblem()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes the problem as YAML
func (p *Problem) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the problem without building it
func (p *Problem) Validate() error {
	d := p.Domain
	switch {
	case len(d.Vertices) > 0:
		if len(d.Vertices) < 2 {
			return fmt.Errorf("%w: domain.vertices needs at least two entries", ErrInvalid)
		}
		for i := 1; i < len(d.Vertices); i++ {
			if !(d.Vertices[i] > d.Vertices[i-1]) {
				return fmt.Errorf("%w: domain.vertices must increase, got %v then %v",
					ErrInvalid, d.Vertices[i-1], d.Vertices[i])
			}
		}
	case d.Cells < 1:
		return fmt.Errorf("%w: domain.cells must be positive, got %d", ErrInvalid, d.Cells)
	case !(d.X1 > d.X0):
		return fmt.Errorf("%w: empty domain [%v, %v]", ErrInvalid, d.X0, d.X1)
	}
	if d.Refine < 0 {
		return fmt.Errorf("%w: domain.refine must be non-negative", ErrInvalid)
	}
	if len(p.Systems) == 0 {
		return fmt.Errorf("%w: no systems", ErrInvalid)
	}
	names := map[string]bool{}
	for _, s := range p.Systems {
		if s.Name == "" || names[s.Name] {
			return fmt.Errorf("%w: system name %q is empty or duplicated", ErrInvalid, s.Name)
		}
		names[s.Name] = true
		if len(s.Variables) == 0 {
			return fmt.Errorf("%w: system %s has no variables", ErrInvalid, s.Name)
		}
		for _, v := range s.Variables {
			if v.Degree < 1 {
				return fmt.Errorf("%w: system %s variable %s: degree must be >= 1",
					ErrInvalid, s.Name, v.Name)
			}
		}
	}
	if p.Assembly.Partitions < 0 {
		return fmt.Errorf("%w: assembly.partitions must be non-negative", ErrInvalid)
	}
	if _, err := partitions.ParseStrategy(p.Assembly.Strategy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := p.Estimator.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Build creates the mesh and the systems, unsolved
func (p *Problem) Build() (*system.EquationSystems, error) {
	d := p.Domain
	m, err := d.mesh()
	if err != nil {
		return nil, err
	}
	for i := 0; i < d.Refine; i++ {
		m.UniformlyRefine()
	}
	es := system.NewEquationSystems(m)
	for _, sc := range p.Systems {
		vars := make([]fem.Variable, len(sc.Variables))
		problems := make(map[string]system.Problem, len(sc.Variables))
		for i, vc := range sc.Variables {
			vars[i] = vc.Variable
			problems[vc.Name] = system.Problem{
				Diffusion: vc.Diffusion,
				Reaction:  vc.Reaction,
				Source:    Polynomial(vc.Source),
				Dirichlet: vc.Dirichlet,
			}
		}
		disc, err := fem.NewDiscretization(m, vars...)
		if err != nil {
			return nil, fmt.Errorf("system %s: %w", sc.Name, err)
		}
		if err := es.Add(system.NewSystem(sc.Name, disc, system.NewGalerkinSolver(problems))); err != nil {
			return nil, err
		}
	}
	return es, nil
}

// Assembler returns the configured assembly driver
func (p *Problem) Assembler(logger *zap.Logger) *assembly.Assembler {
	strategy, _ := partitions.ParseStrategy(p.Assembly.Strategy)
	return &assembly.Assembler{
		Partitions: p.Assembly.Partitions,
		Strategy:   strategy,
		Logger:     logger,
	}
}

// Polynomial returns x -> c[0] + c[1] x + c[2] x^2 + ...
func Polynomial(c []float64) func(float64) float64 {
	coeffs := append([]float64(nil), c...)
	return func(x float64) float64 {
		var y float64
		for i := len(coeffs) - 1; i >= 0; i-- {
			y = y*x + coeffs[i]
		}
		return y
	}
}
