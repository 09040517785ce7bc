package estimator

import (
	"errors"
	"fmt"
)

// Config controls the refinement applied by the estimator and the norm the
// fine/coarse difference is measured in
type Config struct {
	// Uniform bisections of every active cell
	NumberHRefinements int `yaml:"number_h_refinements"`
	// Uniform degree increases of every variable
	NumberPRefinements int `yaml:"number_p_refinements"`
	// 0 = L2, 1 = H1 seminorm, 2 = H2 seminorm
	SobolevOrder int `yaml:"sobolev_order"`
}

// DefaultConfig returns one h refinement, no p refinement, H1 seminorm
func DefaultConfig() Config {
	return Config{
		NumberHRefinements: 1,
		NumberPRefinements: 0,
		SobolevOrder:       1,
	}
}

// Validate reports the first invalid setting as a *ConfigurationError
func (c Config) Validate() error {
	switch {
	case c.NumberHRefinements < 0:
		return &ConfigurationError{Field: "number_h_refinements",
			Reason: fmt.Sprintf("must be non-negative, got %d", c.NumberHRefinements)}
	case c.NumberPRefinements < 0:
		return &ConfigurationError{Field: "number_p_refinements",
			Reason: fmt.Sprintf("must be non-negative, got %d", c.NumberPRefinements)}
	case c.SobolevOrder < 0 || c.SobolevOrder > 2:
		return &ConfigurationError{Field: "sobolev_order",
			Reason: fmt.Sprintf("must be 0, 1 or 2, got %d", c.SobolevOrder)}
	}
	return nil
}

// ErrConfiguration matches every *ConfigurationError with errors.Is
var ErrConfiguration = errors.New("estimator configuration error")

// ConfigurationError is raised before any refinement or solve takes place
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("estimator configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// SolverFailure wraps an error from solving a refined system. The state of
// the caller's systems is unspecified after it is returned.
type SolverFailure struct {
	System string
	Err    error
}

func (e *SolverFailure) Error() string {
	return fmt.Sprintf("solving refined system %s: %v", e.System, e.Err)
}

func (e *SolverFailure) Unwrap() error { return e.Err }
