// Command femadjoint solves a configured problem, assembles its outlet QoI
// and adjoint right hand side, and runs the uniform refinement error
// estimator on it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/notargets/FEMAdjoint/config"
	"github.com/notargets/FEMAdjoint/estimator"
	"github.com/notargets/FEMAdjoint/mesh"
	"github.com/notargets/FEMAdjoint/qoi"
	"github.com/notargets/FEMAdjoint/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/floats"
)

type app struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:   "femadjoint",
		Short: "Adjoint QoI assembly and uniform refinement error estimation",
		Long: `femadjoint reads a YAML problem (see "femadjoint init"), solves it with a
continuous Galerkin discretization and reports the outlet quantity of
interest, its adjoint right hand side, and per-cell error estimates
obtained by solving again on a uniformly refined discretization.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if a.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "problem file (default: built-in coupled problem)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(a.initCmd(), a.solveCmd(), a.qoiCmd(), a.estimateCmd())
	return root
}

func (a *app) problem() (*config.Problem, error) {
	if a.configPath == "" {
		return config.DefaultProblem(), nil
	}
	return config.Load(a.configPath)
}

// solved loads, builds and solves the configured problem
func (a *app) solved(ctx context.Context) (*config.Problem, *system.EquationSystems, error) {
	p, err := a.problem()
	if err != nil {
		return nil, nil, err
	}
	es, err := p.Build()
	if err != nil {
		return nil, nil, err
	}
	if err := es.Solve(ctx); err != nil {
		return nil, nil, err
	}
	a.logger.Info("problem solved",
		zap.String("problem", p.Name),
		zap.Int("cells", es.Mesh.NumActive()),
		zap.Int("systems", len(es.Systems())))
	return p, es, nil
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write the built-in problem as a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DefaultProblem().Save(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}

func (a *app) solveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve",
		Short: "Solve the problem and print its discretization and nodal values",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, es, err := a.solved(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range es.Systems() {
				fmt.Fprintf(out, "System %s\n%s", s.Name, s.Disc)
				for v, vr := range s.Disc.Variables {
					fmt.Fprintf(out, "%s: %.6g\n", vr.Name, s.VariableSolution(v).RawVector().Data)
				}
			}
			return nil
		},
	}
}

func (a *app) qoiCmd() *cobra.Command {
	var sysName string
	cmd := &cobra.Command{
		Use:   "qoi",
		Short: "Assemble the outlet QoI and its adjoint right hand side",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, es, err := a.solved(cmd.Context())
			if err != nil {
				return err
			}
			sys, err := pickSystem(es, sysName)
			if err != nil {
				return err
			}
			asm := p.Assembler(a.logger)
			ev := qoi.NewCoupledSystemQoI()
			vals, err := asm.AssembleQoI(cmd.Context(), sys, ev, qoi.AllQoIs())
			if err != nil {
				return err
			}
			rhs, err := asm.AssembleQoIDerivative(cmd.Context(), sys, ev, qoi.AllQoIs())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for q, val := range vals {
				fmt.Fprintf(out, "QoI %d = %.12g\n", q, val)
				for v, vr := range sys.Disc.Variables {
					vec := rhs.Vector(q, v)
					fmt.Fprintf(out, "  dQ%d/d%s: |.|2 = %.6g  %.6g\n",
						q, vr.Name, floats.Norm(vec.RawVector().Data, 2), vec.RawVector().Data)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sysName, "system", "s", "", "system to evaluate (default: first)")
	return cmd
}

func (a *app) estimateCmd() *cobra.Command {
	var (
		parent bool
		byVar  bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate per-cell errors by uniform refinement",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, es, err := a.solved(cmd.Context())
			if err != nil {
				return err
			}
			e := estimator.NewUniformRefinementEstimator(p.Estimator, estimator.WithLogger(a.logger))
			a.logger.Info("estimating", zap.Stringer("estimator", e))
			out := cmd.OutOrStdout()
			if !byVar {
				ev, err := e.EstimateErrors(cmd.Context(), es, nil, parent)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "all systems")
				writeErrors(out, es.Mesh, ev)
				return nil
			}
			errs := estimator.ErrorMap{}
			for _, s := range es.Systems() {
				for v := range s.Disc.Variables {
					errs[estimator.ErrorKey{System: s.Name, Variable: v}] = nil
				}
			}
			if err := e.EstimateErrorMap(cmd.Context(), es, errs, parent); err != nil {
				return err
			}
			keys := make([]estimator.ErrorKey, 0, len(errs))
			for k := range errs {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				if keys[i].System != keys[j].System {
					return keys[i].System < keys[j].System
				}
				return keys[i].Variable < keys[j].Variable
			})
			for _, k := range keys {
				s, _ := es.Get(k.System)
				fmt.Fprintf(out, "%s/%s\n", k.System, s.Disc.Variables[k.Variable].Name)
				writeErrors(out, es.Mesh, errs[k])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&parent, "parent", false, "also report errors of parent cells")
	cmd.Flags().BoolVar(&byVar, "map", false, "report one table per system variable")
	return cmd
}

func pickSystem(es *system.EquationSystems, name string) (*system.System, error) {
	if name == "" {
		return es.Systems()[0], nil
	}
	s, ok := es.Get(name)
	if !ok {
		return nil, fmt.Errorf("no system named %q", name)
	}
	return s, nil
}

func writeErrors(w io.Writer, m *mesh.Mesh, ev *estimator.ErrorVector) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "cell\tx0\tx1\terror")
	for _, id := range ev.CellIDs() {
		c := m.Cell(id)
		fmt.Fprintf(tw, "%d\t%.6g\t%.6g\t%.6e\n", id, c.X0, c.X1, ev.Cells[id])
	}
	for _, id := range ev.ParentIDs() {
		c := m.Cell(id)
		fmt.Fprintf(tw, "parent %d\t%.6g\t%.6g\t%.6e\n", id, c.X0, c.X1, ev.Parents[id])
	}
	fmt.Fprintf(tw, "total\t\t\t%.6e\n", ev.Total())
	_ = tw.Flush()
}
