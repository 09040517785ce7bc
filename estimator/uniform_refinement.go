// Package estimator implements a brute force a-posteriori error estimate:
// the problem is re-solved on a uniformly refined copy of its
// discretization and the difference from the original solution is
// integrated cell by cell.
package estimator

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/notargets/FEMAdjoint/element"
	"github.com/notargets/FEMAdjoint/fem"
	"github.com/notargets/FEMAdjoint/mesh"
	"github.com/notargets/FEMAdjoint/system"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var tracer = otel.Tracer("github.com/notargets/FEMAdjoint/estimator")

// UniformRefinementEstimator estimates per-cell errors by refining every
// cell (h) and/or raising every degree (p), solving again and measuring
// fine minus coarse in a Sobolev seminorm. The caller's systems are left
// as they were found on success.
type UniformRefinementEstimator struct {
	Config Config
	logger *zap.Logger
}

// Option configures an estimator
type Option func(*UniformRefinementEstimator)

// WithLogger sets the estimator's logger
func WithLogger(l *zap.Logger) Option {
	return func(e *UniformRefinementEstimator) { e.logger = l }
}

// NewUniformRefinementEstimator returns an estimator for cfg
func NewUniformRefinementEstimator(cfg Config, opts ...Option) *UniformRefinementEstimator {
	e := &UniformRefinementEstimator{Config: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// EstimateError estimates the error of one system, all variables folded
// into one vector
func (e *UniformRefinementEstimator) EstimateError(ctx context.Context, sys *system.System,
	estimateParentError bool) (*ErrorVector, error) {

	out := NewErrorVector()
	err := e.estimate(ctx, []*system.System{sys}, nil, &singleSink{out: out}, estimateParentError)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EstimateErrors estimates every system of es into one vector, weighting
// variable v of system s by scales[s][v]. A system absent from scales has
// unit weights.
func (e *UniformRefinementEstimator) EstimateErrors(ctx context.Context, es *system.EquationSystems,
	scales map[string][]float64, estimateParentError bool) (*ErrorVector, error) {

	out := NewErrorVector()
	err := e.estimate(ctx, es.Systems(), es, &singleSink{out: out, scales: scales}, estimateParentError)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EstimateErrorMap fills errs for exactly the (system, variable) keys it
// already holds. Keys naming an unknown system or variable are a
// configuration error.
func (e *UniformRefinementEstimator) EstimateErrorMap(ctx context.Context, es *system.EquationSystems,
	errs ErrorMap, estimateParentError bool) error {

	return e.estimate(ctx, es.Systems(), es, &mapSink{errs: errs}, estimateParentError)
}

// estimate is shared by the three entry points. When es is nil the single
// system is refined on its own; otherwise the shared mesh is refined once
// and every system of es is solved in order.
func (e *UniformRefinementEstimator) estimate(ctx context.Context, systems []*system.System,
	es *system.EquationSystems, sink errorSink, parents bool) (err error) {

	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID))
	ctx, span := tracer.Start(ctx, "estimator.estimate", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("number_h_refinements", e.Config.NumberHRefinements),
		attribute.Int("number_p_refinements", e.Config.NumberPRefinements),
		attribute.Int("sobolev_order", e.Config.SobolevOrder),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if err := e.Config.Validate(); err != nil {
		return err
	}
	if len(systems) == 0 {
		return &ConfigurationError{Field: "systems", Reason: "nothing to estimate"}
	}
	if err := sink.validate(systems); err != nil {
		return err
	}

	snaps := make([]*system.Snapshot, len(systems))
	for i, sys := range systems {
		snaps[i] = sys.Snapshot()
	}

	fine, err := e.refine(ctx, systems, es)
	if err != nil {
		return err
	}
	log.Debug("refined",
		zap.Int("coarse_cells", systems[0].Disc.Mesh.NumActive()),
		zap.Int("fine_cells", fine[0].Disc.Mesh.NumActive()))

	if err := e.solve(ctx, fine, log); err != nil {
		return err
	}

	for _, vec := range sink.vectors() {
		vec.reset(systems[0].Disc.Mesh, parents)
	}
	if err := e.diff(ctx, systems, fine, sink); err != nil {
		return err
	}
	for _, vec := range sink.vectors() {
		vec.sqrt()
	}

	for i, sys := range systems {
		if err := sys.Restore(snaps[i]); err != nil {
			return err
		}
	}
	log.Debug("restored", zap.Int("systems", len(systems)))
	return nil
}

func (e *UniformRefinementEstimator) refine(ctx context.Context, systems []*system.System,
	es *system.EquationSystems) ([]*system.System, error) {

	_, span := tracer.Start(ctx, "estimator.refine")
	defer span.End()

	nh, np := e.Config.NumberHRefinements, e.Config.NumberPRefinements
	if es == nil {
		fs, err := systems[0].Refined(nh, np)
		if err != nil {
			return nil, err
		}
		return []*system.System{fs}, nil
	}
	fineES, err := es.Refined(nh, np)
	if err != nil {
		return nil, err
	}
	return fineES.Systems(), nil
}

func (e *UniformRefinementEstimator) solve(ctx context.Context, fine []*system.System, log *zap.Logger) error {
	ctx, span := tracer.Start(ctx, "estimator.solve")
	defer span.End()

	for _, fs := range fine {
		if err := fs.Solve(ctx); err != nil {
			return &SolverFailure{System: fs.Name, Err: err}
		}
		log.Debug("solved refined system",
			zap.String("system", fs.Name),
			zap.Int("dofs", fs.Disc.NumDofs()))
	}
	return nil
}

// diff integrates |D^s(u_fine - u_coarse)|^2 over the fine descendants of
// every active coarse cell
func (e *UniformRefinementEstimator) diff(ctx context.Context, coarse, fine []*system.System,
	sink errorSink) error {

	_, span := tracer.Start(ctx, "estimator.diff")
	defer span.End()

	order := e.Config.SobolevOrder
	need := fem.JxW | fem.XYZ | derivativeQuantity(order)
	for i, cs := range coarse {
		targets := sink.targets(cs)
		if len(targets) == 0 {
			continue
		}
		fs := fine[i]
		cm, fm := cs.Disc.Mesh, fs.Disc.Mesh

		cctx, err := fem.NewContext(cs.Disc, cs.Solution)
		if err != nil {
			return err
		}
		fctx, err := fem.NewContext(fs.Disc, fs.Solution)
		if err != nil {
			return err
		}
		// only coefficients are read on the coarse side
		coarseNeeds, fineNeeds := fem.NewNeeds(), fem.NewNeeds()
		for v := 0; v < fs.NumVariables(); v++ {
			coarseNeeds.Element[v], coarseNeeds.Side[v] = fem.Nothing, fem.Nothing
			fineNeeds.Element[v], fineNeeds.Side[v] = fem.Nothing, fem.Nothing
		}
		for _, t := range targets {
			fineNeeds.Element[t.variable] = need
		}
		cctx.SetNeeds(coarseNeeds)
		fctx.SetNeeds(fineNeeds)

		for _, cid := range cm.ActiveCells() {
			if err := cctx.ReinitElement(cid); err != nil {
				return err
			}
			ccell := cm.Cell(cid)
			for _, fid := range fm.ActiveDescendants(cid) {
				if err := fctx.ReinitElement(fid); err != nil {
					return err
				}
				for _, t := range targets {
					e2 := cellDifference(cs.Disc, cctx, fctx, ccell, t.variable, order)
					t.into.accumulate(cm, cid, t.scale*t.scale*e2)
				}
			}
		}
	}
	return nil
}

func derivativeQuantity(order int) fem.Quantity {
	switch order {
	case 0:
		return fem.Phi
	case 1:
		return fem.DPhi
	default:
		return fem.D2Phi
	}
}

// cellDifference returns the integral over the current fine cell of the
// squared order-th derivative of fine minus coarse for variable v
func cellDifference(cdisc *fem.Discretization, cctx, fctx *fem.Context, ccell *mesh.Cell,
	v, order int) float64 {

	fe := fctx.ElementFE(v)
	jxw, xyz := fe.JxW(), fe.XYZ()
	fineBasis := basisDerivative(fe, order)
	fineCoeffs := fctx.LocalSolution(v)

	// coarse basis at the fine quadrature points through the coarse map
	h := ccell.H()
	r := make([]float64, len(xyz))
	for qp := range xyz {
		r[qp] = 2*(xyz[qp][0]-ccell.X0)/h - 1
	}
	coarseBasis := referenceDerivative(cdisc.Elements[v], r, order)
	jac := math.Pow(2/h, float64(order))
	coarseCoeffs := cctx.LocalSolution(v)

	var e2 float64
	for qp := range jxw {
		var uf, uc float64
		for i, c := range fineCoeffs {
			uf += c * fineBasis[i][qp]
		}
		for j, c := range coarseCoeffs {
			uc += c * jac * coarseBasis.At(qp, j)
		}
		d := uf - uc
		e2 += jxw[qp] * d * d
	}
	return e2
}

// referenceDerivative evaluates the order-th r derivative of a basis at r
func referenceDerivative(el element.BasisEvaluator, r []float64, order int) *mat.Dense {
	switch order {
	case 0:
		return el.Phi(r)
	case 1:
		return el.PhiR(r)
	default:
		return el.PhiRR(r)
	}
}

func basisDerivative(fe *fem.FE, order int) [][]float64 {
	switch order {
	case 0:
		return fe.Phi()
	case 1:
		return fe.DPhi()
	default:
		return fe.D2Phi()
	}
}

func (e *UniformRefinementEstimator) String() string {
	return fmt.Sprintf("uniform refinement estimator: h=%d p=%d sobolev=%d",
		e.Config.NumberHRefinements, e.Config.NumberPRefinements, e.Config.SobolevOrder)
}
