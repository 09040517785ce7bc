// Package assembly drives QoI and adjoint right hand side assembly over a
// system's cells and boundary sides. Cells are split into partitions, each
// partition is assembled by its own goroutine into private storage, and the
// partial results are reduced in partition order so results do not depend
// on scheduling.
package assembly

import (
	"context"
	"fmt"

	"github.com/notargets/FEMAdjoint/fem"
	"github.com/notargets/FEMAdjoint/mesh"
	"github.com/notargets/FEMAdjoint/partitions"
	"github.com/notargets/FEMAdjoint/qoi"
	"github.com/notargets/FEMAdjoint/system"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

var tracer = otel.Tracer("github.com/notargets/FEMAdjoint/assembly")

// Assembler runs QoI assembly passes. The zero value assembles serially
// with a single partition.
type Assembler struct {
	Partitions int
	Strategy   partitions.PartitionStrategy
	Logger     *zap.Logger
}

func (a *Assembler) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// worker is the per-partition state of one pass
type worker struct {
	part partitions.Partition
	fc   *fem.Context
}

// visitor holds the integrand hooks of a pass: element runs after the
// element reinit, side after each boundary side reinit
type visitor struct {
	element func(w *worker)
	side    func(w *worker)
	done    func(w *worker) error // after all of a cell's integrands
}

// AssembleQoI adds ev's QoI contributions over the system into sys.QoIs()
// and returns this pass's contributions. Storage is allocated through
// ev.InitQoICount when the system has none; otherwise the values present
// are accumulated into, so the caller resets them between passes.
func (a *Assembler) AssembleQoI(ctx context.Context, sys *system.System, ev qoi.Evaluator,
	qois qoi.QoISet) ([]float64, error) {

	ctx, span := tracer.Start(ctx, "assembly.qoi")
	defer span.End()

	if sys.QoIs() == nil {
		if err := ev.InitQoICount(sys); err != nil {
			return nil, a.fail(span, fmt.Errorf("init qoi count: %w", err))
		}
	}
	nQ := len(sys.QoIs())

	layout, mc, err := a.layout(sys, span)
	if err != nil {
		return nil, a.fail(span, err)
	}
	partial := partitions.AllocatePartitionedArray(layout, nQ)

	ee, hasElement := ev.(qoi.ElementEvaluator)
	v := visitor{
		side: func(w *worker) { ev.SideQoI(w.fc, qois) },
	}
	if hasElement {
		v.element = func(w *worker) { ee.ElementQoI(w.fc, qois) }
	}
	bind := func(p int, fc *fem.Context) { fc.BindQoIs(partial.GetPartitionData(p)) }

	if err := a.run(ctx, sys, ev, layout, mc, bind, v); err != nil {
		return nil, a.fail(span, err)
	}

	total := make([]float64, nQ)
	for p := 0; p < layout.NumPartitions; p++ {
		qoi.ThreadJoin(ev, total, partial.GetPartitionData(p), qois)
	}
	floats.Add(sys.QoIs(), total)

	a.logger().Debug("qoi assembled",
		zap.String("system", sys.Name),
		zap.Float64s("qois", total))
	span.SetStatus(codes.Ok, "")
	return total, nil
}

// AssembleQoIDerivative assembles dQ/du for the selected QoIs into a new
// adjoint right hand side
func (a *Assembler) AssembleQoIDerivative(ctx context.Context, sys *system.System, ev qoi.Evaluator,
	qois qoi.QoISet) (*system.AdjointRHS, error) {

	ctx, span := tracer.Start(ctx, "assembly.qoi_derivative")
	defer span.End()

	if sys.QoIs() == nil {
		if err := ev.InitQoICount(sys); err != nil {
			return nil, a.fail(span, fmt.Errorf("init qoi count: %w", err))
		}
	}
	nQ := len(sys.QoIs())

	layout, mc, err := a.layout(sys, span)
	if err != nil {
		return nil, a.fail(span, err)
	}
	parts := make([]*system.AdjointRHS, layout.NumPartitions)
	for p := range parts {
		parts[p] = system.NewAdjointRHS(sys.Disc, nQ)
	}

	ee, hasElement := ev.(qoi.ElementEvaluator)
	v := visitor{
		side: func(w *worker) { ev.SideQoIDerivative(w.fc, qois) },
		done: func(w *worker) error {
			rhs := parts[w.part.ID]
			id := w.fc.Cell().ID
			for q := 0; q < nQ; q++ {
				if !qois.Has(q) {
					continue
				}
				for vr := 0; vr < sys.NumVariables(); vr++ {
					dofs, err := sys.Disc.DofMaps[vr].DofIndices(id)
					if err != nil {
						return err
					}
					rhs.AddLocal(q, vr, dofs, w.fc.QoIDerivatives(q, vr))
				}
			}
			return nil
		},
	}
	if hasElement {
		v.element = func(w *worker) { ee.ElementQoIDerivative(w.fc, qois) }
	}
	bind := func(_ int, fc *fem.Context) { fc.BindQoIs(make([]float64, nQ)) }

	if err := a.run(ctx, sys, ev, layout, mc, bind, v); err != nil {
		return nil, a.fail(span, err)
	}

	total := system.NewAdjointRHS(sys.Disc, nQ)
	for _, part := range parts {
		if err := total.Add(part); err != nil {
			return nil, a.fail(span, err)
		}
	}
	a.logger().Debug("qoi derivative assembled", zap.String("system", sys.Name))
	span.SetStatus(codes.Ok, "")
	return total, nil
}

func (a *Assembler) layout(sys *system.System, span trace.Span) (*partitions.PartitionLayout,
	*partitions.MeshConnectivity, error) {

	mc := partitions.NewMeshConnectivity(sys.Disc.Mesh)
	pb := partitions.PartitionBuilder{
		Mesh:          mc,
		NumPartitions: a.Partitions,
		Strategy:      a.Strategy,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return nil, nil, fmt.Errorf("partitioning system %s: %w", sys.Name, err)
	}
	stats := layout.PartitionStatistics()
	span.SetAttributes(
		attribute.String("system", sys.Name),
		attribute.Int("partitions", layout.NumPartitions),
		attribute.String("strategy", a.Strategy.String()),
	)
	a.logger().Debug("partitioned",
		zap.String("system", sys.Name),
		zap.Int("partitions", stats.NumPartitions),
		zap.Int("min_cells", stats.MinElements),
		zap.Int("max_cells", stats.MaxElements),
		zap.Float64("imbalance", stats.Imbalance))
	return layout, mc, nil
}

// run prepares one context per partition serially, so evaluators may
// record state in InitContext, then assembles the partitions concurrently
func (a *Assembler) run(ctx context.Context, sys *system.System, ev qoi.Evaluator,
	layout *partitions.PartitionLayout, mc *partitions.MeshConnectivity,
	bind func(p int, fc *fem.Context), v visitor) error {

	workers := make([]*worker, layout.NumPartitions)
	for p, part := range layout.Partitions {
		fc, err := fem.NewContext(sys.Disc, sys.Solution)
		if err != nil {
			return err
		}
		if err := ev.InitContext(fc); err != nil {
			return fmt.Errorf("init context: %w", err)
		}
		bind(p, fc)
		workers[p] = &worker{part: part, fc: fc}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			for _, k := range w.part.Elements {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := assembleCell(sys.Disc.Mesh, mc.Cells[k], w, v); err != nil {
					return fmt.Errorf("partition %d: %w", w.part.ID, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func assembleCell(m *mesh.Mesh, id mesh.CellID, w *worker, v visitor) error {
	if err := w.fc.ReinitElement(id); err != nil {
		return err
	}
	if v.element != nil {
		v.element(w)
	}
	for side := 0; side < mesh.NumSides; side++ {
		if !m.IsBoundarySide(id, side) {
			continue
		}
		if err := w.fc.ReinitSide(side); err != nil {
			return err
		}
		v.side(w)
	}
	if v.done != nil {
		return v.done(w)
	}
	return nil
}

func (a *Assembler) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
