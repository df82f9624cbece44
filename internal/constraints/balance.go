package constraints

import (
	"refinerycore/internal/closure"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type materialBalance struct{}

// NewMaterialBalance links stream flows to batch flows and balances mixers,
// splitters, blenders and every stream node.
func NewMaterialBalance() Generator { return materialBalance{} }

func (materialBalance) Family() string { return FamilyMaterialBalance }

func (materialBalance) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilyMaterialBalance)
	idx := ctx.Index

	for _, p := range idx.IU {
		u, s := p[0], p[1]
		batches := idx.InputBatches(u, s)
		for _, t := range idx.Periods {
			r.eq("batch_sum_input", domain.T(u, s, t), r.v(variables.FVI, s, t), r.batchOf(u, batches, s, t))
		}
	}
	for _, p := range idx.OU {
		u, s := p[0], p[1]
		batches := idx.OutputBatches(u, s)
		for _, t := range idx.Periods {
			r.eq("batch_sum_output", domain.T(u, s, t), r.v(variables.FVO, s, t), r.batchOf(u, batches, s, t))
		}
	}

	for _, u := range idx.UnitsIn(closure.Mixer) {
		for _, bt := range idx.UnitBatches(u) {
			if len(bt.Inputs) == 0 || len(bt.Outputs) == 0 {
				continue
			}
			for _, t := range idx.Periods {
				r.eq("mixer_balance", domain.T(u, bt.Batch, t),
					r.batchSum(variables.FVM, u, bt.Batch, bt.Outputs, t),
					r.batchSum(variables.FVM, u, bt.Batch, bt.Inputs, t))
			}
		}
	}

	for _, cat := range []closure.Category{closure.Splitter, closure.Blender} {
		for _, u := range idx.UnitsIn(cat) {
			in, out := idx.UnitInputs(u), idx.UnitOutputs(u)
			if len(in) == 0 || len(out) == 0 {
				continue
			}
			for _, t := range idx.Periods {
				r.eq("splitter_blender_balance", domain.T(u, t),
					r.streamSum(variables.FVO, out, t),
					r.streamSum(variables.FVI, in, t))
			}
		}
	}

	for _, s := range idx.Streams {
		for _, t := range idx.Periods {
			produced := r.v(variables.FVO, s, t)
			consumed := r.v(variables.FVI, s, t)
			if idx.IsInventory(s, t) {
				produced = produced.Plus(r.v(variables.FVLO, s, t))
				consumed = consumed.Plus(r.v(variables.FVLI, s, t))
			}
			r.eq("stream_balance", domain.T(s, t), produced, consumed)
		}
	}
	return r.done()
}

// batchOf sums FVM[u,m,s,t] over the given batches of one stream.
func (r *rows) batchOf(u string, batches []string, s, t string) model.Expr {
	var e model.Expr
	for _, m := range batches {
		e = e.Plus(r.v(variables.FVM, u, m, s, t))
	}
	return e
}
