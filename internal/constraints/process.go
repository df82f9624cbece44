package constraints

import (
	"refinerycore/internal/closure"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type processUnit struct{}

// NewProcessUnit covers fixed-yield units, delta-base units and property
// transfer between related streams.
func NewProcessUnit() Generator { return processUnit{} }

func (processUnit) Family() string { return FamilyProcessUnit }

func (processUnit) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilyProcessUnit)
	fixedYield(r)
	deltaBase(r)
	propertyTransfer(r)
	return r.done()
}

// fixedYield: FVM[out] * sum(gamma) = gamma[out] * sum(FVM[in]). The
// normalising sum runs over every batch stream, inputs included, with an
// absent gamma counting as zero; deltaBase uses the same rule over GAMMA.
func fixedYield(r *rows) {
	idx, data := r.ctx.Index, r.ctx.Data
	for _, u := range idx.UnitsIn(closure.FixedYield) {
		for _, bt := range idx.UnitBatches(u) {
			if len(bt.Inputs) == 0 || len(bt.Outputs) == 0 {
				continue
			}
			m := bt.Batch
			total := 0.0
			for _, s := range bt.Streams() {
				total += data.Param("gamma", u, m, s).Or(0)
			}
			for _, out := range bt.Outputs {
				g := data.Param("gamma", u, m, out)
				if !g.Valid {
					r.fail(domain.MissingParam("gamma", domain.T(u, m, out)))
					return
				}
				if total == 0 {
					r.fail(domain.DataError{Param: "gamma", Index: domain.T(u, m), Reason: "yield coefficients sum to zero"})
					return
				}
				for _, t := range idx.Periods {
					r.eq("fixed_yield", domain.T(u, m, out, t),
						r.v(variables.FVM, u, m, out, t).Scale(total),
						r.batchSum(variables.FVM, u, m, bt.Inputs, t).Scale(g.Value))
				}
			}
		}
	}
}

// deltaBase shifts base yields by feed property deviations and applies the
// resulting GAMMA variables to the batch feed. GAMMA exists for every batch
// stream; only outputs must carry a base gamma, inputs default to zero.
func deltaBase(r *rows) {
	idx, data := r.ctx.Index, r.ctx.Data
	for _, u := range idx.UnitsIn(closure.DeltaBase) {
		for _, bt := range idx.UnitBatches(u) {
			if len(bt.Inputs) == 0 || len(bt.Outputs) == 0 {
				continue
			}
			m := bt.Batch
			pairs := idx.DeltaBasePairs(u, m)
			base := make([]float64, len(pairs))
			span := make([]float64, len(pairs))
			for i, p := range pairs {
				b := data.Param("B", u, m, p[0], p[1])
				if !b.Valid {
					r.fail(domain.MissingParam("B", domain.T(u, m, p[0], p[1])))
					return
				}
				del := data.Param("Del", u, m, p[0], p[1]).Or(1)
				if del == 0 {
					r.fail(domain.DataError{Param: "Del", Index: domain.T(u, m, p[0], p[1]), Reason: "zero delta-base step"})
					return
				}
				base[i], span[i] = b.Value, del
			}
			outputs := make(map[string]bool, len(bt.Outputs))
			for _, out := range bt.Outputs {
				outputs[out] = true
			}
			for _, s := range bt.Streams() {
				g := data.Param("gamma", u, m, s)
				if !g.Valid && outputs[s] {
					r.fail(domain.MissingParam("gamma", domain.T(u, m, s)))
					return
				}
				for _, t := range idx.Periods {
					rhs := model.C(g.Or(0))
					for i, p := range pairs {
						d := data.Param("delta", u, m, s, p[0], p[1])
						if !d.Valid {
							continue
						}
						shift := r.v(variables.FQ, p[0], p[1], t).Minus(model.C(base[i]))
						rhs = rhs.Plus(shift.Scale(d.Value / span[i]))
					}
					r.eq("delta_base_gamma", domain.T(u, m, s, t), r.v(variables.Gamma, u, m, s, t), rhs)
				}
			}
			for _, out := range bt.Outputs {
				for _, t := range idx.Periods {
					var gammas model.Expr
					for _, o := range bt.Streams() {
						gammas = gammas.Plus(r.v(variables.Gamma, u, m, o, t))
					}
					r.eq("delta_base_yield", domain.T(u, m, out, t),
						r.mul(r.v(variables.FVM, u, m, out, t), gammas),
						r.mul(r.v(variables.Gamma, u, m, out, t), r.batchSum(variables.FVM, u, m, bt.Inputs, t)))
				}
			}
		}
	}
}

// propertyTransfer: FQ[s',q] = alpha * FQ[s,q] for (s,s',q) in QT.
func propertyTransfer(r *rows) {
	idx, data := r.ctx.Index, r.ctx.Data
	for _, rel := range idx.QT {
		s, so, q := rel[0], rel[1], rel[2]
		if !idx.HasProperty(s, q) || !idx.HasProperty(so, q) {
			continue
		}
		if idx.IsFixed(so, q) {
			continue
		}
		alpha := data.Param("alpha", s, so, q).Or(1)
		for _, t := range idx.Periods {
			r.eq("property_transfer", domain.T(s, so, q, t),
				r.v(variables.FQ, so, q, t),
				r.v(variables.FQ, s, q, t).Scale(alpha))
		}
	}
}
