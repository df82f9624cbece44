package constraints

import (
	"refinerycore/internal/closure"
	"refinerycore/internal/dataset"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type cdu struct{}

// NewCDU yields distillation outputs from base yields plus swing-cut terms.
func NewCDU() Generator { return cdu{} }

func (cdu) Family() string { return FamilyCDU }

func (cdu) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilyCDU)
	idx, data := ctx.Index, ctx.Data

	for _, u := range idx.UnitsIn(closure.CDU) {
		for _, bt := range idx.UnitBatches(u) {
			if len(bt.Inputs) == 0 {
				continue
			}
			m := bt.Batch
			for _, out := range bt.Outputs {
				if !hasYield(data, u, m, bt.Inputs, out) {
					r.fail(domain.DataError{Param: "y", Index: domain.T(u, m, out), Reason: "no yield or swing coefficient for any input"})
					return r.done()
				}
				for _, t := range idx.Periods {
					var rhs model.Expr
					for _, in := range bt.Inputs {
						feed := r.v(variables.FVM, u, m, in, t)
						if y := data.Param("y", u, m, in, out); y.Valid {
							rhs = rhs.Plus(feed.Scale(y.Value))
						}
						if phi := data.Param("phi", u, m, in, out); phi.Valid {
							rhs = rhs.Plus(r.mul(r.v(variables.Zeta, u, m, out, t), feed).Scale(phi.Value))
						}
					}
					r.eq("cdu_yield", domain.T(u, m, out, t), r.v(variables.FVM, u, m, out, t), rhs)
				}
			}
		}
	}
	return r.done()
}

func hasYield(data *dataset.Store, u, m string, inputs []string, out string) bool {
	for _, in := range inputs {
		if data.Param("y", u, m, in, out).Valid || data.Param("phi", u, m, in, out).Valid {
			return true
		}
	}
	return false
}
