package constraints

import (
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type inventory struct{}

// NewInventory carries tank levels across periods. One binary per (s,t)
// selects the flow direction: X=1 allows outflow only, X=0 inflow only.
func NewInventory() Generator { return inventory{} }

func (inventory) Family() string { return FamilyInventory }

func (inventory) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilyInventory)
	idx, data := ctx.Index, ctx.Data
	for _, p := range idx.Inventory {
		s, t := p[0], p[1]
		lmax := data.Param("LMax", s, t)
		if !lmax.Valid {
			return nil, domain.MissingParam("LMax", domain.T(s, t))
		}
		if lmax.Value < 0 {
			return nil, domain.DataError{Param: "LMax", Index: domain.T(s, t), Reason: "negative tank capacity"}
		}
		level := r.v(variables.L, s, t)
		in, out := r.v(variables.FVLI, s, t), r.v(variables.FVLO, s, t)
		flag := r.v(variables.X, s, t)

		prev := model.C(data.Param("L0", s).Or(0))
		if tp, ok := idx.PrevPeriod(t); ok {
			prev = r.v(variables.L, s, tp)
		}
		r.eq("inventory_level", domain.T(s, t), level, prev.Plus(in).Minus(out))
		r.between("inventory_bounds", domain.T(s, t), data.Param("LMin", s, t), level, lmax)
		r.le("inventory_out_flag", domain.T(s, t), out, flag.Scale(lmax.Value))
		r.le("inventory_in_flag", domain.T(s, t), in, model.C(lmax.Value).Minus(flag.Scale(lmax.Value)))
	}
	return r.done()
}
