package constraints

import (
	"refinerycore/internal/closure"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type mixer struct{}

// NewMixer averages output properties over the batch inputs on a volume or
// mass basis and converts batch mass to volume through the gravity property.
func NewMixer() Generator { return mixer{} }

func (mixer) Family() string { return FamilyMixer }

func (mixer) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilyMixer)
	idx, data := ctx.Index, ctx.Data

	for _, u := range idx.UnitsIn(closure.Mixer) {
		for _, bt := range idx.UnitBatches(u) {
			m := bt.Batch
			for _, s := range bt.Streams() {
				spg, ok := idx.Gravity(s)
				if !ok {
					continue
				}
				for _, t := range idx.Periods {
					r.eq("mixer_volume_mass", domain.T(u, m, s, t),
						r.mul(r.v(variables.VM, u, m, s, t), r.v(variables.FQ, s, spg, t)),
						r.v(variables.FVM, u, m, s, t))
				}
			}
			if len(bt.Inputs) == 0 {
				continue
			}
			for _, out := range bt.Outputs {
				if _, ok := idx.Gravity(out); ok {
					if err := requireGravity(idx, u, bt.Inputs); err != nil {
						r.fail(err)
						return r.done()
					}
					for _, t := range idx.Periods {
						r.eq("mixer_volume_balance", domain.T(u, m, out, t),
							r.v(variables.VM, u, m, out, t),
							r.batchSum(variables.VM, u, m, bt.Inputs, t))
					}
				}
				mixProperties(r, u, m, out, bt.Inputs)
				for _, q := range idx.StreamProps(out) {
					lo, hi := data.Param("FQVMin", u, m, q), data.Param("FQVMax", u, m, q)
					for _, t := range idx.Periods {
						r.between("mixer_property_bounds", domain.T(u, m, out, q, t), lo, r.v(variables.FQ, out, q, t), hi)
					}
				}
			}
		}
	}
	return r.done()
}

// mixProperties emits the weighted-average rows of one mixer output.
func mixProperties(r *rows, u, m, out string, inputs []string) {
	idx := r.ctx.Index
	for _, q := range idx.StreamProps(out) {
		if idx.IsFixed(out, q) {
			continue
		}
		var feeds []string
		for _, in := range inputs {
			if idx.HasProperty(in, q) {
				feeds = append(feeds, in)
			}
		}
		if len(feeds) == 0 {
			continue
		}
		switch {
		case idx.IsVolumeBasis(q):
			if _, ok := idx.Gravity(out); !ok {
				r.fail(domain.DataError{Set: "SQ", Index: domain.T(out), Reason: "volume-basis property on a stream without gravity property"})
				return
			}
			if err := requireGravity(idx, u, feeds); err != nil {
				r.fail(err)
				return
			}
			for _, t := range idx.Periods {
				var rhs model.Expr
				for _, in := range feeds {
					rhs = rhs.Plus(r.mul(r.v(variables.VM, u, m, in, t), r.v(variables.FQ, in, q, t)))
				}
				r.eq("mixer_volume_property", domain.T(u, m, out, q, t),
					r.mul(r.v(variables.VM, u, m, out, t), r.v(variables.FQ, out, q, t)), rhs)
			}
		case idx.IsMassBasis(q):
			for _, t := range idx.Periods {
				var rhs model.Expr
				for _, in := range feeds {
					rhs = rhs.Plus(r.mul(r.v(variables.FVM, u, m, in, t), r.v(variables.FQ, in, q, t)))
				}
				r.eq("mixer_mass_property", domain.T(u, m, out, q, t),
					r.mul(r.v(variables.FVM, u, m, out, t), r.v(variables.FQ, out, q, t)), rhs)
			}
		}
	}
}

func requireGravity(idx *closure.Index, u string, streams []string) error {
	for _, s := range streams {
		if _, ok := idx.Gravity(s); !ok {
			return domain.DataError{Set: "SQ", Index: domain.T(u, s), Reason: "stream lacks a gravity property needed for volume conversion"}
		}
	}
	return nil
}
