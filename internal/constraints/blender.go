package constraints

import (
	"refinerycore/internal/closure"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type blender struct{}

// NewBlender converts blended inputs to volume and bounds the blend quality.
func NewBlender() Generator { return blender{} }

func (blender) Family() string { return FamilyBlender }

func (blender) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilyBlender)
	idx, data := ctx.Index, ctx.Data

	for _, u := range idx.UnitsIn(closure.Blender) {
		inputs := idx.UnitInputs(u)
		for _, s := range inputs {
			spg, ok := idx.Gravity(s)
			if !ok {
				continue
			}
			for _, t := range idx.Periods {
				r.eq("blender_volume_mass", domain.T(u, s, t),
					r.mul(r.v(variables.V, s, t), r.v(variables.FQ, s, spg, t)),
					r.v(variables.FVI, s, t))
			}
		}
		for _, q := range idx.Props {
			lo, hi := data.Param("FQBMin", u, q), data.Param("FQBMax", u, q)
			if !lo.Valid && !hi.Valid {
				continue
			}
			var feeds []string
			for _, s := range inputs {
				if idx.HasProperty(s, q) {
					feeds = append(feeds, s)
				}
			}
			if len(feeds) == 0 {
				continue
			}
			var name string
			switch {
			case idx.IsGravity(q):
				name = "blender_gravity_bounds"
			case idx.IsVolumeBasis(q):
				name = "blender_volume_property"
			case idx.IsMassBasis(q):
				name = "blender_mass_property"
			default:
				continue
			}
			if name != "blender_mass_property" {
				if err := requireGravity(idx, u, feeds); err != nil {
					return nil, err
				}
			}
			for _, t := range idx.Periods {
				var quality, basis model.Expr
				for _, s := range feeds {
					switch name {
					case "blender_gravity_bounds":
						quality = quality.Plus(r.v(variables.FVI, s, t))
						basis = basis.Plus(r.v(variables.V, s, t))
					case "blender_volume_property":
						quality = quality.Plus(r.mul(r.v(variables.V, s, t), r.v(variables.FQ, s, q, t)))
						basis = basis.Plus(r.v(variables.V, s, t))
					default:
						quality = quality.Plus(r.mul(r.v(variables.FVI, s, t), r.v(variables.FQ, s, q, t)))
						basis = basis.Plus(r.v(variables.FVI, s, t))
					}
				}
				if lo.Valid {
					r.ge(name, domain.T(u, q, t, "min"), quality, basis.Scale(lo.Value))
				}
				if hi.Valid {
					r.le(name, domain.T(u, q, t, "max"), quality, basis.Scale(hi.Value))
				}
			}
		}
	}
	return r.done()
}
