package constraints

import (
	"refinerycore/internal/dataset"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type bounds struct{}

// NewBounds applies fixed property values and the optional property and flow
// bounds. A missing bound parameter never produces a row.
func NewBounds() Generator { return bounds{} }

func (bounds) Family() string { return FamilyBounds }

func (bounds) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilyBounds)
	idx, data := ctx.Index, ctx.Data

	for _, p := range idx.FIX {
		s, q := p[0], p[1]
		for _, t := range idx.Periods {
			v := periodParam(data, "FQ0", s, q, t)
			if !v.Valid {
				return nil, domain.MissingParam("FQ0", domain.T(s, q, t))
			}
			r.eq("property_fixed", domain.T(s, q, t), r.v(variables.FQ, s, q, t), model.C(v.Value))
		}
	}
	for _, p := range idx.SQ {
		s, q := p[0], p[1]
		if idx.IsFixed(s, q) {
			continue
		}
		for _, t := range idx.Periods {
			lo, hi := periodParam(data, "FQMin", s, q, t), periodParam(data, "FQMax", s, q, t)
			if !lo.Valid && !hi.Valid {
				continue
			}
			r.between("property_bounds", domain.T(s, q, t), lo, r.v(variables.FQ, s, q, t), hi)
		}
	}
	flowBounds(r, "material_flow_bounds", variables.FVO, idx.Materials)
	flowBounds(r, "product_flow_bounds", variables.FVI, idx.Products)
	return r.done()
}

func flowBounds(r *rows, name, flow string, streams []string) {
	idx, data := r.ctx.Index, r.ctx.Data
	for _, s := range streams {
		for _, t := range idx.Periods {
			lo, hi := data.Param("FVMin", s, t), data.Param("FVMax", s, t)
			if !lo.Valid && !hi.Valid {
				continue
			}
			r.between(name, domain.T(s, t), lo, r.v(flow, s, t), hi)
		}
	}
}

// periodParam looks a (s,q) parameter up per period first, then period-free.
func periodParam(data *dataset.Store, name, s, q, t string) domain.Optional {
	if v := data.Param(name, s, q, t); v.Valid {
		return v
	}
	return data.Param(name, s, q)
}
