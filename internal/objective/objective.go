// Package objective assembles the profit expression of the planning model.
package objective

import (
	"refinerycore/internal/closure"
	"refinerycore/internal/dataset"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

// Name labels the assembled objective.
const Name = "profit"

// Assemble returns
//
//	max  sum c_P*FVI[S_P] - sum c_M*FVO[S_M] + sum ci_P*FVLI - sum ci_M*FVLO
//
// over all periods. Prices are read per (s,t) and fall back to (s); a stream
// without a price contributes nothing. The inventory terms only range over
// inventory pairs, so they follow the direction binary through FVLI and FVLO.
func Assemble(data *dataset.Store, idx *closure.Index, reg *model.Registry) (model.Objective, error) {
	var e model.Expr
	add := func(param, family string, scale float64, s, t string) error {
		p := price(data, param, s, t)
		if !p.Valid || p.Value == 0 {
			return nil
		}
		id, err := reg.Lookup(family, s, t)
		if err != nil {
			return err
		}
		e = e.Plus(model.V(id).Scale(scale * p.Value))
		return nil
	}
	for _, t := range idx.Periods {
		for _, s := range idx.Products {
			if err := add("c_P", variables.FVI, 1, s, t); err != nil {
				return model.Objective{}, err
			}
		}
		for _, s := range idx.Materials {
			if err := add("c_M", variables.FVO, -1, s, t); err != nil {
				return model.Objective{}, err
			}
		}
	}
	for _, p := range idx.Inventory {
		s, t := p[0], p[1]
		if idx.IsProduct(s) {
			if err := add("ci_P", variables.FVLI, 1, s, t); err != nil {
				return model.Objective{}, err
			}
		}
		if idx.IsMaterial(s) {
			if err := add("ci_M", variables.FVLO, -1, s, t); err != nil {
				return model.Objective{}, err
			}
		}
	}
	return model.Objective{Name: Name, Sense: model.Maximize, Expr: e.Simplify()}, nil
}

func price(data *dataset.Store, name, s, t string) domain.Optional {
	if v := data.Param(name, s, t); v.Valid {
		return v
	}
	return data.Param(name, s)
}
