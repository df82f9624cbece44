package constraints

import (
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type capacity struct{}

// NewCapacity bounds aggregated input or output flows of capacity groups.
func NewCapacity() Generator { return capacity{} }

func (capacity) Family() string { return FamilyCapacity }

func (capacity) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilyCapacity)
	idx, data := ctx.Index, ctx.Data
	groups := []struct {
		name string
		flow string
		caps []string
	}{
		{"capacity_input", variables.FVI, idx.CapIn},
		{"capacity_output", variables.FVO, idx.CapOut},
	}
	for _, g := range groups {
		for _, c := range g.caps {
			streams := idx.CapStreams(c)
			if len(streams) == 0 {
				continue
			}
			for _, t := range idx.Periods {
				lo, hi := data.Param("FVCMin", c, t), data.Param("FVCMax", c, t)
				if !lo.Valid && !hi.Valid {
					continue
				}
				r.between(g.name, domain.T(c, t), lo, r.streamSum(g.flow, streams, t), hi)
			}
		}
	}
	return r.done()
}
