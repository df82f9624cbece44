package constraints

import (
	"refinerycore/internal/closure"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

type splitter struct{}

// NewSplitter copies the single input's properties to every output.
func NewSplitter() Generator { return splitter{} }

func (splitter) Family() string { return FamilySplitter }

func (splitter) Generate(ctx *Context) ([]model.Constraint, error) {
	r := newRows(ctx, FamilySplitter)
	idx := ctx.Index
	for _, u := range idx.UnitsIn(closure.Splitter) {
		inputs := idx.UnitInputs(u)
		if len(inputs) > 1 {
			return nil, domain.DataError{Set: "IU", Index: domain.T(u), Reason: "splitter with more than one input"}
		}
		if len(inputs) == 0 {
			continue
		}
		in := inputs[0]
		for _, out := range idx.UnitOutputs(u) {
			for _, q := range idx.StreamProps(out) {
				if !idx.HasProperty(in, q) {
					continue
				}
				for _, t := range idx.Periods {
					r.eq("splitter_property", domain.T(u, in, out, q, t),
						r.v(variables.FQ, out, q, t), r.v(variables.FQ, in, q, t))
				}
			}
		}
	}
	return r.done()
}
