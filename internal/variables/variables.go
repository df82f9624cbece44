// Package variables declares every decision-variable family of the planning
// model over its closure index.
package variables

import (
	"fmt"

	"refinerycore/internal/closure"
	"refinerycore/internal/dataset"
	"refinerycore/internal/model"
	"refinerycore/pkg/domain"
)

// Family names.
const (
	FVI   = "FVI"   // stream input flow (s,t)
	FVO   = "FVO"   // stream output flow (s,t)
	FVM   = "FVM"   // batch flow (u,m,s,t)
	FQ    = "FQ"    // property value (s,q,t)
	V     = "V"     // blender input volume (s,t)
	VM    = "VM"    // mixer batch volume (u,m,s,t)
	Gamma = "GAMMA" // delta-base yield (u,m,s,t)
	Zeta  = "ZETA"  // swing-cut fraction (u,m,s,t)
	L     = "L"     // inventory level (s,t)
	FVLI  = "FVLI"  // inventory inflow (s,t)
	FVLO  = "FVLO"  // inventory outflow (s,t)
	X     = "X"     // inventory direction, 1 = outflow (s,t)
)

// Families lists the families in declaration order.
var Families = []string{FVI, FVO, FVM, FQ, V, VM, Gamma, Zeta, L, FVLI, FVLO, X}

// Declare populates reg with every family and seals it.
func Declare(reg *model.Registry, data *dataset.Store, idx *closure.Index) error {
	d := declarer{reg: reg}
	for _, s := range idx.Streams {
		for _, t := range idx.Periods {
			d.add(FVI, model.NonNegative, s, t)
			d.add(FVO, model.NonNegative, s, t)
		}
	}
	for _, t := range idx.Periods {
		for _, f := range idx.BatchFlows {
			d.add(FVM, model.NonNegative, f[0], f[1], f[2], t)
		}
	}
	for _, t := range idx.Periods {
		for _, p := range idx.SQ {
			d.add(FQ, model.Free, p[0], p[1], t)
		}
	}
	for _, t := range idx.Periods {
		for _, s := range idx.BlenderVolume {
			d.add(V, model.NonNegative, s, t)
		}
		for _, f := range idx.MixerVolume {
			d.add(VM, model.NonNegative, f[0], f[1], f[2], t)
		}
		for _, g := range idx.Gamma {
			d.add(Gamma, model.Free, g[0], g[1], g[2], t)
		}
	}
	for _, sw := range idx.Swing {
		lo := data.Param("ZMin", sw...)
		hi := data.Param("ZMax", sw...)
		lower, upper := lo.Or(0), hi.Or(1)
		if lower > upper {
			return domain.DataError{Param: "ZMin", Index: sw, Reason: fmt.Sprintf("lower bound %g exceeds upper bound %g", lower, upper)}
		}
		for _, t := range idx.Periods {
			d.addBounded(Zeta, model.Bounded, domain.Some(lower), domain.Some(upper), sw[0], sw[1], sw[2], t)
		}
	}
	for _, inv := range idx.Inventory {
		d.add(L, model.NonNegative, inv...)
		d.add(FVLI, model.NonNegative, inv...)
		d.add(FVLO, model.NonNegative, inv...)
		d.add(X, model.Binary, inv...)
	}
	if d.err != nil {
		return d.err
	}
	reg.Seal()
	return nil
}

type declarer struct {
	reg *model.Registry
	err error
}

func (d *declarer) add(family string, dom model.Domain, idx ...string) {
	if d.err != nil {
		return
	}
	_, d.err = d.reg.Declare(family, domain.Tuple(idx), dom)
}

func (d *declarer) addBounded(family string, dom model.Domain, lo, hi domain.Optional, idx ...string) {
	if d.err != nil {
		return
	}
	_, d.err = d.reg.DeclareBounded(family, domain.Tuple(idx), dom, lo, hi)
}
