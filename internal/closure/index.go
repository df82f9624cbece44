package closure

import "refinerycore/pkg/domain"

type tupleSet map[string]struct{}

func newTupleSet(elems ...string) tupleSet {
	s := make(tupleSet, len(elems))
	for _, e := range elems {
		s.add(e)
	}
	return s
}

func (s tupleSet) add(elems ...string) { s[domain.Tuple(elems).Key()] = struct{}{} }

func (s tupleSet) has(elems ...string) bool {
	_, ok := s[domain.Tuple(elems).Key()]
	return ok
}

// CategoryOf returns the category a unit belongs to, if any.
func (x *Index) CategoryOf(u string) (Category, bool) {
	c, ok := x.category[u]
	return c, ok
}

// UnitsIn lists the units of a category in data order.
func (x *Index) UnitsIn(c Category) []string { return x.byCategory[c] }

// UnitInputs lists the IU streams of u.
func (x *Index) UnitInputs(u string) []string { return x.unitInputs[u] }

// UnitOutputs lists the OU streams of u.
func (x *Index) UnitOutputs(u string) []string { return x.unitOutputs[u] }

// InputBatches lists the batches m with (u,m,s) in IM.
func (x *Index) InputBatches(u, s string) []string {
	return x.inBatches[domain.T(u, s).Key()]
}

// OutputBatches lists the batches m with (u,m,s) in OM.
func (x *Index) OutputBatches(u, s string) []string {
	return x.outBatches[domain.T(u, s).Key()]
}

// UnitBatches lists the batches of u with their incident streams.
func (x *Index) UnitBatches(u string) []Batch { return x.unitBatches[u] }

// HasProperty reports (s,q) membership in SQ.
func (x *Index) HasProperty(s, q string) bool { return x.sq.has(s, q) }

// IsFixed reports (s,q) membership in FIX.
func (x *Index) IsFixed(s, q string) bool { return x.fix.has(s, q) }

// StreamProps lists the properties defined for s.
func (x *Index) StreamProps(s string) []string { return x.streamProps[s] }

// Gravity returns the first gravity-type property defined for s.
func (x *Index) Gravity(s string) (string, bool) {
	q, ok := x.gravity[s]
	return q, ok
}

// IsGravity reports membership in SPG.
func (x *Index) IsGravity(q string) bool { return x.spg.has(q) }

// IsVolumeBasis reports membership in Qv.
func (x *Index) IsVolumeBasis(q string) bool { return x.qv.has(q) }

// IsMassBasis reports membership in Qw.
func (x *Index) IsMassBasis(q string) bool { return x.qw.has(q) }

// DeltaBasePairs lists the (s,q) feed properties that drive the yields of
// batch (u,m).
func (x *Index) DeltaBasePairs(u, m string) []domain.Tuple {
	return x.deltaBase[domain.T(u, m).Key()]
}

// CapStreams lists the streams aggregated by capacity c.
func (x *Index) CapStreams(c string) []string { return x.capStreams[c] }

// IsProduct reports membership in S_P.
func (x *Index) IsProduct(s string) bool { return x.product.has(s) }

// IsMaterial reports membership in S_M.
func (x *Index) IsMaterial(s string) bool { return x.material.has(s) }

// IsInventory reports whether (s,t) carries inventory variables.
func (x *Index) IsInventory(s, t string) bool { return x.inventory.has(s, t) }

// PrevPeriod returns the period preceding t in T order.
func (x *Index) PrevPeriod(t string) (string, bool) {
	for i, p := range x.Periods {
		if p == t {
			if i == 0 {
				return "", false
			}
			return x.Periods[i-1], true
		}
	}
	return "", false
}

// CategoryCounts returns the number of units per category.
func (x *Index) CategoryCounts() map[string]int {
	out := make(map[string]int, len(Categories))
	for _, c := range Categories {
		out[string(c)] = len(x.byCategory[c])
	}
	return out
}

// SetSizes reports the cardinality of the primitive and derived sets.
func (x *Index) SetSizes() map[string]int {
	return map[string]int{
		"T":              len(x.Periods),
		"S":              len(x.Streams),
		"U":              len(x.Units),
		"M":              len(x.Batches),
		"Q":              len(x.Props),
		"C":              len(x.Caps),
		"IU":             len(x.IU),
		"OU":             len(x.OU),
		"IM":             len(x.IM),
		"OM":             len(x.OM),
		"SQ":             len(x.SQ),
		"FIX":            len(x.FIX),
		"QT":             len(x.QT),
		"S_P":            len(x.Products),
		"S_M":            len(x.Materials),
		"batch_flows":    len(x.BatchFlows),
		"mixer_volume":   len(x.MixerVolume),
		"blender_volume": len(x.BlenderVolume),
		"swing":          len(x.Swing),
		"inventory":      len(x.Inventory),
	}
}
