// Package closure derives the sparse index sets every downstream family ranges
// over. Generators consult the Index instead of enumerating cross products, so a
// combination that is absent here never produces a variable or a constraint.
package closure

import (
	"fmt"
	"sort"

	"refinerycore/internal/dataset"
	"refinerycore/pkg/domain"
)

// Category is a unit processing category. Categories partition U.
type Category string

const (
	CDU        Category = "UCDU"
	FixedYield Category = "UPF"
	DeltaBase  Category = "UPD"
	Mixer      Category = "UMIX"
	Splitter   Category = "USPL"
	Blender    Category = "UBLD"
)

// Categories lists every category in declaration order.
var Categories = []Category{CDU, FixedYield, DeltaBase, Mixer, Splitter, Blender}

// Batch is one (unit, batch) pair with its input and output streams.
type Batch struct {
	Unit    string
	Batch   string
	Inputs  []string
	Outputs []string
}

// Streams returns inputs followed by outputs.
func (b Batch) Streams() []string {
	out := make([]string, 0, len(b.Inputs)+len(b.Outputs))
	out = append(out, b.Inputs...)
	return append(out, b.Outputs...)
}

// Index is the closure of one case. It is read-only once Build returns.
type Index struct {
	Variant domain.Variant

	Periods []string
	Streams []string
	Units   []string
	Batches []string
	Props   []string
	Caps    []string

	Products  []string
	Materials []string

	category   map[string]Category
	byCategory map[Category][]string

	IU []domain.Tuple // (u,s)
	OU []domain.Tuple
	IM []domain.Tuple // (u,m,s)
	OM []domain.Tuple

	unitInputs  map[string][]string
	unitOutputs map[string][]string
	inBatches   map[string][]string // (u,s) -> batches over IM
	outBatches  map[string][]string // (u,s) -> batches over OM
	unitBatches map[string][]Batch

	// BatchFlows is IM followed by the OM tuples not already in IM.
	BatchFlows []domain.Tuple

	SQ          []domain.Tuple // (s,q)
	sq          tupleSet
	fix         tupleSet
	FIX         []domain.Tuple
	streamProps map[string][]string
	gravity     map[string]string
	spg, qv, qw tupleSet

	QT        []domain.Tuple // (s,s',q)
	deltaBase map[string][]domain.Tuple

	// MixerVolume holds mixer batch streams that carry a gravity property.
	MixerVolume []domain.Tuple
	// BlenderVolume holds blender input streams that carry a gravity property.
	BlenderVolume []string
	// Gamma holds delta-base batch streams (u,m,s), inputs and outputs.
	Gamma []domain.Tuple
	// Swing holds CDU batch outputs (u,m,s) that carry swing coefficients.
	Swing []domain.Tuple

	CapIn      []string
	CapOut     []string
	capStreams map[string][]string

	product, material tupleSet

	InventoryStreams []string
	// Inventory is InventoryStreams x Periods; empty for non-inventory variants.
	Inventory []domain.Tuple
	inventory tupleSet
}

// Build validates the relational sets of data and derives the closure for the
// given variant. Membership violations are reported as domain.DataError.
func Build(data *dataset.Store, variant domain.Variant) (*Index, error) {
	b := &builder{data: data, idx: &Index{Variant: variant}}
	steps := []func() error{
		b.primitives,
		b.categories,
		b.incidence,
		b.batchIncidence,
		b.properties,
		b.relations,
		b.volumes,
		b.yields,
		b.capacities,
		b.subsets,
		b.inventory,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return b.idx, nil
}

type builder struct {
	data *dataset.Store
	idx  *Index

	streams, units, batches, props, caps, periods tupleSet
}

func (b *builder) primitives() error {
	d, idx := b.data, b.idx
	idx.Periods = d.Elements("T")
	idx.Streams = d.Elements("S")
	idx.Units = d.Elements("U")
	idx.Batches = d.Elements("M")
	idx.Props = d.Elements("Q")
	idx.Caps = d.Elements("C")
	for _, name := range []string{"T", "S", "U", "M", "Q", "C"} {
		if err := requireArity(d, name, 1); err != nil {
			return err
		}
	}
	b.periods = newTupleSet(idx.Periods...)
	b.streams = newTupleSet(idx.Streams...)
	b.units = newTupleSet(idx.Units...)
	b.batches = newTupleSet(idx.Batches...)
	b.props = newTupleSet(idx.Props...)
	b.caps = newTupleSet(idx.Caps...)
	if !idx.Variant.MultiPeriod && len(idx.Periods) > 1 {
		return domain.DataError{Set: "T", Reason: fmt.Sprintf("single-period case %s declares %d periods", idx.Variant.ID, len(idx.Periods))}
	}
	return nil
}

func (b *builder) categories() error {
	idx := b.idx
	idx.category = make(map[string]Category)
	idx.byCategory = make(map[Category][]string)
	for _, cat := range Categories {
		name := string(cat)
		if err := requireArity(b.data, name, 1); err != nil {
			return err
		}
		for _, u := range b.data.Elements(name) {
			if !b.units.has(u) {
				return domain.UnknownMember(name, domain.T(u), "unit not declared in U")
			}
			if prev, dup := idx.category[u]; dup && prev != cat {
				return domain.UnknownMember(name, domain.T(u), fmt.Sprintf("unit already classified as %s", prev))
			}
			if _, dup := idx.category[u]; dup {
				continue
			}
			idx.category[u] = cat
			idx.byCategory[cat] = append(idx.byCategory[cat], u)
		}
	}
	return nil
}

func (b *builder) incidence() error {
	idx := b.idx
	idx.unitInputs = make(map[string][]string)
	idx.unitOutputs = make(map[string][]string)
	var err error
	if idx.IU, err = b.unitStreams("IU", idx.unitInputs); err != nil {
		return err
	}
	if idx.OU, err = b.unitStreams("OU", idx.unitOutputs); err != nil {
		return err
	}
	return nil
}

func (b *builder) unitStreams(set string, into map[string][]string) ([]domain.Tuple, error) {
	if err := requireArity(b.data, set, 2); err != nil {
		return nil, err
	}
	tuples := b.data.Set(set)
	for _, t := range tuples {
		if !b.units.has(t[0]) {
			return nil, domain.UnknownMember(set, t, "unit not declared in U")
		}
		if !b.streams.has(t[1]) {
			return nil, domain.UnknownMember(set, t, "stream not declared in S")
		}
		into[t[0]] = append(into[t[0]], t[1])
	}
	return tuples, nil
}

func (b *builder) batchIncidence() error {
	idx := b.idx
	idx.inBatches = make(map[string][]string)
	idx.outBatches = make(map[string][]string)
	idx.unitBatches = make(map[string][]Batch)
	positions := make(map[string]int)
	batchAt := func(u, m string) *Batch {
		k := domain.T(u, m).Key()
		pos, ok := positions[k]
		if !ok {
			pos = len(idx.unitBatches[u])
			positions[k] = pos
			idx.unitBatches[u] = append(idx.unitBatches[u], Batch{Unit: u, Batch: m})
		}
		return &idx.unitBatches[u][pos]
	}
	iu := newTupleSet()
	for _, t := range idx.IU {
		iu.add(t...)
	}
	ou := newTupleSet()
	for _, t := range idx.OU {
		ou.add(t...)
	}
	flows := newTupleSet()
	for _, spec := range []struct {
		set   string
		lift  tupleSet
		pairs map[string][]string
		out   *[]domain.Tuple
		isIn  bool
	}{
		{"IM", iu, idx.inBatches, &idx.IM, true},
		{"OM", ou, idx.outBatches, &idx.OM, false},
	} {
		if err := requireArity(b.data, spec.set, 3); err != nil {
			return err
		}
		tuples := b.data.Set(spec.set)
		for _, t := range tuples {
			u, m, s := t[0], t[1], t[2]
			switch {
			case !b.units.has(u):
				return domain.UnknownMember(spec.set, t, "unit not declared in U")
			case !b.batches.has(m):
				return domain.UnknownMember(spec.set, t, "batch not declared in M")
			case !b.streams.has(s):
				return domain.UnknownMember(spec.set, t, "stream not declared in S")
			case !spec.lift.has(u, s):
				return domain.UnknownMember(spec.set, t, "(unit, stream) pair absent from unit incidence")
			}
			k := domain.T(u, s).Key()
			spec.pairs[k] = append(spec.pairs[k], m)
			bt := batchAt(u, m)
			if spec.isIn {
				bt.Inputs = append(bt.Inputs, s)
			} else {
				bt.Outputs = append(bt.Outputs, s)
			}
			if !flows.has(t...) {
				flows.add(t...)
				idx.BatchFlows = append(idx.BatchFlows, t)
			}
		}
		*spec.out = tuples
	}
	return nil
}

func (b *builder) properties() error {
	idx, d := b.idx, b.data
	if err := requireArities(d, map[string]int{"SQ": 2, "FIX": 2, "SPG": 1, "Qv": 1, "Qw": 1}); err != nil {
		return err
	}
	idx.sq = newTupleSet()
	idx.streamProps = make(map[string][]string)
	for _, t := range d.Set("SQ") {
		if !b.streams.has(t[0]) {
			return domain.UnknownMember("SQ", t, "stream not declared in S")
		}
		if !b.props.has(t[1]) {
			return domain.UnknownMember("SQ", t, "property not declared in Q")
		}
		idx.sq.add(t...)
		idx.SQ = append(idx.SQ, t)
		idx.streamProps[t[0]] = append(idx.streamProps[t[0]], t[1])
	}
	idx.fix = newTupleSet()
	for _, t := range d.Set("FIX") {
		if !idx.sq.has(t...) {
			return domain.UnknownMember("FIX", t, "(stream, property) pair absent from SQ")
		}
		idx.fix.add(t...)
		idx.FIX = append(idx.FIX, t)
	}
	var err error
	if idx.spg, err = b.propertySubset("SPG"); err != nil {
		return err
	}
	if idx.qv, err = b.propertySubset("Qv"); err != nil {
		return err
	}
	if idx.qw, err = b.propertySubset("Qw"); err != nil {
		return err
	}
	idx.gravity = make(map[string]string)
	for _, t := range idx.SQ {
		s, q := t[0], t[1]
		if _, done := idx.gravity[s]; done {
			continue
		}
		if idx.spg.has(q) {
			idx.gravity[s] = q
		}
	}
	return nil
}

func (b *builder) propertySubset(name string) (tupleSet, error) {
	set := newTupleSet()
	for _, q := range b.data.Elements(name) {
		if !b.props.has(q) {
			return nil, domain.UnknownMember(name, domain.T(q), "property not declared in Q")
		}
		set.add(q)
	}
	return set, nil
}

func (b *builder) relations() error {
	idx, d := b.idx, b.data
	if err := requireArity(d, "QT", 3); err != nil {
		return err
	}
	for _, t := range d.Set("QT") {
		if !b.streams.has(t[0]) || !b.streams.has(t[1]) {
			return domain.UnknownMember("QT", t, "stream not declared in S")
		}
		if !b.props.has(t[2]) {
			return domain.UnknownMember("QT", t, "property not declared in Q")
		}
		idx.QT = append(idx.QT, t)
	}
	if err := requireArity(d, "DBSQ", 4); err != nil {
		return err
	}
	idx.deltaBase = make(map[string][]domain.Tuple)
	for _, t := range d.Set("DBSQ") {
		switch {
		case !b.units.has(t[0]):
			return domain.UnknownMember("DBSQ", t, "unit not declared in U")
		case !b.batches.has(t[1]):
			return domain.UnknownMember("DBSQ", t, "batch not declared in M")
		case !b.streams.has(t[2]):
			return domain.UnknownMember("DBSQ", t, "stream not declared in S")
		case !idx.sq.has(t[2], t[3]):
			return domain.UnknownMember("DBSQ", t, "(stream, property) pair absent from SQ")
		}
		k := domain.T(t[0], t[1]).Key()
		idx.deltaBase[k] = append(idx.deltaBase[k], domain.T(t[2], t[3]))
	}
	return nil
}

func (b *builder) volumes() error {
	idx := b.idx
	for _, u := range idx.byCategory[Mixer] {
		for _, bt := range idx.unitBatches[u] {
			for _, s := range bt.Streams() {
				if _, ok := idx.gravity[s]; ok {
					idx.MixerVolume = append(idx.MixerVolume, domain.T(u, bt.Batch, s))
				}
			}
		}
	}
	seen := newTupleSet()
	for _, u := range idx.byCategory[Blender] {
		for _, s := range idx.unitInputs[u] {
			if _, ok := idx.gravity[s]; ok && !seen.has(s) {
				seen.add(s)
				idx.BlenderVolume = append(idx.BlenderVolume, s)
			}
		}
	}
	return nil
}

func (b *builder) yields() error {
	idx, d := b.idx, b.data
	for _, u := range idx.byCategory[DeltaBase] {
		for _, bt := range idx.unitBatches[u] {
			for _, s := range bt.Streams() {
				idx.Gamma = append(idx.Gamma, domain.T(u, bt.Batch, s))
			}
		}
	}
	swing := newTupleSet()
	for _, k := range d.ParamKeys("phi") {
		if len(k) == 4 {
			swing.add(k[0], k[1], k[3])
		}
	}
	for _, u := range idx.byCategory[CDU] {
		for _, bt := range idx.unitBatches[u] {
			for _, s := range bt.Outputs {
				if swing.has(u, bt.Batch, s) {
					idx.Swing = append(idx.Swing, domain.T(u, bt.Batch, s))
				}
			}
		}
	}
	return nil
}

func (b *builder) capacities() error {
	idx, d := b.idx, b.data
	if err := requireArities(d, map[string]int{"CAPIN": 1, "CAPOUT": 1, "CAPS": 2}); err != nil {
		return err
	}
	for _, spec := range []struct {
		name string
		out  *[]string
	}{{"CAPIN", &idx.CapIn}, {"CAPOUT", &idx.CapOut}} {
		for _, c := range d.Elements(spec.name) {
			if !b.caps.has(c) {
				return domain.UnknownMember(spec.name, domain.T(c), "capacity not declared in C")
			}
			*spec.out = append(*spec.out, c)
		}
	}
	idx.capStreams = make(map[string][]string)
	for _, t := range d.Set("CAPS") {
		if !b.caps.has(t[0]) {
			return domain.UnknownMember("CAPS", t, "capacity not declared in C")
		}
		if !b.streams.has(t[1]) {
			return domain.UnknownMember("CAPS", t, "stream not declared in S")
		}
		idx.capStreams[t[0]] = append(idx.capStreams[t[0]], t[1])
	}
	return nil
}

func (b *builder) subsets() error {
	idx := b.idx
	for _, spec := range []struct {
		name string
		out  *[]string
		set  *tupleSet
	}{{"S_P", &idx.Products, &idx.product}, {"S_M", &idx.Materials, &idx.material}} {
		if err := requireArity(b.data, spec.name, 1); err != nil {
			return err
		}
		*spec.set = newTupleSet()
		for _, s := range b.data.Elements(spec.name) {
			if !b.streams.has(s) {
				return domain.UnknownMember(spec.name, domain.T(s), "stream not declared in S")
			}
			spec.set.add(s)
			*spec.out = append(*spec.out, s)
		}
	}
	return nil
}

func (b *builder) inventory() error {
	idx, d := b.idx, b.data
	idx.inventory = newTupleSet()
	if err := requireArity(d, "SI", 1); err != nil {
		return err
	}
	for _, s := range d.Elements("SI") {
		if !b.streams.has(s) {
			return domain.UnknownMember("SI", domain.T(s), "stream not declared in S")
		}
	}
	if !idx.Variant.Inventory {
		return nil
	}
	if d.HasSet("SI") {
		idx.InventoryStreams = d.Elements("SI")
	} else {
		seen := newTupleSet()
		for _, k := range d.ParamKeys("LMax") {
			if len(k) != 2 || seen.has(k[0]) || !b.streams.has(k[0]) {
				continue
			}
			if v := d.Param("LMax", k...); v.Valid && v.Value > 0 {
				seen.add(k[0])
			}
		}
		for _, s := range idx.Streams {
			if seen.has(s) {
				idx.InventoryStreams = append(idx.InventoryStreams, s)
			}
		}
	}
	for _, s := range idx.InventoryStreams {
		for _, t := range idx.Periods {
			idx.Inventory = append(idx.Inventory, domain.T(s, t))
			idx.inventory.add(s, t)
		}
	}
	return nil
}

// requireArities checks names in lexical order so the reported set is stable.
func requireArities(d *dataset.Store, arities map[string]int) error {
	names := make([]string, 0, len(arities))
	for name := range arities {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := requireArity(d, name, arities[name]); err != nil {
			return err
		}
	}
	return nil
}

func requireArity(d *dataset.Store, name string, arity int) error {
	for _, t := range d.Set(name) {
		if len(t) != arity {
			return domain.DataError{Set: name, Index: t, Reason: fmt.Sprintf("expected arity %d", arity)}
		}
	}
	return nil
}
