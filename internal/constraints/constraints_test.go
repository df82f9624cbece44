package constraints

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"refinerycore/internal/closure"
	"refinerycore/internal/dataset"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

func newContext(t *testing.T, b *dataset.Bundle, caseID string) *Context {
	t.Helper()
	store, err := dataset.NewStore(*b)
	require.NoError(t, err)
	variant, err := domain.LookupVariant(caseID)
	require.NoError(t, err)
	idx, err := closure.Build(store, variant)
	require.NoError(t, err)
	reg := model.NewRegistry()
	require.NoError(t, variables.Declare(reg, store, idx))
	return &Context{Data: store, Index: idx, Vars: reg}
}

func generate(t *testing.T, ctx *Context) []model.Constraint {
	t.Helper()
	rows, err := NewDefaultEngine().Generate(ctx)
	require.NoError(t, err)
	return rows
}

func named(rows []model.Constraint, name string) []model.Constraint {
	var out []model.Constraint
	for _, c := range rows {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func find(t *testing.T, rows []model.Constraint, name string, idx ...string) model.Constraint {
	t.Helper()
	for _, c := range rows {
		if c.Name == name && c.Index.Equal(domain.Tuple(idx)) {
			return c
		}
	}
	t.Fatalf("row %s%v not generated", name, idx)
	return model.Constraint{}
}

type values struct {
	t   *testing.T
	reg *model.Registry
	x   []float64
}

func newValues(t *testing.T, reg *model.Registry) *values {
	return &values{t: t, reg: reg, x: make([]float64, reg.Len())}
}

func (v *values) set(val float64, family string, idx ...string) {
	v.t.Helper()
	id, err := v.reg.Lookup(family, idx...)
	require.NoError(v.t, err)
	v.x[id] = val
}

func mixerToy() *dataset.Bundle {
	return dataset.NewBundle("case1").
		Members("S", "a", "b", "c").
		Members("U", "MX").
		Members("M", "m").
		Members("Q", "spg", "sul").
		Members("UMIX", "MX").
		Tuples("IU", domain.T("MX", "a"), domain.T("MX", "b")).
		Tuples("OU", domain.T("MX", "c")).
		Tuples("IM", domain.T("MX", "m", "a"), domain.T("MX", "m", "b")).
		Tuples("OM", domain.T("MX", "m", "c")).
		Tuples("SQ",
			domain.T("a", "spg"), domain.T("a", "sul"),
			domain.T("b", "spg"), domain.T("b", "sul"),
			domain.T("c", "spg"), domain.T("c", "sul")).
		Members("SPG", "spg").
		Members("Qv", "spg").
		Members("Qw", "sul")
}

func TestMixerReproducesHandComputedBlend(t *testing.T) {
	ctx := newContext(t, mixerToy(), "case1")
	rows := generate(t, ctx)

	// 60 t of a (spg 0.8, sul 1.0) and 40 t of b (spg 0.9, sul 2.0).
	va, vb := 60/0.8, 40/0.9
	vc := va + vb
	v := newValues(t, ctx.Vars)
	v.set(60, variables.FVM, "MX", "m", "a", "1")
	v.set(40, variables.FVM, "MX", "m", "b", "1")
	v.set(100, variables.FVM, "MX", "m", "c", "1")
	v.set(va, variables.VM, "MX", "m", "a", "1")
	v.set(vb, variables.VM, "MX", "m", "b", "1")
	v.set(vc, variables.VM, "MX", "m", "c", "1")
	v.set(0.8, variables.FQ, "a", "spg", "1")
	v.set(0.9, variables.FQ, "b", "spg", "1")
	v.set(100/vc, variables.FQ, "c", "spg", "1")
	v.set(1.0, variables.FQ, "a", "sul", "1")
	v.set(2.0, variables.FQ, "b", "sul", "1")
	v.set(1.4, variables.FQ, "c", "sul", "1")

	checked := 0
	for _, c := range rows {
		if c.Family != FamilyMixer && c.Name != "mixer_balance" {
			continue
		}
		require.InDelta(t, 0, c.Violation(v.x), 1e-6, c.Label())
		checked++
	}
	require.Equal(t, 7, checked)

	v.set(1.5, variables.FQ, "c", "sul", "1")
	prop := find(t, rows, "mixer_mass_property", "MX", "m", "c", "sul", "1")
	require.InDelta(t, 10, prop.Violation(v.x), 1e-9)
}

func TestBatchAggregation(t *testing.T) {
	b := mixerToy().Members("S", "d").Tuples("IU", domain.T("MX", "d"))
	ctx := newContext(t, b, "case1")
	rows := generate(t, ctx)

	sum := find(t, rows, "batch_sum_input", "MX", "a", "1")
	require.True(t, sum.Equality())
	require.Len(t, sum.Body.Terms, 2)
	require.Zero(t, sum.Lower.Value)

	zero := find(t, rows, "batch_sum_input", "MX", "d", "1")
	require.True(t, zero.Equality())
	require.Len(t, zero.Body.Terms, 1, "a pair without batches pins the flow to zero")
	id, err := ctx.Vars.Lookup(variables.FVI, "d", "1")
	require.NoError(t, err)
	require.Equal(t, id, zero.Body.Terms[0].A)
	require.Zero(t, zero.Upper.Value)
}

func TestAbsentBoundsProduceNoRows(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case1"), "case1")
	rows := generate(t, ctx)

	products := named(rows, "product_flow_bounds")
	require.Len(t, products, 1)
	require.Equal(t, domain.T("gasoline", "1"), products[0].Index)
	require.True(t, products[0].Lower.Valid)
	require.False(t, products[0].Upper.Valid, "no FVMax means no upper bound, not zero")

	materials := named(rows, "material_flow_bounds")
	require.Len(t, materials, 2)
	for _, c := range materials {
		require.False(t, c.Lower.Valid)
		require.True(t, c.Upper.Valid)
	}

	props := named(rows, "property_bounds")
	require.Len(t, props, 1)
	require.Equal(t, domain.T("crudemix", "sul", "1"), props[0].Index)

	fcc := find(t, rows, "capacity_input", "cap_fcc", "1")
	require.False(t, fcc.Lower.Valid)
	require.Equal(t, domain.Some(350), fcc.Upper)

	require.Empty(t, named(rows, "capacity_output"))
	require.Empty(t, named(rows, "inventory_level"))
	require.Len(t, named(rows, "blender_gravity_bounds"), 2)
	require.Len(t, named(rows, "blender_volume_property"), 1, "ron carries a lower bound only")
}

func TestSplitterPropagatesInputProperties(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case2"), "case2")
	rows := named(generate(t, ctx), "splitter_property")
	require.Len(t, rows, 2*2*3)

	v := newValues(t, ctx.Vars)
	v.set(71.5, variables.FQ, "naphtha", "ron", "2")
	v.set(71.5, variables.FQ, "naph_ref", "ron", "2")
	v.set(70, variables.FQ, "naph_blend", "ron", "2")
	same := find(t, rows, "splitter_property", "SPL1", "naphtha", "naph_ref", "ron", "2")
	require.Zero(t, same.Violation(v.x))
	require.True(t, same.Equality())
	diff := find(t, rows, "splitter_property", "SPL1", "naphtha", "naph_blend", "ron", "2")
	require.InDelta(t, 1.5, diff.Violation(v.x), 1e-12)
}

func TestInventoryBinaryExclusivity(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case2"), "case2")
	rows := generate(t, ctx)
	require.Len(t, named(rows, "inventory_level"), 6)

	out := find(t, rows, "inventory_out_flag", "gasoline", "2")
	in := find(t, rows, "inventory_in_flag", "gasoline", "2")
	feasible := func(v *values) bool { return out.Violation(v.x) == 0 && in.Violation(v.x) == 0 }

	v := newValues(t, ctx.Vars)
	v.set(1, variables.X, "gasoline", "2")
	v.set(120, variables.FVLO, "gasoline", "2")
	require.True(t, feasible(v), "X=1 allows outflow")
	v.set(5, variables.FVLI, "gasoline", "2")
	require.False(t, feasible(v), "X=1 forbids inflow")

	v = newValues(t, ctx.Vars)
	v.set(80, variables.FVLI, "gasoline", "2")
	require.True(t, feasible(v), "X=0 allows inflow")
	v.set(1, variables.FVLO, "gasoline", "2")
	require.False(t, feasible(v), "X=0 forbids outflow")
}

func TestInventoryLevelCarriesOver(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case2"), "case2")
	rows := generate(t, ctx)

	v := newValues(t, ctx.Vars)
	v.set(130, variables.L, "crude1", "1")
	v.set(30, variables.FVLI, "crude1", "1")
	first := find(t, rows, "inventory_level", "crude1", "1")
	require.Zero(t, first.Violation(v.x), "L0=100 plus 30 inflow")

	v.set(90, variables.L, "crude1", "2")
	v.set(40, variables.FVLO, "crude1", "2")
	second := find(t, rows, "inventory_level", "crude1", "2")
	require.Zero(t, second.Violation(v.x))

	bounds := find(t, rows, "inventory_bounds", "gasoline", "1")
	require.False(t, bounds.Lower.Valid, "no LMin for gasoline")
	require.Equal(t, domain.Some(250), bounds.Upper)
}

func TestDeltaBaseYieldIsBilinear(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case1"), "case1")
	rows := generate(t, ctx)

	g := find(t, rows, "delta_base_gamma", "FCC1", "m1", "fcc_gasoline", "1")
	v := newValues(t, ctx.Vars)
	v.set(3.0, variables.FQ, "resid", "sul", "1")
	v.set(0.55-0.02*(3.0-2.5)/0.5, variables.Gamma, "FCC1", "m1", "fcc_gasoline", "1")
	require.InDelta(t, 0, g.Violation(v.x), 1e-12)

	y := find(t, rows, "delta_base_yield", "FCC1", "m1", "fcc_gasoline", "1")
	require.Equal(t, 4, y.Body.BilinearTerms())

	cdu := find(t, rows, "cdu_yield", "CDU1", "m1", "naphtha", "1")
	require.Equal(t, 1, cdu.Body.BilinearTerms())
	diesel := find(t, rows, "cdu_yield", "CDU1", "m1", "diesel", "1")
	require.Zero(t, diesel.Body.BilinearTerms())
}

func TestGenerateIsDeterministic(t *testing.T) {
	labels := func() []string {
		rows := generate(t, newContext(t, dataset.SampleBundle("case3"), "case3"))
		out := make([]string, len(rows))
		for i, c := range rows {
			out[i] = c.Family + "/" + c.Label()
		}
		return out
	}
	if diff := cmp.Diff(labels(), labels()); diff != "" {
		t.Fatalf("rows differ between builds (-first +second):\n%s", diff)
	}
}

func TestMissingRequiredParameters(t *testing.T) {
	cases := []struct {
		name   string
		caseID string
		drop   func(b *dataset.Bundle)
		param  string
		set    string
	}{
		{"fixed yield gamma", "case1", func(b *dataset.Bundle) { dropParam(b, "gamma", "REF1", "m1", "lpg") }, "gamma", ""},
		{"fixed property value", "case1", func(b *dataset.Bundle) { dropParam(b, "FQ0", "resid", "spg") }, "FQ0", ""},
		{"delta-base reference", "case1", func(b *dataset.Bundle) { dropParam(b, "B", "FCC1", "m1", "resid", "sul") }, "B", ""},
		{"zero delta-base step", "case1", func(b *dataset.Bundle) {
			dropParam(b, "Del", "FCC1", "m1", "resid", "sul")
			b.Param("Del", 0, "FCC1", "m1", "resid", "sul")
		}, "Del", ""},
		{"cdu yield", "case1", func(b *dataset.Bundle) { dropParam(b, "y", "CDU1", "m1", "crudemix", "diesel") }, "y", ""},
		{"tank capacity", "case2", func(b *dataset.Bundle) { dropParam(b, "LMax", "gasoline", "2") }, "LMax", ""},
		{"splitter with two inputs", "case1", func(b *dataset.Bundle) { b.Tuples("IU", domain.T("SPL1", "kero")) }, "", "IU"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := dataset.SampleBundle(tc.caseID)
			tc.drop(b)
			_, err := NewDefaultEngine().Generate(newContext(t, b, tc.caseID))
			var de domain.DataError
			require.ErrorAs(t, err, &de)
			require.Equal(t, tc.param, de.Param)
			require.Equal(t, tc.set, de.Set)
		})
	}
}

func dropParam(b *dataset.Bundle, name string, key ...string) {
	entries := b.Params[name][:0]
	for _, e := range b.Params[name] {
		if !e.Key.Equal(domain.Tuple(key)) {
			entries = append(entries, e)
		}
	}
	b.Params[name] = entries
}

type failing struct{}

func (failing) Family() string { return "broken" }
func (failing) Generate(*Context) ([]model.Constraint, error) {
	return nil, errors.New("boom")
}

func TestEngineRegistrationOrderAndErrors(t *testing.T) {
	e := NewDefaultEngine()
	require.Equal(t, []string{
		FamilyMaterialBalance, FamilyCDU, FamilyProcessUnit, FamilyMixer, FamilySplitter,
		FamilyBlender, FamilyCapacity, FamilyBounds, FamilyInventory,
	}, e.Families())

	e.Register(failing{})
	_, err := e.Generate(newContext(t, mixerToy(), "case1"))
	require.EqualError(t, err, "broken constraints: boom")
}

func TestEveryRowCarriesItsFamily(t *testing.T) {
	rows := generate(t, newContext(t, dataset.SampleBundle("case2"), "case2"))
	families := make(map[string]bool)
	for _, c := range rows {
		require.NotEmpty(t, c.Family, c.Label())
		families[c.Family] = true
	}
	for _, f := range NewDefaultEngine().Families() {
		require.True(t, families[f], "family %s produced no rows on the sample", f)
	}
}

func yieldToy() *dataset.Bundle {
	b := dataset.NewBundle("case1").
		Members("S", "f", "o1", "o2", "g", "p1", "p2").
		Members("U", "PF", "PD").
		Members("M", "m").
		Members("UPF", "PF").
		Members("UPD", "PD").
		Tuples("IU", domain.T("PF", "f"), domain.T("PD", "g")).
		Tuples("OU", domain.T("PF", "o1"), domain.T("PF", "o2"), domain.T("PD", "p1"), domain.T("PD", "p2")).
		Tuples("IM", domain.T("PF", "m", "f"), domain.T("PD", "m", "g")).
		Tuples("OM", domain.T("PF", "m", "o1"), domain.T("PF", "m", "o2"), domain.T("PD", "m", "p1"), domain.T("PD", "m", "p2"))
	for _, u := range []struct{ unit, in, a, b string }{{"PF", "f", "o1", "o2"}, {"PD", "g", "p1", "p2"}} {
		b.Param("gamma", 1, u.unit, "m", u.in)
		b.Param("gamma", 0.6, u.unit, "m", u.a)
		b.Param("gamma", 0.4, u.unit, "m", u.b)
	}
	return b
}

func TestYieldFamiliesShareNormalisation(t *testing.T) {
	ctx := newContext(t, yieldToy(), "case1")
	rows := generate(t, ctx)

	// gamma sums to 2 over feed and products, so 100 t of feed gives 30 t of o1.
	v := newValues(t, ctx.Vars)
	v.set(100, variables.FVM, "PF", "m", "f", "1")
	v.set(30, variables.FVM, "PF", "m", "o1", "1")
	v.set(20, variables.FVM, "PF", "m", "o2", "1")
	v.set(100, variables.FVM, "PD", "m", "g", "1")
	v.set(30, variables.FVM, "PD", "m", "p1", "1")
	v.set(20, variables.FVM, "PD", "m", "p2", "1")
	v.set(1, variables.Gamma, "PD", "m", "g", "1")
	v.set(0.6, variables.Gamma, "PD", "m", "p1", "1")
	v.set(0.4, variables.Gamma, "PD", "m", "p2", "1")

	for _, name := range []string{"fixed_yield", "delta_base_yield", "delta_base_gamma"} {
		got := named(rows, name)
		require.NotEmpty(t, got, name)
		for _, c := range got {
			require.InDelta(t, 0, c.Violation(v.x), 1e-9, c.Label())
		}
	}
	require.Len(t, named(rows, "delta_base_gamma"), 3, "GAMMA covers the feed as well")

	v.set(60, variables.FVM, "PF", "m", "o1", "1")
	v.set(60, variables.FVM, "PD", "m", "p1", "1")
	fixed := find(t, rows, "fixed_yield", "PF", "m", "o1", "1")
	delta := find(t, rows, "delta_base_yield", "PD", "m", "p1", "1")
	require.InDelta(t, 60, fixed.Violation(v.x), 1e-9)
	require.InDelta(t, fixed.Violation(v.x), delta.Violation(v.x), 1e-9)
}

func TestDeltaBaseFeedGammaDefaultsToZero(t *testing.T) {
	b := yieldToy()
	dropParam(b, "gamma", "PD", "m", "g")
	ctx := newContext(t, b, "case1")
	rows := generate(t, ctx)

	v := newValues(t, ctx.Vars)
	feed := find(t, rows, "delta_base_gamma", "PD", "m", "g", "1")
	require.Zero(t, feed.Violation(v.x))
	v.set(0.1, variables.Gamma, "PD", "m", "g", "1")
	require.InDelta(t, 0.1, feed.Violation(v.x), 1e-12)

	dropParam(b, "gamma", "PD", "m", "p2")
	_, err := NewDefaultEngine().Generate(newContext(t, b, "case1"))
	var de domain.DataError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "gamma", de.Param)
}

func TestFixedYieldSplitsFeed(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case1"), "case1")
	rows := generate(t, ctx)
	require.Len(t, named(rows, "fixed_yield"), 2)

	v := newValues(t, ctx.Vars)
	v.set(100, variables.FVM, "REF1", "m1", "naph_ref", "1")
	v.set(85, variables.FVM, "REF1", "m1", "reformate", "1")
	v.set(15, variables.FVM, "REF1", "m1", "lpg", "1")
	reformate := find(t, rows, "fixed_yield", "REF1", "m1", "reformate", "1")
	lpg := find(t, rows, "fixed_yield", "REF1", "m1", "lpg", "1")
	require.InDelta(t, 0, reformate.Violation(v.x), 1e-9)
	require.InDelta(t, 0, lpg.Violation(v.x), 1e-9)

	v.set(90, variables.FVM, "REF1", "m1", "reformate", "1")
	require.InDelta(t, 5, reformate.Violation(v.x), 1e-9)
}

func TestPropertyTransfer(t *testing.T) {
	t.Run("scaled by alpha", func(t *testing.T) {
		ctx := newContext(t, dataset.SampleBundle("case1"), "case1")
		row := find(t, generate(t, ctx), "property_transfer", "crudemix", "resid", "sul", "1")
		v := newValues(t, ctx.Vars)
		v.set(1.5, variables.FQ, "crudemix", "sul", "1")
		v.set(2.7, variables.FQ, "resid", "sul", "1")
		require.InDelta(t, 0, row.Violation(v.x), 1e-12)
	})
	t.Run("alpha defaults to one", func(t *testing.T) {
		b := dataset.SampleBundle("case1")
		dropParam(b, "alpha", "crudemix", "resid", "sul")
		ctx := newContext(t, b, "case1")
		row := find(t, generate(t, ctx), "property_transfer", "crudemix", "resid", "sul", "1")
		v := newValues(t, ctx.Vars)
		v.set(1.5, variables.FQ, "crudemix", "sul", "1")
		v.set(1.5, variables.FQ, "resid", "sul", "1")
		require.InDelta(t, 0, row.Violation(v.x), 1e-12)
		v.set(2.7, variables.FQ, "resid", "sul", "1")
		require.InDelta(t, 1.2, row.Violation(v.x), 1e-12)
	})
	t.Run("fixed target is skipped", func(t *testing.T) {
		b := dataset.SampleBundle("case1")
		b.Tuples("FIX", domain.T("resid", "sul"))
		b.Param("FQ0", 2.6, "resid", "sul")
		rows := generate(t, newContext(t, b, "case1"))
		require.Empty(t, named(rows, "property_transfer"))
		require.NotEmpty(t, named(rows, "property_fixed"))
	})
}

func TestStreamBalanceWithInventory(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case2"), "case2")
	rows := generate(t, ctx)

	tank := find(t, rows, "stream_balance", "gasoline", "2")
	require.Len(t, tank.Body.Terms, 4)
	v := newValues(t, ctx.Vars)
	v.set(100, variables.FVO, "gasoline", "2")
	v.set(20, variables.FVLO, "gasoline", "2")
	v.set(120, variables.FVI, "gasoline", "2")
	require.InDelta(t, 0, tank.Violation(v.x), 1e-12)
	v.set(5, variables.FVLI, "gasoline", "2")
	require.InDelta(t, 5, tank.Violation(v.x), 1e-12)

	plain := find(t, rows, "stream_balance", "kero", "2")
	require.Len(t, plain.Body.Terms, 2)
}

func TestBlenderQualityBounds(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case1"), "case1")
	rows := generate(t, ctx)

	// 10 m3 naph_blend (spg 0.72, ron 70), 50 m3 reformate (0.80, 98) and
	// 40 m3 fcc_gasoline (0.74, 91): 76.8 t at spg 0.768 and ron 92.4.
	v := newValues(t, ctx.Vars)
	feeds := []struct {
		stream      string
		volume, spg float64
		ron         float64
	}{{"naph_blend", 10, 0.72, 70}, {"reformate", 50, 0.80, 98}, {"fcc_gasoline", 40, 0.74, 91}}
	for _, f := range feeds {
		v.set(f.volume, variables.V, f.stream, "1")
		v.set(f.volume*f.spg, variables.FVI, f.stream, "1")
		v.set(f.spg, variables.FQ, f.stream, "spg", "1")
		v.set(f.ron, variables.FQ, f.stream, "ron", "1")
	}
	for _, c := range rows {
		if c.Family == FamilyBlender {
			require.InDelta(t, 0, c.Violation(v.x), 1e-9, c.Label())
		}
	}

	ron := find(t, rows, "blender_volume_property", "BLD1", "ron", "1", "min")
	v.set(94, variables.FQ, "reformate", "ron", "1")
	require.InDelta(t, 60, ron.Violation(v.x), 1e-9)

	heavy := find(t, rows, "blender_gravity_bounds", "BLD1", "spg", "1", "max")
	v.set(31.6, variables.FVI, "fcc_gasoline", "1")
	require.InDelta(t, 0.8, heavy.Violation(v.x), 1e-9)
	light := find(t, rows, "blender_gravity_bounds", "BLD1", "spg", "1", "min")
	require.Zero(t, light.Violation(v.x))
}

func TestMixerPropertyBounds(t *testing.T) {
	ctx := newContext(t, dataset.SampleBundle("case1"), "case1")
	rows := named(generate(t, ctx), "mixer_property_bounds")
	require.Len(t, rows, 1, "only sul carries an FQVMax")

	row := rows[0]
	require.Equal(t, domain.T("MIX1", "m1", "crudemix", "sul", "1"), row.Index)
	require.False(t, row.Lower.Valid)
	v := newValues(t, ctx.Vars)
	v.set(1.9, variables.FQ, "crudemix", "sul", "1")
	require.Zero(t, row.Violation(v.x))
	v.set(2.1, variables.FQ, "crudemix", "sul", "1")
	require.InDelta(t, 0.1, row.Violation(v.x), 1e-12)
}
