package closure

import (
	"testing"

	"github.com/stretchr/testify/require"

	"refinerycore/internal/dataset"
	"refinerycore/pkg/domain"
)

func mustVariant(t *testing.T, id string) domain.Variant {
	t.Helper()
	v, err := domain.LookupVariant(id)
	require.NoError(t, err)
	return v
}

func build(t *testing.T, b *dataset.Bundle, caseID string) (*Index, error) {
	t.Helper()
	store, err := dataset.NewStore(*b)
	require.NoError(t, err)
	return Build(store, mustVariant(t, caseID))
}

func TestBuildSampleCase1(t *testing.T) {
	idx, err := build(t, dataset.SampleBundle("case1"), "case1")
	require.NoError(t, err)

	require.Equal(t, []string{"1"}, idx.Periods)
	require.Equal(t, []string{"MIX1"}, idx.UnitsIn(Mixer))
	cat, ok := idx.CategoryOf("FCC1")
	require.True(t, ok)
	require.Equal(t, DeltaBase, cat)

	require.Equal(t, []string{"m1"}, idx.InputBatches("MIX1", "crude1"))
	require.Empty(t, idx.InputBatches("MIX1", "gasoline"))

	batches := idx.UnitBatches("CDU1")
	require.Len(t, batches, 1)
	require.Equal(t, []string{"crudemix"}, batches[0].Inputs)
	require.Equal(t, []string{"naphtha", "kero", "diesel", "resid"}, batches[0].Outputs)

	require.Equal(t, []domain.Tuple{{"CDU1", "m1", "naphtha"}, {"CDU1", "m1", "kero"}}, idx.Swing)
	require.Equal(t, []domain.Tuple{{"FCC1", "m1", "resid"}, {"FCC1", "m1", "fcc_gasoline"}, {"FCC1", "m1", "fcc_lco"}}, idx.Gamma)
	require.Equal(t, []string{"naph_blend", "reformate", "fcc_gasoline"}, idx.BlenderVolume)
	require.Len(t, idx.MixerVolume, 3)

	q, ok := idx.Gravity("crude1")
	require.True(t, ok)
	require.Equal(t, "spg", q)
	_, ok = idx.Gravity("kero")
	require.False(t, ok)

	require.Empty(t, idx.Inventory, "single-period case carries no inventory")
	require.Equal(t, []domain.Tuple{{"resid", "sul"}}, idx.DeltaBasePairs("FCC1", "m1"))
}

func TestBuildSampleInventoryIndex(t *testing.T) {
	idx, err := build(t, dataset.SampleBundle("case2"), "case2")
	require.NoError(t, err)
	require.Equal(t, []string{"crude1", "gasoline"}, idx.InventoryStreams)
	require.Len(t, idx.Inventory, 2*3)
	require.True(t, idx.IsInventory("gasoline", "3"))
	require.False(t, idx.IsInventory("kero", "1"))

	prev, ok := idx.PrevPeriod("2")
	require.True(t, ok)
	require.Equal(t, "1", prev)
	_, ok = idx.PrevPeriod("1")
	require.False(t, ok)
}

func TestInventoryStreamsFromLMaxWhenSIAbsent(t *testing.T) {
	b := dataset.NewBundle("case2").
		Members("T", "1", "2").
		Members("S", "a", "b", "c").
		Members("U").
		Param("LMax", 0, "a", "1").
		Param("LMax", 10, "c", "2")
	idx, err := build(t, b, "case2")
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, idx.InventoryStreams)
	require.Equal(t, []domain.Tuple{{"c", "1"}, {"c", "2"}}, idx.Inventory)
}

func TestCategoryUnitWithoutIncidenceIsLegitimate(t *testing.T) {
	b := dataset.NewBundle("case1").Members("S", "s1").Members("U", "u1").Members("UMIX", "u1")
	idx, err := build(t, b, "case1")
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, idx.UnitsIn(Mixer))
	require.Empty(t, idx.UnitBatches("u1"))
	require.Empty(t, idx.MixerVolume)
}

func TestBuildRejectsInconsistentData(t *testing.T) {
	base := func() *dataset.Bundle {
		return dataset.NewBundle("case1").
			Members("S", "s1", "s2").
			Members("U", "u1").
			Members("M", "m1").
			Members("Q", "q1")
	}
	cases := []struct {
		name string
		mut  func(b *dataset.Bundle)
		set  string
	}{
		{"category references unknown unit", func(b *dataset.Bundle) { b.Members("UCDU", "ghost") }, "UCDU"},
		{"unit in two categories", func(b *dataset.Bundle) { b.Members("UMIX", "u1").Members("UBLD", "u1") }, "UBLD"},
		{"incidence unknown stream", func(b *dataset.Bundle) { b.Tuples("IU", domain.T("u1", "s9")) }, "IU"},
		{"batch incidence outside unit incidence", func(b *dataset.Bundle) { b.Tuples("IM", domain.T("u1", "m1", "s1")) }, "IM"},
		{"batch incidence unknown batch", func(b *dataset.Bundle) {
			b.Tuples("OU", domain.T("u1", "s2")).Tuples("OM", domain.T("u1", "m7", "s2"))
		}, "OM"},
		{"fixed property outside SQ", func(b *dataset.Bundle) { b.Tuples("FIX", domain.T("s1", "q1")) }, "FIX"},
		{"property subset unknown", func(b *dataset.Bundle) { b.Members("Qv", "octane") }, "Qv"},
		{"capacity unknown", func(b *dataset.Bundle) { b.Members("CAPIN", "c1") }, "CAPIN"},
		{"product unknown", func(b *dataset.Bundle) { b.Members("S_P", "gas") }, "S_P"},
		{"transfer unknown stream", func(b *dataset.Bundle) { b.Tuples("QT", domain.T("s1", "s5", "q1")) }, "QT"},
		{"delta base outside SQ", func(b *dataset.Bundle) { b.Tuples("DBSQ", domain.T("u1", "m1", "s1", "q1")) }, "DBSQ"},
		{"wrong arity", func(b *dataset.Bundle) { b.Tuples("SQ", domain.T("s1")) }, "SQ"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := base()
			tc.mut(b)
			_, err := build(t, b, "case1")
			require.Error(t, err)
			var de domain.DataError
			require.ErrorAs(t, err, &de)
			require.Equal(t, tc.set, de.Set)
		})
	}
}

func TestSinglePeriodVariantRejectsManyPeriods(t *testing.T) {
	_, err := build(t, dataset.SampleBundle("case2"), "case1")
	var de domain.DataError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "T", de.Set)
}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := build(t, dataset.SampleBundle("case3"), "case3")
	require.NoError(t, err)
	b, err := build(t, dataset.SampleBundle("case3"), "case3")
	require.NoError(t, err)
	require.Equal(t, a.SetSizes(), b.SetSizes())
	require.Equal(t, a.BatchFlows, b.BatchFlows)
	require.Equal(t, a.Inventory, b.Inventory)
}
