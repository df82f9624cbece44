package objective

import (
	"testing"

	"github.com/stretchr/testify/require"

	"refinerycore/internal/closure"
	"refinerycore/internal/dataset"
	"refinerycore/internal/model"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

func setup(t *testing.T, b *dataset.Bundle) (*dataset.Store, *closure.Index, *model.Registry) {
	t.Helper()
	store, err := dataset.NewStore(*b)
	require.NoError(t, err)
	variant, err := domain.LookupVariant(b.Case)
	require.NoError(t, err)
	idx, err := closure.Build(store, variant)
	require.NoError(t, err)
	reg := model.NewRegistry()
	require.NoError(t, variables.Declare(reg, store, idx))
	return store, idx, reg
}

func coef(t *testing.T, obj model.Objective, reg *model.Registry, family string, idx ...string) float64 {
	t.Helper()
	id, err := reg.Lookup(family, idx...)
	require.NoError(t, err)
	for _, term := range obj.Expr.Terms {
		if term.A == id && !term.Bilinear() {
			return term.Coef
		}
	}
	return 0
}

func TestAssembleSampleCase1(t *testing.T) {
	store, idx, reg := setup(t, dataset.SampleBundle("case1"))
	obj, err := Assemble(store, idx, reg)
	require.NoError(t, err)

	require.Equal(t, model.Maximize, obj.Sense)
	require.Equal(t, 1, obj.Expr.Degree())
	require.Len(t, obj.Expr.Terms, 7, "five priced products and two crudes")
	require.Equal(t, 900.0, coef(t, obj, reg, variables.FVI, "gasoline", "1"))
	require.Equal(t, -450.0, coef(t, obj, reg, variables.FVO, "crude1", "1"))
	require.Zero(t, coef(t, obj, reg, variables.FVI, "naphtha", "1"))
}

func TestAssembleInventoryTerms(t *testing.T) {
	store, idx, reg := setup(t, dataset.SampleBundle("case2"))
	obj, err := Assemble(store, idx, reg)
	require.NoError(t, err)

	require.Len(t, obj.Expr.Terms, 7*3+2*3)
	require.Equal(t, 20.0, coef(t, obj, reg, variables.FVLI, "gasoline", "2"))
	require.Equal(t, -5.0, coef(t, obj, reg, variables.FVLO, "crude1", "3"))
	require.Zero(t, coef(t, obj, reg, variables.FVLO, "gasoline", "2"))
}

func TestPeriodPricesAndMissingPeriods(t *testing.T) {
	b := dataset.SampleBundle("case2")
	delete(b.Params, "c_P")
	b.Param("c_P", 900, "gasoline", "1").Param("c_P", 950, "gasoline", "3")
	store, idx, reg := setup(t, b)
	obj, err := Assemble(store, idx, reg)
	require.NoError(t, err)
	require.Equal(t, 900.0, coef(t, obj, reg, variables.FVI, "gasoline", "1"))
	require.Zero(t, coef(t, obj, reg, variables.FVI, "gasoline", "2"), "absent price adds no term")
	require.Equal(t, 950.0, coef(t, obj, reg, variables.FVI, "gasoline", "3"))
	require.Zero(t, coef(t, obj, reg, variables.FVI, "kero", "1"))
}

func TestPeriodPriceOverridesStreamPrice(t *testing.T) {
	b := dataset.SampleBundle("case2")
	b.Param("c_P", 990, "gasoline", "2")
	b.Param("c_M", 400, "crude2", "1")
	store, idx, reg := setup(t, b)
	obj, err := Assemble(store, idx, reg)
	require.NoError(t, err)
	require.Equal(t, 900.0, coef(t, obj, reg, variables.FVI, "gasoline", "1"))
	require.Equal(t, 990.0, coef(t, obj, reg, variables.FVI, "gasoline", "2"))
	require.Equal(t, -400.0, coef(t, obj, reg, variables.FVO, "crude2", "1"))
	require.Equal(t, -420.0, coef(t, obj, reg, variables.FVO, "crude2", "3"))
}
