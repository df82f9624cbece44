package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"refinerycore/internal/model"
	"refinerycore/pkg/domain"
)

type fakeAdapter struct {
	name   string
	result Result
	calls  int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Solve(context.Context, *model.Model, Config) (Result, error) {
	f.calls++
	return f.result, nil
}

func oneVarModel(t *testing.T) *model.Model {
	t.Helper()
	reg := model.NewRegistry()
	_, err := reg.Declare("F", domain.T("a"), model.NonNegative)
	require.NoError(t, err)
	reg.Seal()
	m, err := model.New("toy", reg, nil, model.Objective{})
	require.NoError(t, err)
	return m
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		cfg   Config
		field string
	}{
		{Config{TimeLimit: time.Second}, "solver"},
		{Config{Solver: "x", TimeLimit: -time.Second}, "time_limit"},
		{Config{Solver: "x", RelativeGap: 1}, "gap"},
		{Config{Solver: "x", Options: map[string]string{"": "1"}}, "options"},
		{Config{Solver: "x", Options: map[string]string{"limits/time = 5\nlimits/gap": "1"}}, "options"},
		{Config{Solver: "x", Options: map[string]string{"emphasis": "easy\nlimits/time = 0"}}, "options"},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		var ce domain.ConfigError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, tc.field, ce.Field)
	}
	require.NoError(t, Config{Solver: "x"}.Validate())
	require.Equal(t, DefaultGap, Config{}.Gap())
	require.Equal(t, 0.01, Config{RelativeGap: 0.01}.Gap())
	require.NoError(t, Config{Solver: "x", Options: map[string]string{"numerics/feastol": "1e-7"}}.Validate())
}

func TestOptionNamesSorted(t *testing.T) {
	cfg := Config{Options: map[string]string{"b": "2", "a/c": "1", "a": "0"}}
	require.Equal(t, []string{"a", "a/c", "b"}, cfg.OptionNames())
	require.Empty(t, Config{}.OptionNames())
}

func TestSolveZeroTimeLimitSkipsAdapter(t *testing.T) {
	fake := &fakeAdapter{name: "fake", result: Result{Termination: Optimal}}
	res, err := Solve(context.Background(), NewRegistry(fake), oneVarModel(t), Config{Solver: "fake"})
	require.NoError(t, err)
	require.Equal(t, TimeLimit, res.Termination)
	require.Zero(t, fake.calls)
}

func TestSolveChecksValueTable(t *testing.T) {
	fake := &fakeAdapter{name: "fake", result: Result{Termination: Optimal, Values: []float64{1, 2}}}
	_, err := Solve(context.Background(), NewRegistry(fake), oneVarModel(t), Config{Solver: "fake", TimeLimit: time.Second})
	require.ErrorContains(t, err, "2 values for 1 variables")

	fake.result.Values = []float64{7}
	res, err := Solve(context.Background(), NewRegistry(fake), oneVarModel(t), Config{Solver: "fake", TimeLimit: time.Second})
	require.NoError(t, err)
	require.True(t, res.HasSolution())
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry(&fakeAdapter{name: "scip"}, &fakeAdapter{name: "baron"})
	require.Equal(t, []string{"baron", "scip"}, reg.Names())
	_, err := reg.Lookup("cplex")
	require.Error(t, err)
}
