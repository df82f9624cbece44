package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"refinerycore/internal/constraints"
	"refinerycore/internal/dataset"
	"refinerycore/internal/infra/persistence/memory"
	"refinerycore/internal/model"
	"refinerycore/internal/solver"
	"refinerycore/pkg/domain"
)

type countingSource struct {
	inner dataset.Source
	loads atomic.Int32
}

func (c *countingSource) Load(ctx context.Context, caseID string) (*dataset.Store, error) {
	c.loads.Add(1)
	return c.inner.Load(ctx, caseID)
}

func sampleSource() *countingSource {
	return &countingSource{inner: memory.NewStore(
		*dataset.SampleBundle("case1"),
		*dataset.SampleBundle("case2"),
		*dataset.SampleBundle("case3"),
	)}
}

type fakeAdapter struct {
	name  string
	term  solver.Termination
	calls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Solve(_ context.Context, m *model.Model, _ solver.Config) (solver.Result, error) {
	f.calls++
	return solver.Result{
		Termination: f.term,
		Status:      string(f.term),
		Objective:   domain.Some(42),
		Values:      make([]float64, len(m.Variables)),
	}, nil
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.now = c.now.Add(250 * time.Millisecond)
	return c.now
}

func TestBuildSampleCases(t *testing.T) {
	svc := NewService(sampleSource())
	binaries := map[string]int{"case1": 0, "case2": 6, "case3": 8}
	for _, caseID := range SampleCases {
		t.Run(caseID, func(t *testing.T) {
			b, err := svc.Build(context.Background(), caseID)
			require.NoError(t, err)
			stats := b.Model.Stats()
			require.Equal(t, binaries[caseID], stats.Binaries)
			require.Len(t, stats.ConstraintsByFamily, len(constraints.NewDefaultEngine().Families())-boolToInt(caseID == "case1"))
			require.Positive(t, stats.BilinearTerms)
			require.Equal(t, model.Maximize, b.Model.Objective.Sense)
		})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestBuildIsDeterministic(t *testing.T) {
	svc := NewService(sampleSource())
	first, err := svc.Build(context.Background(), "case2")
	require.NoError(t, err)
	second, err := svc.Build(context.Background(), "case2")
	require.NoError(t, err)
	if diff := cmp.Diff(first.Model.Stats(), second.Model.Stats()); diff != "" {
		t.Fatalf("stats differ (-first +second):\n%s", diff)
	}
	require.Equal(t, first.Model.Variables, second.Model.Variables)
	require.Equal(t, len(first.Model.Constraints), len(second.Model.Constraints))
	for i := range first.Model.Constraints {
		require.Equal(t, first.Model.Constraints[i].Label(), second.Model.Constraints[i].Label())
	}
}

func TestBuildRejectsUnknownCaseBeforeLoading(t *testing.T) {
	src := sampleSource()
	_, err := NewService(src).Build(context.Background(), "case7")
	require.True(t, domain.IsConfigError(err))
	require.Zero(t, src.loads.Load())
}

func TestBuildWrapsSourceErrors(t *testing.T) {
	_, err := NewService(memory.NewStore()).Build(context.Background(), "case1")
	require.ErrorIs(t, err, dataset.ErrCaseNotFound)
	require.Contains(t, err.Error(), "load case1")
}

func TestBuildSurfacesDataErrors(t *testing.T) {
	b := dataset.SampleBundle("case2")
	delete(b.Params, "LMax")
	_, err := NewService(memory.NewStore(*b)).Build(context.Background(), "case2")
	require.Error(t, err)
	require.True(t, domain.IsDataError(err), "got %v", err)
}

type brokenGenerator struct{}

func (brokenGenerator) Family() string { return "broken" }

func (brokenGenerator) Generate(*constraints.Context) ([]model.Constraint, error) {
	return nil, errors.New("boom")
}

func TestBuildStopsOnGeneratorError(t *testing.T) {
	engine := constraints.NewDefaultEngine()
	engine.Register(brokenGenerator{})
	metrics := &captureMetricsRecorder{}
	tracer := NewJSONTracer(nil)
	svc := NewService(sampleSource(), WithEngine(engine), WithMetricsRecorder(metrics), WithTracer(tracer))
	b, err := svc.Build(context.Background(), "case1")
	require.Nil(t, b)
	require.EqualError(t, err, "broken constraints: boom")
	require.Equal(t, []metricsCall{{op: "build", success: false}}, metrics.calls)
	entries := tracer.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "error", entries[0].Status)
	require.Equal(t, "broken constraints: boom", entries[0].Error)
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(sampleSource()).Build(ctx, "case1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildLogsAndTimes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	clock := &steppingClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewService(sampleSource(), WithLogger(zap.New(core)), WithClock(clock))
	b, err := svc.Build(context.Background(), "case1")
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, b.Duration)

	built := logs.FilterMessage("model built").All()
	require.Len(t, built, 1)
	require.Equal(t, "case1", built[0].ContextMap()["case"])
	require.Equal(t, int64(b.Model.Stats().Constraints), built[0].ContextMap()["constraints"])
	require.Equal(t, 4, logs.FilterLevelExact(zap.DebugLevel).Len())
}

func TestRunValidatesBeforeBuilding(t *testing.T) {
	src := sampleSource()
	fake := &fakeAdapter{name: "fake", term: solver.Optimal}
	svc := NewService(src, WithSolvers(solver.NewRegistry(fake)))
	cases := []struct {
		name   string
		caseID string
		cfg    solver.Config
		field  string
	}{
		{"unknown case", "case0", solver.Config{Solver: "fake", TimeLimit: time.Second}, "case"},
		{"no solver", "case1", solver.Config{TimeLimit: time.Second}, "solver"},
		{"unknown solver", "case1", solver.Config{Solver: "gurobi", TimeLimit: time.Second}, "solver"},
		{"bad gap", "case1", solver.Config{Solver: "fake", RelativeGap: 2}, "gap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Run(context.Background(), tc.caseID, tc.cfg)
			var ce domain.ConfigError
			require.ErrorAs(t, err, &ce)
			require.Equal(t, tc.field, ce.Field)
		})
	}
	require.Zero(t, src.loads.Load())
	require.Zero(t, fake.calls)
}

func TestRunSolvesAndRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	fake := &fakeAdapter{name: "fake", term: solver.Optimal}
	svc := NewService(sampleSource(), WithSolvers(solver.NewRegistry(fake)), WithMetricsRecorder(rec))

	b, res, err := svc.Run(context.Background(), "case2", solver.Config{Solver: "fake", TimeLimit: time.Minute})
	require.NoError(t, err)
	require.Equal(t, solver.Optimal, res.Termination)
	require.Len(t, res.Values, len(b.Model.Variables))
	require.Equal(t, 1, fake.calls)

	require.Equal(t, 1.0, testutil.ToFloat64(rec.terminations.WithLabelValues("case2", "fake", "optimal")))
	require.Equal(t, 6.0, testutil.ToFloat64(rec.variables.WithLabelValues("case2", "binary")))
	require.Equal(t, 2, testutil.CollectAndCount(rec.durations))
}

func TestSolveWithZeroTimeLimitNeverRunsSolver(t *testing.T) {
	fake := &fakeAdapter{name: "fake", term: solver.Optimal}
	svc := NewService(sampleSource(), WithSolvers(solver.NewRegistry(fake)))
	_, res, err := svc.Run(context.Background(), "case1", solver.Config{Solver: "fake"})
	require.NoError(t, err)
	require.Equal(t, solver.TimeLimit, res.Termination)
	require.False(t, res.HasSolution())
	require.Zero(t, fake.calls)
}

func TestSolveWithoutModel(t *testing.T) {
	_, err := NewService(sampleSource()).Solve(context.Background(), nil, solver.Config{Solver: "fake"})
	require.Error(t, err)
}

func TestSummaryWriteTo(t *testing.T) {
	b, err := NewService(sampleSource()).Build(context.Background(), "case2")
	require.NoError(t, err)
	s := b.Summary()
	require.Equal(t, 3, s.Periods)
	require.Equal(t, 1, s.UnitCategories["UCDU"])
	require.Equal(t, "maximize profit", s.Objective)

	var buf bytes.Buffer
	n, err := s.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "case case2: multi-period"), out)
	require.Contains(t, out, "(binaries 6)")
	require.Contains(t, out, "X=6")
	require.Contains(t, out, "inventory_level=6")
	require.Contains(t, out, "UBLD=1")
}
