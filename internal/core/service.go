// Package core is the model facade: it orders the build pipeline from case
// data to an assembled model and hands finished models to solver adapters.
package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"refinerycore/internal/closure"
	"refinerycore/internal/constraints"
	"refinerycore/internal/dataset"
	"refinerycore/internal/logging"
	"refinerycore/internal/model"
	"refinerycore/internal/objective"
	"refinerycore/internal/solver"
	"refinerycore/internal/variables"
	"refinerycore/pkg/domain"
)

// Build is one assembled case. It is immutable once returned.
type Build struct {
	Case     string
	Variant  domain.Variant
	Data     *dataset.Store
	Index    *closure.Index
	Model    *model.Model
	BuiltAt  time.Time
	Duration time.Duration
}

// Option customises a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	clock   Clock
	logger  *zap.Logger
	metrics MetricsRecorder
	tracer  Tracer
	engine  *constraints.Engine
	solvers *solver.Registry
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(time.Now),
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		engine:  constraints.NewDefaultEngine(),
		solvers: solver.NewRegistry(),
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *serviceOptions) { o.logger = logging.OrNop(l) }
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(t Tracer) Option {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithEngine replaces the default nine-family constraint engine.
func WithEngine(e *constraints.Engine) Option {
	return func(o *serviceOptions) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithSolvers sets the adapters available to Solve and Run.
func WithSolvers(r *solver.Registry) Option {
	return func(o *serviceOptions) {
		if r != nil {
			o.solvers = r
		}
	}
}

// Service builds and solves planning cases read from a data source.
type Service struct {
	source dataset.Source
	opts   serviceOptions
}

// NewService constructs a service reading case data from source.
func NewService(source dataset.Source, opts ...Option) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{source: source, opts: o}
}

// Solvers returns the adapter registry.
func (s *Service) Solvers() *solver.Registry { return s.opts.solvers }

func (s *Service) observe(ctx context.Context, op string, err error, start time.Time) {
	s.opts.metrics.Observe(ctx, op, err == nil, s.opts.clock.Now().Sub(start))
}

// Build runs the pipeline for caseID: variant check, load, index closure,
// variable declaration, the constraint families in engine order and the
// objective. Any error aborts the build and nothing partial is returned.
func (s *Service) Build(ctx context.Context, caseID string) (b *Build, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "build")
	start := s.opts.clock.Now()
	defer func() {
		s.observe(ctx, "build", err, start)
		span.End(err)
	}()
	log := s.opts.logger.With(zap.String("case", caseID))

	variant, err := domain.LookupVariant(caseID)
	if err != nil {
		return nil, err
	}
	data, err := s.source.Load(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", caseID, err)
	}
	log.Debug("case data loaded", zap.Strings("sets", data.SetNames()), zap.Int("params", len(data.ParamNames())))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, err := closure.Build(data, variant)
	if err != nil {
		return nil, fmt.Errorf("index closure: %w", err)
	}
	log.Debug("index closure built", zap.Any("units", idx.CategoryCounts()))

	reg := model.NewRegistry()
	if err := variables.Declare(reg, data, idx); err != nil {
		return nil, fmt.Errorf("declare variables: %w", err)
	}
	log.Debug("variables declared", zap.Int("variables", reg.Len()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.opts.engine.Generate(&constraints.Context{Data: data, Index: idx, Vars: reg})
	if err != nil {
		return nil, err
	}
	log.Debug("constraints generated", zap.Int("constraints", len(rows)))

	obj, err := objective.Assemble(data, idx, reg)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	m, err := model.New(caseID, reg, rows, obj)
	if err != nil {
		return nil, err
	}

	end := s.opts.clock.Now()
	b = &Build{
		Case:     caseID,
		Variant:  variant,
		Data:     data,
		Index:    idx,
		Model:    m,
		BuiltAt:  end,
		Duration: end.Sub(start),
	}
	stats := m.Stats()
	if mo, ok := s.opts.metrics.(ModelObserver); ok {
		mo.ObserveModel(caseID, stats)
	}
	log.Info("model built",
		zap.Int("variables", stats.Variables),
		zap.Int("binaries", stats.Binaries),
		zap.Int("constraints", stats.Constraints),
		zap.Int("bilinear_terms", stats.BilinearTerms),
		zap.Duration("duration", b.Duration))
	return b, nil
}

// Solve hands a finished build to the configured adapter. Solver outcomes,
// including time limits and infeasibility, are returned as the result's
// termination; only adapter and configuration failures are errors.
func (s *Service) Solve(ctx context.Context, b *Build, cfg solver.Config) (res solver.Result, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "solve")
	start := s.opts.clock.Now()
	defer func() {
		s.observe(ctx, "solve", err, start)
		span.End(err)
	}()
	if b == nil || b.Model == nil {
		return solver.Result{}, fmt.Errorf("solve: no model")
	}
	res, err = solver.Solve(ctx, s.opts.solvers, b.Model, cfg)
	if err != nil {
		s.opts.logger.Error("solve failed", zap.String("case", b.Case), zap.String("solver", cfg.Solver), zap.Error(err))
		return solver.Result{}, err
	}
	if so, ok := s.opts.metrics.(SolveObserver); ok {
		so.ObserveSolve(b.Case, cfg.Solver, res.Termination)
	}
	fields := []zap.Field{
		zap.String("case", b.Case),
		zap.String("solver", cfg.Solver),
		zap.String("termination", string(res.Termination)),
		zap.String("status", res.Status),
		zap.Duration("duration", res.Duration),
	}
	if res.Objective.Valid {
		fields = append(fields, zap.Float64("objective", res.Objective.Value))
	}
	s.opts.logger.Info("solve finished", fields...)
	return res, nil
}

// Run validates the case identifier and solver configuration, then builds
// and solves. Configuration errors surface before any data is read.
func (s *Service) Run(ctx context.Context, caseID string, cfg solver.Config) (*Build, solver.Result, error) {
	if _, err := domain.LookupVariant(caseID); err != nil {
		return nil, solver.Result{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, solver.Result{}, err
	}
	if _, err := s.opts.solvers.Lookup(cfg.Solver); err != nil {
		return nil, solver.Result{}, err
	}
	b, err := s.Build(ctx, caseID)
	if err != nil {
		return nil, solver.Result{}, err
	}
	res, err := s.Solve(ctx, b, cfg)
	return b, res, err
}
