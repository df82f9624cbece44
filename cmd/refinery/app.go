package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"refinerycore/internal/blob"
	"refinerycore/internal/config"
	"refinerycore/internal/core"
	"refinerycore/internal/logging"
	"refinerycore/internal/solver"
	"refinerycore/internal/solver/baron"
	"refinerycore/internal/solver/scip"
)

// solverAdapters returns the adapters registered for every service. Tests
// replace it with fakes.
var solverAdapters = func(cfg config.Solver, logger *zap.Logger) []solver.Adapter {
	return []solver.Adapter{
		scip.New(cfg.SCIPPath, logger),
		baron.New(cfg.BaronPath, logger),
	}
}

// app holds the state shared by the subcommands of one invocation. A nil
// recorder or tracer leaves the service defaults in place.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	tracePath   string
	metricsPath string

	cfg       config.Config
	logger    *zap.Logger
	cases     core.CaseStore
	artifacts blob.Store
	registry  *prometheus.Registry
	recorder  core.MetricsRecorder
	tracer    core.Tracer
	clock     core.Clock
	closers   []func() error
}

func (a *app) now() time.Time {
	if a.clock != nil {
		return a.clock.Now()
	}
	return time.Now()
}

// setup loads configuration and builds the logger, metrics and tracer.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, _, err := logging.New(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if a.metricsPath != "" {
		a.registry = prometheus.NewRegistry()
		rec, err := core.NewPrometheusRecorder(a.registry)
		if err != nil {
			return err
		}
		a.recorder = rec
	}
	if a.tracePath != "" {
		f, err := os.Create(a.tracePath)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		a.tracer = core.NewJSONTracer(f)
	}
	return nil
}

// caseStore opens the configured case data backend once.
func (a *app) caseStore(ctx context.Context) (core.CaseStore, error) {
	if a.cases != nil {
		return a.cases, nil
	}
	s, err := core.OpenCaseStore(ctx, a.cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("open %s case store: %w", a.cfg.Data.Driver, err)
	}
	if c, ok := s.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.cases = s
	return s, nil
}

// artifactStore opens the configured blob store once.
func (a *app) artifactStore(ctx context.Context) (blob.Store, error) {
	if a.artifacts != nil {
		return a.artifacts, nil
	}
	s, err := blob.Open(ctx, a.cfg.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s artifact store: %w", a.cfg.Blob.Driver, err)
	}
	a.artifacts = s
	return s, nil
}

// service returns a fresh service over the case store.
func (a *app) service(ctx context.Context) (*core.Service, error) {
	store, err := a.caseStore(ctx)
	if err != nil {
		return nil, err
	}
	return core.NewService(store,
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(a.recorder),
		core.WithTracer(a.tracer),
		core.WithClock(a.clock),
		core.WithSolvers(solver.NewRegistry(solverAdapters(a.cfg.Solver, a.logger)...)),
	), nil
}

// close writes the metrics file and releases resources in reverse order.
func (a *app) close() error {
	var errs []error
	if a.registry != nil {
		if err := prometheus.WriteToTextfile(a.metricsPath, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
