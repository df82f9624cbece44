// Package solver defines the contract between the assembled model and the
// external numerical solvers that consume it.
package solver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"refinerycore/internal/model"
	"refinerycore/pkg/domain"
)

// Termination is the categorical outcome of a solve attempt.
type Termination string

const (
	Optimal    Termination = "optimal"
	TimeLimit  Termination = "time_limit"
	Infeasible Termination = "infeasible"
	Error      Termination = "error"
)

// DefaultGap is the relative optimality gap used when none is configured.
const DefaultGap = 1e-4

// Config selects the solver and its stop conditions. Options are passed to
// the solver verbatim in its own settings syntax and override the limits
// derived from TimeLimit and RelativeGap when they name the same setting.
type Config struct {
	Solver      string
	TimeLimit   time.Duration
	RelativeGap float64
	Options     map[string]string
}

// Validate reports configuration problems as domain.ConfigError.
func (c Config) Validate() error {
	switch {
	case c.Solver == "":
		return domain.ConfigError{Field: "solver", Reason: "no solver selected"}
	case c.TimeLimit < 0:
		return domain.ConfigError{Field: "time_limit", Value: c.TimeLimit.String(), Reason: "negative time limit"}
	case c.RelativeGap < 0 || c.RelativeGap >= 1:
		return domain.ConfigError{Field: "gap", Value: fmt.Sprint(c.RelativeGap), Reason: "relative gap must be in [0,1)"}
	}
	for k, v := range c.Options {
		if k == "" || strings.ContainsAny(k, " \t\r\n=:;") {
			return domain.ConfigError{Field: "options", Value: k, Reason: "malformed option name"}
		}
		if strings.ContainsAny(v, "\r\n;") {
			return domain.ConfigError{Field: "options", Value: k, Reason: "option value spans lines"}
		}
	}
	return nil
}

// OptionNames returns the option names in sorted order.
func (c Config) OptionNames() []string {
	out := make([]string, 0, len(c.Options))
	for k := range c.Options {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Gap returns the configured gap or DefaultGap.
func (c Config) Gap() float64 {
	if c.RelativeGap == 0 {
		return DefaultGap
	}
	return c.RelativeGap
}

// Result is what a solve attempt returns. Values is indexed by model.VarID and
// is nil when the solver produced no assignment.
type Result struct {
	Termination Termination
	Status      string
	Objective   domain.Optional
	Values      []float64
	Duration    time.Duration
	Message     string
}

// HasSolution reports whether a value assignment is available.
func (r Result) HasSolution() bool { return r.Values != nil }

// Adapter solves an assembled model. Solver-reported outcomes, including
// failures of the external process, come back in Result; the error return is
// reserved for problems on the caller's side.
type Adapter interface {
	Name() string
	Solve(ctx context.Context, m *model.Model, cfg Config) (Result, error)
}

// Registry maps solver identifiers to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Lookup returns the adapter for name.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, domain.ConfigError{Field: "solver", Value: name, Reason: "unsupported solver"}
	}
	return a, nil
}

// Names lists registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Solve validates cfg and runs the selected adapter. A zero time limit leaves
// no time to search, so it reports TimeLimit without starting the solver.
func Solve(ctx context.Context, reg *Registry, m *model.Model, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	a, err := reg.Lookup(cfg.Solver)
	if err != nil {
		return Result{}, err
	}
	if cfg.TimeLimit == 0 {
		return Result{Termination: TimeLimit, Status: "time limit reached", Message: "zero time limit"}, nil
	}
	res, err := a.Solve(ctx, m, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("solve with %s: %w", a.Name(), err)
	}
	if res.Values != nil && len(res.Values) != len(m.Variables) {
		return Result{}, fmt.Errorf("solve with %s: %d values for %d variables", a.Name(), len(res.Values), len(m.Variables))
	}
	return res, nil
}
