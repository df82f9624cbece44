// Package baron runs the BARON global solver on an assembled model.
package baron

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"refinerycore/internal/model"
	"refinerycore/internal/solver"
	"refinerycore/internal/solver/pip"
	"refinerycore/pkg/domain"
)

// Name is the solver identifier of this adapter.
const Name = "baron"

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "baron"

var (
	// execCommand is swapped out in tests.
	execCommand = exec.CommandContext
	// killGrace is how long the process may overrun its own time limit.
	killGrace = 30 * time.Second
)

// reserved options are owned by the adapter and cannot be overridden.
var reserved = map[string]bool{"ResName": true, "results": true, "summary": true}

// Adapter implements solver.Adapter for BARON.
type Adapter struct {
	binary string
	logger *zap.Logger
}

// New returns an adapter invoking binary; an empty binary means DefaultBinary.
func New(binary string, logger *zap.Logger) *Adapter {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{binary: binary, logger: logger.Named("baron")}
}

// Name implements solver.Adapter.
func (a *Adapter) Name() string { return Name }

// Solve writes m to a scratch directory, runs BARON and reads back its
// results file.
func (a *Adapter) Solve(ctx context.Context, m *model.Model, cfg solver.Config) (solver.Result, error) {
	dir, err := os.MkdirTemp("", "refinery-baron-")
	if err != nil {
		return solver.Result{}, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	problem := filepath.Join(dir, "model.bar")
	results := filepath.Join(dir, "res.lst")
	f, err := os.Create(problem)
	if err != nil {
		return solver.Result{}, fmt.Errorf("write model: %w", err)
	}
	if err := Write(f, m, options(cfg, results)); err != nil {
		f.Close()
		return solver.Result{}, fmt.Errorf("write model: %w", err)
	}
	if err := f.Close(); err != nil {
		return solver.Result{}, fmt.Errorf("write model: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.TimeLimit+killGrace)
	defer cancel()
	cmd := execCommand(runCtx, a.binary, problem)
	a.logger.Debug("starting solver",
		zap.String("case", m.Case),
		zap.Int("variables", len(m.Variables)),
		zap.Int("rows", len(m.Constraints)),
		zap.Duration("time_limit", cfg.TimeLimit),
		zap.Float64("gap", cfg.Gap()))

	start := time.Now()
	out, runErr := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if runCtx.Err() != nil {
		a.logger.Warn("solver killed", zap.Duration("elapsed", elapsed), zap.Error(runCtx.Err()))
		term := solver.TimeLimit
		if errors.Is(ctx.Err(), context.Canceled) {
			term = solver.Error
		}
		return solver.Result{Termination: term, Status: "killed", Duration: elapsed, Message: runCtx.Err().Error()}, nil
	}
	if runErr != nil {
		return solver.Result{Termination: solver.Error, Status: "process failed", Duration: elapsed, Message: strings.TrimSpace(runErr.Error() + ": " + lastLine(out))}, nil
	}

	res, err := readResults(results, len(m.Variables))
	if err != nil {
		return solver.Result{Termination: solver.Error, Status: "no results file", Duration: elapsed, Message: err.Error()}, nil
	}
	res.Termination = classify(res.Status)
	if res.Termination == solver.Infeasible || res.Termination == solver.Error {
		res.Values = nil
		res.Objective = domain.None()
	}
	res.Duration = elapsed
	return res, nil
}

// options puts the limits first, then cfg.Options in name order with any
// limit they rename dropped, then the entries the adapter relies on.
func options(cfg solver.Config, results string) []Option {
	var out []Option
	limits := []Option{
		{"MaxTime", strconv.FormatFloat(cfg.TimeLimit.Seconds(), 'g', -1, 64)},
		{"EpsR", strconv.FormatFloat(cfg.Gap(), 'g', -1, 64)},
	}
	for _, o := range limits {
		if _, ok := cfg.Options[o.Name]; !ok {
			out = append(out, o)
		}
	}
	for _, k := range cfg.OptionNames() {
		if !reserved[k] {
			out = append(out, Option{k, cfg.Options[k]})
		}
	}
	return append(out,
		Option{"results", "1"},
		Option{"summary", "0"},
		Option{"ResName", strconv.Quote(results)})
}

// classify maps the banner lines of a results file to a termination
// condition. BARON reports "Normal completion" for infeasible problems too,
// so the problem status is checked first.
func classify(status string) solver.Termination {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "unbounded"):
		return solver.Error
	case strings.Contains(s, "infeasible"):
		return solver.Infeasible
	case strings.Contains(s, "max. allowable time exceeded"):
		return solver.TimeLimit
	case strings.Contains(s, "normal completion"):
		return solver.Optimal
	default:
		return solver.Error
	}
}

// readResults parses the results file:
//
//	*** Normal completion ***
//	The best solution found is:
//
//	  variable   xlo    xbest   xup
//	  x0         0      100     1000
//
//	The above solution has an objective value of:  1234.5
//
// Banner lines are joined into Status.
func readResults(path string, n int) (solver.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return solver.Result{}, err
	}
	defer f.Close()

	var (
		res     solver.Result
		banners []string
		table   bool
	)
	const objective = "The above solution has an objective value of:"
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "***") && strings.HasSuffix(line, "***"):
			banners = append(banners, strings.TrimSpace(strings.Trim(line, "*")))
		case strings.HasPrefix(line, "The best solution found is"):
			table = true
		case strings.HasPrefix(line, objective):
			table = false
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, objective)), 64)
			if err != nil {
				return solver.Result{}, fmt.Errorf("objective value: %w", err)
			}
			res.Objective = domain.Some(v)
		case table:
			fields := strings.Fields(line)
			if len(fields) < 3 {
				continue
			}
			id, ok := pip.ParseVarName(fields[0])
			if !ok || int(id) >= n {
				continue
			}
			v, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return solver.Result{}, fmt.Errorf("value of %s: %w", fields[0], err)
			}
			if res.Values == nil {
				res.Values = make([]float64, n)
			}
			res.Values[id] = v
		}
	}
	if err := sc.Err(); err != nil {
		return solver.Result{}, err
	}
	if res.Values == nil && res.Objective.Valid {
		res.Values = make([]float64, n)
	}
	res.Status = strings.Join(banners, "; ")
	return res, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}
