// Package scip runs the SCIP command-line solver on an assembled model.
package scip

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
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
const Name = "scip"

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "scip"

var (
	// execCommand is swapped out in tests.
	execCommand = exec.CommandContext
	// killGrace is how long the process may overrun its own time limit.
	killGrace = 30 * time.Second

	statusLine = regexp.MustCompile(`SCIP Status\s*:\s*(.*)`)
)

// Adapter implements solver.Adapter for SCIP.
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
	return &Adapter{binary: binary, logger: logger.Named("scip")}
}

// Name implements solver.Adapter.
func (a *Adapter) Name() string { return Name }

// Solve writes m to a scratch directory, runs SCIP and reads back its
// solution file.
func (a *Adapter) Solve(ctx context.Context, m *model.Model, cfg solver.Config) (solver.Result, error) {
	dir, err := os.MkdirTemp("", "refinery-scip-")
	if err != nil {
		return solver.Result{}, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	problem := filepath.Join(dir, "model.pip")
	settings := filepath.Join(dir, "scip.set")
	solution := filepath.Join(dir, "model.sol")
	if err := writeFile(problem, func(w io.Writer) error { return pip.Write(w, m) }); err != nil {
		return solver.Result{}, fmt.Errorf("write model: %w", err)
	}
	if err := os.WriteFile(settings, []byte(settingsFile(cfg)), 0o600); err != nil {
		return solver.Result{}, fmt.Errorf("write settings: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.TimeLimit+killGrace)
	defer cancel()
	script := fmt.Sprintf("read %s optimize write solution %s quit", problem, solution)
	cmd := execCommand(runCtx, a.binary, "-s", settings, "-c", script)
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

	res, err := readSolution(solution, len(m.Variables))
	if err != nil {
		return solver.Result{Termination: solver.Error, Status: "no solution file", Duration: elapsed, Message: err.Error()}, nil
	}
	if match := statusLine.FindSubmatch(out); match != nil {
		res.Status = strings.TrimSpace(string(match[1]))
	}
	res.Termination = classify(res.Status)
	if res.Termination == solver.Infeasible || res.Termination == solver.Error {
		res.Values = nil
	}
	res.Duration = elapsed
	return res, nil
}

// settingsFile renders the limits followed by cfg.Options; SCIP keeps the
// last value read for a parameter, so options win over the limits.
func settingsFile(cfg solver.Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "limits/time = %s\nlimits/gap = %s\n",
		strconv.FormatFloat(cfg.TimeLimit.Seconds(), 'g', -1, 64),
		strconv.FormatFloat(cfg.Gap(), 'g', -1, 64))
	for _, k := range cfg.OptionNames() {
		fmt.Fprintf(&sb, "%s = %s\n", k, cfg.Options[k])
	}
	return sb.String()
}

// classify maps SCIP's status text to a termination condition.
func classify(status string) solver.Termination {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "optimal solution found"), strings.Contains(s, "gap limit reached"):
		return solver.Optimal
	case strings.Contains(s, "time limit reached"):
		return solver.TimeLimit
	case strings.Contains(s, "unbounded"):
		return solver.Error
	case strings.Contains(s, "infeasible"):
		return solver.Infeasible
	default:
		return solver.Error
	}
}

// readSolution parses a file written by "write solution":
//
//	solution status: optimal solution found
//	objective value:                 1234.5
//	x0                               100    (obj:900)
//
// Variables at zero are omitted by SCIP.
func readSolution(path string, n int) (solver.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return solver.Result{}, err
	}
	defer f.Close()

	var res solver.Result
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "solution status:"):
			res.Status = strings.TrimSpace(strings.TrimPrefix(line, "solution status:"))
		case strings.HasPrefix(line, "objective value:"):
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "objective value:")), 64)
			if err != nil {
				return solver.Result{}, fmt.Errorf("objective value: %w", err)
			}
			res.Objective = domain.Some(v)
		case strings.HasPrefix(line, "no solution available"):
		default:
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			id, ok := pip.ParseVarName(fields[0])
			if !ok || int(id) >= n {
				continue
			}
			v, err := strconv.ParseFloat(fields[1], 64)
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
	return res, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}
