// Package report turns solve outcomes into JSON documents kept in the artifact
// store and renders them for the command line.
package report

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"refinerycore/internal/blob"
	"refinerycore/internal/core"
	"refinerycore/internal/solver"
	"refinerycore/pkg/domain"
)

// SolutionPrefix is the key prefix of stored solution reports.
const SolutionPrefix = "solutions"

// DefaultTolerance is the feasibility tolerance used to list violations.
const DefaultTolerance = 1e-6

// Value is one non-zero variable of a solution.
type Value struct {
	Name   string  `json:"name"`
	Family string  `json:"family"`
	Value  float64 `json:"value"`
}

// Violation is a row or bound the reported solution misses.
type Violation struct {
	Label  string  `json:"label"`
	Family string  `json:"family"`
	Amount float64 `json:"amount"`
}

// Report is the stored outcome of one solve run.
type Report struct {
	ID          string             `json:"id"`
	Case        string             `json:"case"`
	Solver      string             `json:"solver"`
	TimeLimitS  float64            `json:"time_limit_s"`
	Gap         float64            `json:"gap"`
	Options     map[string]string  `json:"options,omitempty"`
	Termination solver.Termination `json:"termination"`
	Status      string             `json:"status"`
	Objective   domain.Optional    `json:"objective"`
	Message     string             `json:"message,omitempty"`
	SolvedAt    time.Time          `json:"solved_at"`
	SolveMS     float64            `json:"solve_ms"`
	Summary     core.Summary       `json:"summary"`
	Values      []Value            `json:"values,omitempty"`
	Violations  []Violation        `json:"violations,omitempty"`
}

// New assembles a report. Values below tol in magnitude are omitted and, when
// a solution exists, rows it violates by more than tol are listed.
func New(id uuid.UUID, b *core.Build, cfg solver.Config, res solver.Result, at time.Time, tol float64) Report {
	r := Report{
		ID:          id.String(),
		Case:        b.Case,
		Solver:      cfg.Solver,
		TimeLimitS:  cfg.TimeLimit.Seconds(),
		Gap:         cfg.Gap(),
		Options:     maps.Clone(cfg.Options),
		Termination: res.Termination,
		Status:      res.Status,
		Objective:   res.Objective,
		Message:     res.Message,
		SolvedAt:    at.UTC(),
		SolveMS:     float64(res.Duration.Microseconds()) / 1000,
		Summary:     b.Summary(),
	}
	if !res.HasSolution() {
		return r
	}
	for _, v := range b.Model.Variables {
		x := res.Values[v.ID]
		if x > tol || x < -tol {
			r.Values = append(r.Values, Value{Name: v.Name(), Family: v.Family, Value: x})
		}
	}
	for _, v := range b.Model.Violations(res.Values, tol) {
		r.Violations = append(r.Violations, Violation(v))
	}
	return r
}

// Key returns the artifact key of the report.
func (r Report) Key() string { return blob.Key(SolutionPrefix, r.Case, r.ID+".json") }

// Save writes the report under Key. Reports are never overwritten.
func Save(ctx context.Context, store blob.Store, r Report) (blob.Info, error) {
	return blob.PutJSON(ctx, store, r.Key(), r, map[string]string{
		"case":        r.Case,
		"termination": string(r.Termination),
	})
}

// Load reads a stored report.
func Load(ctx context.Context, store blob.Store, key string) (Report, error) {
	var r Report
	if err := blob.GetJSON(ctx, store, key, &r); err != nil {
		return Report{}, err
	}
	return r, nil
}

// List returns the stored reports of a case, or of every case when caseID is empty.
func List(ctx context.Context, store blob.Store, caseID string) ([]blob.Info, error) {
	prefix := SolutionPrefix + "/"
	if caseID != "" {
		prefix = blob.Key(SolutionPrefix, caseID) + "/"
	}
	return store.List(ctx, prefix)
}

// WriteText renders the report headline and its largest values.
func (r Report) WriteText(w io.Writer, top int) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s\n", r.ID)
	fmt.Fprintf(&sb, "case %s solved with %s: %s", r.Case, r.Solver, r.Termination)
	if r.Status != "" && r.Status != string(r.Termination) {
		fmt.Fprintf(&sb, " (%s)", r.Status)
	}
	sb.WriteString("\n")
	if r.Objective.Valid {
		fmt.Fprintf(&sb, "objective %s = %.6g\n", r.Summary.Objective, r.Objective.Value)
	}
	if r.Message != "" {
		fmt.Fprintf(&sb, "message %s\n", r.Message)
	}
	if len(r.Violations) > 0 {
		fmt.Fprintf(&sb, "violations %d (largest %s by %.3g)\n", len(r.Violations), largest(r.Violations).Label, largest(r.Violations).Amount)
	}
	values := append([]Value(nil), r.Values...)
	sort.SliceStable(values, func(i, j int) bool { return abs(values[i].Value) > abs(values[j].Value) })
	if top > 0 && len(values) > top {
		values = values[:top]
	}
	for _, v := range values {
		fmt.Fprintf(&sb, "  %-40s %14.6g\n", v.Name, v.Value)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func largest(vs []Violation) Violation {
	out := vs[0]
	for _, v := range vs[1:] {
		if v.Amount > out.Amount {
			out = v
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
