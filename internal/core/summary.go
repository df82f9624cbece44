package core

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"refinerycore/internal/model"
)

// Summary is a read-only digest of a build for reports and the command line.
type Summary struct {
	Case           string         `json:"case"`
	Variant        string         `json:"variant"`
	Periods        int            `json:"periods"`
	Stats          model.Stats    `json:"stats"`
	SetSizes       map[string]int `json:"set_sizes"`
	UnitCategories map[string]int `json:"unit_categories"`
	Objective      string         `json:"objective"`
	ObjectiveTerms int            `json:"objective_terms"`
	DurationMS     float64        `json:"duration_ms"`
}

// Summary derives counts from the finished build without re-running it.
func (b *Build) Summary() Summary {
	obj := b.Model.Objective
	return Summary{
		Case:           b.Case,
		Variant:        b.Variant.Description,
		Periods:        len(b.Index.Periods),
		Stats:          b.Model.Stats(),
		SetSizes:       b.Index.SetSizes(),
		UnitCategories: b.Index.CategoryCounts(),
		Objective:      obj.Sense.String() + " " + obj.Name,
		ObjectiveTerms: len(obj.Expr.Terms),
		DurationMS:     float64(b.Duration.Microseconds()) / 1000,
	}
}

// WriteTo prints the summary as aligned text.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "case %s: %s, %d period(s)\n", s.Case, s.Variant, s.Periods)
	fmt.Fprintf(&buf, "variables   %d (binaries %d)\n", s.Stats.Variables, s.Stats.Binaries)
	writeCounts(&buf, "by domain", s.Stats.VariablesByDomain)
	writeCounts(&buf, "by family", s.Stats.VariablesByFamily)
	fmt.Fprintf(&buf, "constraints %d (equalities %d, bilinear terms %d, nonzeros %d)\n",
		s.Stats.Constraints, s.Stats.Equalities, s.Stats.BilinearTerms, s.Stats.Nonzeros)
	writeCounts(&buf, "by family", s.Stats.ConstraintsByFamily)
	writeCounts(&buf, "by name", s.Stats.ConstraintsByName)
	writeCounts(&buf, "sets", s.SetSizes)
	writeCounts(&buf, "units", s.UnitCategories)
	fmt.Fprintf(&buf, "objective   %s (%d terms)\n", s.Objective, s.ObjectiveTerms)
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func writeCounts(buf *bytes.Buffer, label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	fmt.Fprintf(buf, "  %-10s %s\n", label+":", strings.Join(parts, " "))
}
