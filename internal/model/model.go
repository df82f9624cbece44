package model

import (
	"fmt"
	"math"
)

// Sense is the optimisation direction.
type Sense int

const (
	Maximize Sense = iota
	Minimize
)

func (s Sense) String() string {
	if s == Minimize {
		return "minimize"
	}
	return "maximize"
}

// Objective is the scalar expression to optimise.
type Objective struct {
	Name  string
	Sense Sense
	Expr  Expr
}

// Model is an assembled, immutable problem instance.
type Model struct {
	Case        string
	Variables   []Variable
	Constraints []Constraint
	Objective   Objective

	lookup map[string]VarID
}

// New assembles a model from a sealed registry, generated rows and the objective.
func New(caseID string, reg *Registry, rows []Constraint, obj Objective) (*Model, error) {
	if !reg.Sealed() {
		return nil, fmt.Errorf("model: registry for %s not sealed", caseID)
	}
	m := &Model{
		Case:        caseID,
		Variables:   reg.Variables(),
		Constraints: rows,
		Objective:   obj,
		lookup:      make(map[string]VarID, reg.Len()),
	}
	for _, v := range m.Variables {
		m.lookup[registryKey(v.Family, v.Index)] = v.ID
	}
	return m, nil
}

// Lookup resolves a variable by family and index.
func (m *Model) Lookup(family string, idx ...string) (VarID, bool) {
	id, ok := m.lookup[registryKey(family, idx)]
	return id, ok
}

// Violation describes a row or variable bound not met by an assignment.
type Violation struct {
	Label  string
	Family string
	Amount float64
}

// Violations lists every row, bound or integrality requirement that x misses by
// more than tol. x is indexed by VarID and must cover every variable.
func (m *Model) Violations(x []float64, tol float64) []Violation {
	var out []Violation
	for _, v := range m.Variables {
		val := x[v.ID]
		var amt float64
		switch {
		case v.Lower.Valid && val < v.Lower.Value:
			amt = v.Lower.Value - val
		case v.Upper.Valid && val > v.Upper.Value:
			amt = val - v.Upper.Value
		}
		if v.Domain == Binary {
			amt = math.Max(amt, math.Abs(val-math.Round(val)))
		}
		if amt > tol {
			out = append(out, Violation{Label: v.Name(), Family: "variable_bounds", Amount: amt})
		}
	}
	for _, c := range m.Constraints {
		if amt := c.Violation(x); amt > tol {
			out = append(out, Violation{Label: c.Label(), Family: c.Family, Amount: amt})
		}
	}
	return out
}

// Stats summarises the model without re-deriving it.
type Stats struct {
	Variables           int
	VariablesByDomain   map[string]int
	VariablesByFamily   map[string]int
	Binaries            int
	Constraints         int
	ConstraintsByFamily map[string]int
	ConstraintsByName   map[string]int
	Equalities          int
	BilinearTerms       int
	Nonzeros            int
}

// Stats computes summary counts.
func (m *Model) Stats() Stats {
	s := Stats{
		Variables:           len(m.Variables),
		VariablesByDomain:   make(map[string]int),
		VariablesByFamily:   make(map[string]int),
		Constraints:         len(m.Constraints),
		ConstraintsByFamily: make(map[string]int),
		ConstraintsByName:   make(map[string]int),
	}
	for _, v := range m.Variables {
		s.VariablesByDomain[v.Domain.String()]++
		s.VariablesByFamily[v.Family]++
		if v.Domain == Binary {
			s.Binaries++
		}
	}
	for _, c := range m.Constraints {
		s.ConstraintsByFamily[c.Family]++
		s.ConstraintsByName[c.Name]++
		if c.Equality() {
			s.Equalities++
		}
		s.BilinearTerms += c.Body.BilinearTerms()
		s.Nonzeros += len(c.Body.Terms)
	}
	s.BilinearTerms += m.Objective.Expr.BilinearTerms()
	return s
}

// Rows returns the constraints of the given row name.
func (m *Model) Rows(name string) []Constraint {
	var out []Constraint
	for _, c := range m.Constraints {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
