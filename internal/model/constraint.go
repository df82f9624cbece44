package model

import (
	"fmt"

	"refinerycore/pkg/domain"
)

// Constraint is the row Lower <= Body <= Upper. Equalities carry equal bounds.
// Body never holds a constant; NewRange folds it into the bounds.
type Constraint struct {
	Family string
	Name   string
	Index  domain.Tuple
	Body   Expr
	Lower  domain.Optional
	Upper  domain.Optional
}

// NewRange builds lo <= body <= hi with the body simplified and its constant
// moved into the bounds.
func NewRange(name string, idx domain.Tuple, lo domain.Optional, body Expr, hi domain.Optional) Constraint {
	body = body.Simplify()
	c := body.Constant
	body.Constant = 0
	if lo.Valid {
		lo.Value -= c
	}
	if hi.Valid {
		hi.Value -= c
	}
	return Constraint{Name: name, Index: append(domain.Tuple(nil), idx...), Body: body, Lower: lo, Upper: hi}
}

// NewEq builds lhs = rhs.
func NewEq(name string, idx domain.Tuple, lhs, rhs Expr) Constraint {
	return NewRange(name, idx, domain.Some(0), lhs.Minus(rhs), domain.Some(0))
}

// NewLe builds lhs <= rhs.
func NewLe(name string, idx domain.Tuple, lhs, rhs Expr) Constraint {
	return NewRange(name, idx, domain.None(), lhs.Minus(rhs), domain.Some(0))
}

// NewGe builds lhs >= rhs.
func NewGe(name string, idx domain.Tuple, lhs, rhs Expr) Constraint {
	return NewRange(name, idx, domain.Some(0), lhs.Minus(rhs), domain.None())
}

// Equality reports whether both bounds are present and equal.
func (c Constraint) Equality() bool {
	return c.Lower.Valid && c.Upper.Valid && c.Lower.Value == c.Upper.Value
}

// Label renders the row as name[i,j,...].
func (c Constraint) Label() string { return c.Name + c.Index.String() }

// Violation returns by how much x violates the row, zero when satisfied.
func (c Constraint) Violation(x []float64) float64 {
	v := c.Body.Eval(x)
	switch {
	case c.Lower.Valid && v < c.Lower.Value:
		return c.Lower.Value - v
	case c.Upper.Valid && v > c.Upper.Value:
		return v - c.Upper.Value
	default:
		return 0
	}
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s: %s <= body <= %s", c.Label(), c.Lower, c.Upper)
}
