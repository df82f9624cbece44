// Package model holds the algebraic representation of an assembled planning
// problem: typed variables, polynomial expressions of degree at most two,
// ranged constraint rows and the objective.
package model

import (
	"errors"
	"sort"
)

// VarID identifies a declared variable. IDs are dense and start at zero.
type VarID int

// NoVar marks the absent second factor of a linear term.
const NoVar VarID = -1

// ErrDegree is returned when a product would exceed degree two.
var ErrDegree = errors.New("model: expression degree exceeds two")

// Term is Coef*A for linear terms and Coef*A*B for bilinear ones.
type Term struct {
	Coef float64
	A    VarID
	B    VarID
}

// Bilinear reports whether the term is a product of two variables.
func (t Term) Bilinear() bool { return t.B != NoVar }

// Expr is a sum of terms plus a constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// V returns the expression 1*id.
func V(id VarID) Expr { return Expr{Terms: []Term{{Coef: 1, A: id, B: NoVar}}} }

// C returns a constant expression.
func C(c float64) Expr { return Expr{Constant: c} }

// Sum returns the linear expression id1 + id2 + ...
func Sum(ids ...VarID) Expr {
	e := Expr{Terms: make([]Term, 0, len(ids))}
	for _, id := range ids {
		e.Terms = append(e.Terms, Term{Coef: 1, A: id, B: NoVar})
	}
	return e
}

// Product returns coef*a*b.
func Product(coef float64, a, b VarID) Expr {
	return Expr{Terms: []Term{{Coef: coef, A: a, B: b}}}
}

// Plus returns e + o.
func (e Expr) Plus(o Expr) Expr {
	out := Expr{Terms: make([]Term, 0, len(e.Terms)+len(o.Terms)), Constant: e.Constant + o.Constant}
	out.Terms = append(out.Terms, e.Terms...)
	out.Terms = append(out.Terms, o.Terms...)
	return out
}

// Minus returns e - o.
func (e Expr) Minus(o Expr) Expr { return e.Plus(o.Scale(-1)) }

// Scale returns c*e.
func (e Expr) Scale(c float64) Expr {
	out := Expr{Terms: make([]Term, len(e.Terms)), Constant: e.Constant * c}
	for i, t := range e.Terms {
		t.Coef *= c
		out.Terms[i] = t
	}
	return out
}

// Degree returns 0 for constants, 1 for linear and 2 for bilinear expressions.
func (e Expr) Degree() int {
	d := 0
	for _, t := range e.Terms {
		if t.Coef == 0 {
			continue
		}
		if t.Bilinear() {
			return 2
		}
		d = 1
	}
	return d
}

// Mul returns e*o. It fails with ErrDegree when the product is not at most
// quadratic.
func (e Expr) Mul(o Expr) (Expr, error) {
	if e.Degree()+o.Degree() > 2 {
		return Expr{}, ErrDegree
	}
	out := Expr{Constant: e.Constant * o.Constant}
	for _, t := range e.Terms {
		if o.Constant != 0 {
			out.Terms = append(out.Terms, Term{Coef: t.Coef * o.Constant, A: t.A, B: t.B})
		}
	}
	for _, t := range o.Terms {
		if e.Constant != 0 {
			out.Terms = append(out.Terms, Term{Coef: t.Coef * e.Constant, A: t.A, B: t.B})
		}
	}
	for _, a := range e.Terms {
		if a.Bilinear() {
			continue
		}
		for _, b := range o.Terms {
			if b.Bilinear() {
				continue
			}
			out.Terms = append(out.Terms, Term{Coef: a.Coef * b.Coef, A: a.A, B: b.A})
		}
	}
	return out, nil
}

// Simplify merges like terms, orders factors so that A <= B, drops zero
// coefficients and sorts terms. The result is canonical for equal polynomials.
func (e Expr) Simplify() Expr {
	type key struct{ a, b VarID }
	acc := make(map[key]float64, len(e.Terms))
	order := make([]key, 0, len(e.Terms))
	for _, t := range e.Terms {
		k := key{t.A, t.B}
		if k.b != NoVar && k.b < k.a {
			k.a, k.b = k.b, k.a
		}
		if _, seen := acc[k]; !seen {
			order = append(order, k)
		}
		acc[k] += t.Coef
	}
	out := Expr{Constant: e.Constant, Terms: make([]Term, 0, len(order))}
	for _, k := range order {
		if c := acc[k]; c != 0 {
			out.Terms = append(out.Terms, Term{Coef: c, A: k.a, B: k.b})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool {
		ti, tj := out.Terms[i], out.Terms[j]
		if ti.Bilinear() != tj.Bilinear() {
			return !ti.Bilinear()
		}
		if ti.A != tj.A {
			return ti.A < tj.A
		}
		return ti.B < tj.B
	})
	return out
}

// Eval evaluates e at x, where x is indexed by VarID.
func (e Expr) Eval(x []float64) float64 {
	v := e.Constant
	for _, t := range e.Terms {
		p := t.Coef * x[t.A]
		if t.Bilinear() {
			p *= x[t.B]
		}
		v += p
	}
	return v
}

// Vars returns the distinct variables referenced by e in ascending order.
func (e Expr) Vars() []VarID {
	seen := make(map[VarID]struct{}, 2*len(e.Terms))
	for _, t := range e.Terms {
		seen[t.A] = struct{}{}
		if t.Bilinear() {
			seen[t.B] = struct{}{}
		}
	}
	out := make([]VarID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BilinearTerms counts bilinear terms.
func (e Expr) BilinearTerms() int {
	n := 0
	for _, t := range e.Terms {
		if t.Bilinear() {
			n++
		}
	}
	return n
}
