package constraints

import (
	"refinerycore/internal/model"
	"refinerycore/pkg/domain"
)

// rows accumulates the constraints of one family. The first error sticks and
// turns later calls into no-ops, so generators check it once at the end.
type rows struct {
	ctx    *Context
	family string
	out    []model.Constraint
	err    error
}

func newRows(ctx *Context, family string) *rows {
	return &rows{ctx: ctx, family: family}
}

func (r *rows) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *rows) failed() bool { return r.err != nil }

// v resolves a declared variable.
func (r *rows) v(family string, idx ...string) model.Expr {
	if r.err != nil {
		return model.Expr{}
	}
	id, err := r.ctx.Vars.Lookup(family, idx...)
	if err != nil {
		r.fail(err)
		return model.Expr{}
	}
	return model.V(id)
}

// mul multiplies two expressions, recording a degree error.
func (r *rows) mul(a, b model.Expr) model.Expr {
	if r.err != nil {
		return model.Expr{}
	}
	p, err := a.Mul(b)
	if err != nil {
		r.fail(err)
		return model.Expr{}
	}
	return p
}

// batchSum is sum over streams of FVM[u,m,s,t].
func (r *rows) batchSum(family, u, m string, streams []string, t string) model.Expr {
	var e model.Expr
	for _, s := range streams {
		e = e.Plus(r.v(family, u, m, s, t))
	}
	return e
}

// streamSum is sum over streams of family[s,t].
func (r *rows) streamSum(family string, streams []string, t string) model.Expr {
	var e model.Expr
	for _, s := range streams {
		e = e.Plus(r.v(family, s, t))
	}
	return e
}

func (r *rows) add(c model.Constraint) {
	if r.err != nil {
		return
	}
	c.Family = r.family
	r.out = append(r.out, c)
}

func (r *rows) eq(name string, idx domain.Tuple, lhs, rhs model.Expr) {
	r.add(model.NewEq(name, idx, lhs, rhs))
}

func (r *rows) le(name string, idx domain.Tuple, lhs, rhs model.Expr) {
	r.add(model.NewLe(name, idx, lhs, rhs))
}

func (r *rows) ge(name string, idx domain.Tuple, lhs, rhs model.Expr) {
	r.add(model.NewGe(name, idx, lhs, rhs))
}

// between emits lo <= body <= hi when at least one bound is present.
func (r *rows) between(name string, idx domain.Tuple, lo domain.Optional, body model.Expr, hi domain.Optional) {
	if !lo.Valid && !hi.Valid {
		return
	}
	r.add(model.NewRange(name, idx, lo, body, hi))
}

func (r *rows) done() ([]model.Constraint, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.out, nil
}
