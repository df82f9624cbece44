package model

import (
	"errors"
	"fmt"

	"refinerycore/pkg/domain"
)

var (
	// ErrDuplicateVariable is returned when a (family, index) pair is declared twice.
	ErrDuplicateVariable = errors.New("model: variable declared twice")
	// ErrUndeclaredVariable is returned when a lookup misses the registry.
	ErrUndeclaredVariable = errors.New("model: undeclared variable")
	// ErrSealed is returned when declaring after the registry was sealed.
	ErrSealed = errors.New("model: registry sealed")
)

// Domain is the value domain of a variable.
type Domain int

const (
	NonNegative Domain = iota
	Free
	Binary
	Bounded
)

func (d Domain) String() string {
	switch d {
	case NonNegative:
		return "nonnegative"
	case Free:
		return "free"
	case Binary:
		return "binary"
	case Bounded:
		return "bounded"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// Variable is one declared decision variable.
type Variable struct {
	ID     VarID
	Family string
	Index  domain.Tuple
	Domain Domain
	Lower  domain.Optional
	Upper  domain.Optional
}

// Name renders the variable as Family[i,j,...].
func (v Variable) Name() string { return v.Family + v.Index.String() }

// Registry owns every variable of one build. It is written only during the
// declaration phase and becomes read-only once sealed.
type Registry struct {
	vars   []Variable
	lookup map[string]VarID
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{lookup: make(map[string]VarID)}
}

func registryKey(family string, idx domain.Tuple) string {
	return family + "\x1e" + idx.Key()
}

// Declare adds a variable with the bounds implied by its domain. Binary
// variables are bounded to [0,1], non-negative ones from below by zero.
func (r *Registry) Declare(family string, idx domain.Tuple, d Domain) (VarID, error) {
	switch d {
	case NonNegative:
		return r.DeclareBounded(family, idx, d, domain.Some(0), domain.None())
	case Binary:
		return r.DeclareBounded(family, idx, d, domain.Some(0), domain.Some(1))
	default:
		return r.DeclareBounded(family, idx, d, domain.None(), domain.None())
	}
}

// DeclareBounded adds a variable with explicit bounds.
func (r *Registry) DeclareBounded(family string, idx domain.Tuple, d Domain, lo, hi domain.Optional) (VarID, error) {
	if r.sealed {
		return NoVar, fmt.Errorf("%w: %s%s", ErrSealed, family, idx)
	}
	k := registryKey(family, idx)
	if _, dup := r.lookup[k]; dup {
		return NoVar, fmt.Errorf("%w: %s%s", ErrDuplicateVariable, family, idx)
	}
	id := VarID(len(r.vars))
	r.vars = append(r.vars, Variable{
		ID:     id,
		Family: family,
		Index:  append(domain.Tuple(nil), idx...),
		Domain: d,
		Lower:  lo,
		Upper:  hi,
	})
	r.lookup[k] = id
	return id, nil
}

// Lookup resolves a declared variable.
func (r *Registry) Lookup(family string, idx ...string) (VarID, error) {
	id, ok := r.lookup[registryKey(family, domain.Tuple(idx))]
	if !ok {
		return NoVar, fmt.Errorf("%w: %s%s", ErrUndeclaredVariable, family, domain.Tuple(idx))
	}
	return id, nil
}

// Has reports whether a variable is declared.
func (r *Registry) Has(family string, idx ...string) bool {
	_, ok := r.lookup[registryKey(family, domain.Tuple(idx))]
	return ok
}

// Seal makes the registry read-only.
func (r *Registry) Seal() { r.sealed = true }

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool { return r.sealed }

// Len returns the number of declared variables.
func (r *Registry) Len() int { return len(r.vars) }

// Var returns the variable with the given id.
func (r *Registry) Var(id VarID) Variable { return r.vars[id] }

// Variables returns a copy of all variables in declaration order.
func (r *Registry) Variables() []Variable {
	out := make([]Variable, len(r.vars))
	copy(out, r.vars)
	return out
}
