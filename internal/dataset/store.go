// Package dataset holds the relational benchmark data of one planning case:
// named sets of index tuples and named partial parameter mappings.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"refinerycore/pkg/domain"
)

// ErrCaseNotFound is returned by sources that hold no data for a case.
var ErrCaseNotFound = errors.New("dataset: case not found")

// DefaultPeriod is the single period assumed when a case declares no T set.
const DefaultPeriod = "1"

// Source loads the relational data of a case.
type Source interface {
	Load(ctx context.Context, caseID string) (*Store, error)
}

// Saver persists a bundle so that a Source can later load it.
type Saver interface {
	Save(ctx context.Context, b Bundle) error
}

// Store is the immutable relational data of one case. Values are copied on
// construction and never exposed for mutation.
type Store struct {
	caseID  string
	sets    map[string][]domain.Tuple
	members map[string]map[string]struct{}
	params  map[string]map[string]float64
	keys    map[string][]domain.Tuple
	arity   map[string]int
}

// NewStore validates a bundle and freezes it into a Store. Non-finite values,
// mixed tuple arities and conflicting duplicate parameter keys are rejected.
func NewStore(b Bundle) (*Store, error) {
	s := &Store{
		caseID:  b.Case,
		sets:    make(map[string][]domain.Tuple, len(b.Sets)),
		members: make(map[string]map[string]struct{}, len(b.Sets)),
		params:  make(map[string]map[string]float64, len(b.Params)),
		keys:    make(map[string][]domain.Tuple, len(b.Params)),
		arity:   make(map[string]int, len(b.Params)),
	}
	for _, name := range sortedKeys(b.Sets) {
		if err := s.addSet(name, b.Sets[name]); err != nil {
			return nil, err
		}
	}
	for _, required := range []string{"S", "U"} {
		if _, ok := s.sets[required]; !ok {
			return nil, domain.DataError{Set: required, Reason: "primitive set missing"}
		}
	}
	if _, ok := s.sets["T"]; !ok {
		if err := s.addSet("T", []domain.Tuple{{DefaultPeriod}}); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(b.Params) {
		if err := s.addParam(name, b.Params[name]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) addSet(name string, tuples []domain.Tuple) error {
	out := make([]domain.Tuple, 0, len(tuples))
	seen := make(map[string]struct{}, len(tuples))
	arity := -1
	for _, t := range tuples {
		if len(t) == 0 {
			return domain.DataError{Set: name, Reason: "empty tuple"}
		}
		if arity == -1 {
			arity = len(t)
		} else if len(t) != arity {
			return domain.DataError{Set: name, Index: t, Reason: fmt.Sprintf("arity %d, expected %d", len(t), arity)}
		}
		k := t.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, append(domain.Tuple(nil), t...))
	}
	s.sets[name] = out
	s.members[name] = seen
	return nil
}

func (s *Store) addParam(name string, entries []Entry) error {
	values := make(map[string]float64, len(entries))
	keys := make([]domain.Tuple, 0, len(entries))
	arity := -1
	for _, e := range entries {
		if len(e.Key) == 0 {
			return domain.DataError{Param: name, Reason: "empty key"}
		}
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			return domain.DataError{Param: name, Index: e.Key, Reason: "non-finite value"}
		}
		if arity == -1 {
			arity = len(e.Key)
		} else if len(e.Key) != arity {
			return domain.DataError{Param: name, Index: e.Key, Reason: fmt.Sprintf("key arity %d, expected %d", len(e.Key), arity)}
		}
		k := e.Key.Key()
		if prev, dup := values[k]; dup {
			if prev != e.Value {
				return domain.DataError{Param: name, Index: e.Key, Reason: "conflicting duplicate key"}
			}
			continue
		}
		values[k] = e.Value
		keys = append(keys, append(domain.Tuple(nil), e.Key...))
	}
	s.params[name] = values
	s.keys[name] = keys
	s.arity[name] = arity
	return nil
}

// CaseID returns the case identifier the data was loaded for.
func (s *Store) CaseID() string { return s.caseID }

// HasSet reports whether the named set was declared (possibly empty).
func (s *Store) HasSet(name string) bool {
	_, ok := s.sets[name]
	return ok
}

// Set returns a copy of the named set in data order. Undeclared sets are empty.
func (s *Store) Set(name string) []domain.Tuple { return cloneTuples(s.sets[name]) }

// Elements returns the first element of every tuple of a flat set.
func (s *Store) Elements(name string) []string {
	src := s.sets[name]
	out := make([]string, 0, len(src))
	for _, t := range src {
		out = append(out, t[0])
	}
	return out
}

// Contains reports set membership of the tuple formed by elems.
func (s *Store) Contains(name string, elems ...string) bool {
	_, ok := s.members[name][domain.Tuple(elems).Key()]
	return ok
}

// Size returns the number of tuples in the named set.
func (s *Store) Size(name string) int { return len(s.sets[name]) }

// HasParam reports whether the named parameter carries any entry.
func (s *Store) HasParam(name string) bool { return len(s.params[name]) > 0 }

// Param looks up a parameter value. Absent keys, including keys of the wrong
// arity, yield an invalid Optional; they never default to zero.
func (s *Store) Param(name string, idx ...string) domain.Optional {
	v, ok := s.params[name][domain.Tuple(idx).Key()]
	if !ok {
		return domain.None()
	}
	return domain.Some(v)
}

// ParamKeys returns the keys of the named parameter in data order.
func (s *Store) ParamKeys(name string) []domain.Tuple { return cloneTuples(s.keys[name]) }

func cloneTuples(src []domain.Tuple) []domain.Tuple {
	out := make([]domain.Tuple, len(src))
	for i, t := range src {
		out[i] = append(domain.Tuple(nil), t...)
	}
	return out
}

// SetNames lists declared sets in lexical order.
func (s *Store) SetNames() []string { return sortedKeys(s.sets) }

// ParamNames lists declared parameters in lexical order.
func (s *Store) ParamNames() []string { return sortedKeys(s.params) }

// Bundle exports the store contents as a bundle suitable for persistence.
func (s *Store) Bundle() Bundle {
	b := Bundle{
		Case:   s.caseID,
		Sets:   make(map[string][]domain.Tuple, len(s.sets)),
		Params: make(map[string][]Entry, len(s.params)),
	}
	for name := range s.sets {
		b.Sets[name] = s.Set(name)
	}
	for name, keys := range s.keys {
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, Entry{Key: append(domain.Tuple(nil), k...), Value: s.params[name][k.Key()]})
		}
		b.Params[name] = entries
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
