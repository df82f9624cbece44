// Package memory provides an in-memory dataset store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"refinerycore/internal/dataset"
	"refinerycore/pkg/domain"
)

var (
	_ dataset.Source = (*Store)(nil)
	_ dataset.Saver  = (*Store)(nil)
)

// Store keeps case bundles keyed by case identifier. Bundles are copied on the
// way in and out so callers never share slices with the store.
type Store struct {
	mu    sync.RWMutex
	cases map[string]dataset.Bundle
}

// NewStore returns an empty store, optionally seeded with bundles.
func NewStore(seed ...dataset.Bundle) *Store {
	s := &Store{cases: make(map[string]dataset.Bundle, len(seed))}
	for _, b := range seed {
		s.cases[b.Case] = cloneBundle(b)
	}
	return s
}

// Load implements dataset.Source.
func (s *Store) Load(ctx context.Context, caseID string) (*dataset.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	b, ok := s.cases[caseID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", dataset.ErrCaseNotFound, caseID)
	}
	return dataset.NewStore(cloneBundle(b))
}

// Save implements dataset.Saver. Saving an existing case replaces it.
func (s *Store) Save(ctx context.Context, b dataset.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Case == "" {
		return fmt.Errorf("memory: bundle has no case identifier")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[b.Case] = cloneBundle(b)
	return nil
}

// List returns the stored case identifiers in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.cases))
	for id := range s.cases {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes a case. Missing cases report dataset.ErrCaseNotFound.
func (s *Store) Delete(ctx context.Context, caseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[caseID]; !ok {
		return fmt.Errorf("%w: %s", dataset.ErrCaseNotFound, caseID)
	}
	delete(s.cases, caseID)
	return nil
}

func cloneBundle(b dataset.Bundle) dataset.Bundle {
	out := dataset.Bundle{
		Case:   b.Case,
		Sets:   make(map[string][]domain.Tuple, len(b.Sets)),
		Params: make(map[string][]dataset.Entry, len(b.Params)),
	}
	for name, tuples := range b.Sets {
		cp := make([]domain.Tuple, len(tuples))
		for i, t := range tuples {
			cp[i] = append(domain.Tuple(nil), t...)
		}
		out.Sets[name] = cp
	}
	for name, entries := range b.Params {
		cp := make([]dataset.Entry, len(entries))
		for i, e := range entries {
			cp[i] = dataset.Entry{Key: append(domain.Tuple(nil), e.Key...), Value: e.Value}
		}
		out.Params[name] = cp
	}
	return out
}
