package memory

import (
	"context"
	"errors"
	"testing"

	"refinerycore/internal/dataset"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.Save(ctx, *dataset.SampleBundle("case1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	ds, err := s.Load(ctx, "case1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.CaseID() != "case1" {
		t.Fatalf("case id: %s", ds.CaseID())
	}
	if got := ds.Param("c_P", "gasoline"); !got.Valid || got.Value != 900 {
		t.Fatalf("c_P[gasoline] = %v", got)
	}
}

func TestSavedBundleIsIsolatedFromCaller(t *testing.T) {
	ctx := context.Background()
	b := dataset.SampleBundle("case1")
	s := NewStore(*b)
	b.Sets["S"][0][0] = "mutated"
	b.Params["c_P"][0].Value = -1
	ds, err := s.Load(ctx, "case1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ds.Contains("S", "crude1") || ds.Contains("S", "mutated") {
		t.Fatalf("store shares set slices with the caller")
	}
	if got := ds.Param("c_P", "kero"); got.Value != 800 {
		t.Fatalf("store shares param slices with the caller: %v", got)
	}
}

func TestMissingCaseAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(*dataset.SampleBundle("case1"), *dataset.SampleBundle("case2"))
	if _, err := s.Load(ctx, "case9"); !errors.Is(err, dataset.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
	ids, err := s.List(ctx)
	if err != nil || len(ids) != 2 || ids[0] != "case1" || ids[1] != "case2" {
		t.Fatalf("list: %v %v", ids, err)
	}
	if err := s.Delete(ctx, "case1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "case1"); !errors.Is(err, dataset.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound on second delete, got %v", err)
	}
	if err := s.Save(ctx, dataset.Bundle{}); err == nil {
		t.Fatalf("expected error saving bundle without case")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStore(*dataset.SampleBundle("case1"))
	if _, err := s.Load(ctx, "case1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
