// Package sqlite persists case bundles to a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"refinerycore/internal/dataset"
	"refinerycore/internal/infra/persistence/caserows"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var (
	_ dataset.Source = (*Store)(nil)
	_ dataset.Saver  = (*Store)(nil)
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "refinery.db"

var queries = caserows.Queries{
	Exists:       `SELECT case_id FROM cases WHERE case_id = ?`,
	UpsertCase:   `INSERT INTO cases(case_id,saved_at) VALUES(?,?) ON CONFLICT(case_id) DO UPDATE SET saved_at=excluded.saved_at`,
	DeleteSets:   `DELETE FROM case_sets WHERE case_id = ?`,
	DeleteParams: `DELETE FROM case_params WHERE case_id = ?`,
	InsertSet:    `INSERT INTO case_sets(case_id,name,position,tuple) VALUES(?,?,?,?)`,
	InsertParam:  `INSERT INTO case_params(case_id,name,position,key,value) VALUES(?,?,?,?,?)`,
	SelectSets:   `SELECT name, position, tuple FROM case_sets WHERE case_id = ? ORDER BY name, position`,
	SelectParams: `SELECT name, position, key, value FROM case_params WHERE case_id = ? ORDER BY name, position`,
	ListCases:    `SELECT case_id FROM cases ORDER BY case_id`,
}

// Store reads and writes case bundles in a SQLite file.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the database at path and ensures the
// case tables exist.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range caserows.SplitStatements(caserows.SQLiteDDL) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create case tables: %w", err)
		}
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Load implements dataset.Source.
func (s *Store) Load(ctx context.Context, caseID string) (*dataset.Store, error) {
	b, err := caserows.Read(ctx, s.db, queries, caseID)
	if err != nil {
		return nil, err
	}
	return dataset.NewStore(b)
}

// Save implements dataset.Saver. The case is replaced atomically.
func (s *Store) Save(ctx context.Context, b dataset.Bundle) (retErr error) {
	if b.Case == "" {
		return fmt.Errorf("sqlite: bundle has no case identifier")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := caserows.Write(ctx, tx, queries, b, s.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns the stored case identifiers.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return caserows.List(ctx, s.db, queries)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
