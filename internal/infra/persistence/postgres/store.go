// Package postgres persists case bundles to Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"refinerycore/internal/dataset"
	"refinerycore/internal/infra/persistence/caserows"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var (
	_ dataset.Source = (*Store)(nil)
	_ dataset.Saver  = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/refinery?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var queries = caserows.Queries{
	Exists:       `SELECT case_id FROM cases WHERE case_id = $1`,
	UpsertCase:   `INSERT INTO cases(case_id,saved_at) VALUES($1,$2) ON CONFLICT(case_id) DO UPDATE SET saved_at=EXCLUDED.saved_at`,
	DeleteSets:   `DELETE FROM case_sets WHERE case_id = $1`,
	DeleteParams: `DELETE FROM case_params WHERE case_id = $1`,
	InsertSet:    `INSERT INTO case_sets(case_id,name,position,tuple) VALUES($1,$2,$3,$4)`,
	InsertParam:  `INSERT INTO case_params(case_id,name,position,key,value) VALUES($1,$2,$3,$4,$5)`,
	SelectSets:   `SELECT name, position, tuple::text FROM case_sets WHERE case_id = $1 ORDER BY name, position`,
	SelectParams: `SELECT name, position, key::text, value FROM case_params WHERE case_id = $1 ORDER BY name, position`,
	ListCases:    `SELECT case_id FROM cases ORDER BY case_id`,
}

// Store reads and writes case bundles in Postgres.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// DefaultDSN) and ensures the case tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range caserows.SplitStatements(caserows.PostgresDDL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Load implements dataset.Source.
func (s *Store) Load(ctx context.Context, caseID string) (*dataset.Store, error) {
	b, err := caserows.Read(ctx, s.db, queries, caseID)
	if err != nil {
		return nil, err
	}
	return dataset.NewStore(b)
}

// Save implements dataset.Saver. The case is replaced in one transaction.
func (s *Store) Save(ctx context.Context, b dataset.Bundle) error {
	if b.Case == "" {
		return fmt.Errorf("postgres: bundle has no case identifier")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := caserows.Write(ctx, tx, queries, b, s.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// List returns the stored case identifiers.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return caserows.List(ctx, s.db, queries)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
