// Package testutil provides an in-memory database/sql connection that
// understands the statements issued by the postgres case store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Row is one stored row keyed by lower-case column name.
type Row map[string]driver.Value

// Conn records statements and keeps inserted rows per table. Fail injects
// errors: the keys "ping", "begin" and "commit" fail those calls, a table
// name fails every insert into or select from that table.
type Conn struct {
	Statements []string
	Tables     map[string][]Row
	Fail       map[string]error
}

// Open returns a sql.DB whose connections all resolve to one Conn.
func Open() (*sql.DB, *Conn) {
	c := &Conn{Tables: make(map[string][]Row), Fail: make(map[string]error)}
	return sql.OpenDB(connector{c}), c
}

// Created lists the tables named by CREATE TABLE statements, in order.
func (c *Conn) Created() []string {
	var out []string
	for _, stmt := range c.Statements {
		if m := createStmt.FindStringSubmatch(stmt); m != nil {
			out = append(out, strings.ToLower(m[1]))
		}
	}
	return out
}

var (
	createStmt   = regexp.MustCompile(`(?is)^\s*CREATE TABLE (?:IF NOT EXISTS )?(\w+)`)
	insertStmt   = regexp.MustCompile(`(?is)^\s*INSERT INTO (\w+)\s*\(([^)]*)\)`)
	conflictStmt = regexp.MustCompile(`(?i)ON CONFLICT\s*\((\w+)\)`)
	deleteStmt   = regexp.MustCompile(`(?is)^\s*DELETE FROM (\w+) WHERE (\w+)\s*=\s*\$1\s*$`)
	selectStmt   = regexp.MustCompile(`(?is)^\s*SELECT (.+?) FROM (\w+)(?: WHERE (\w+)\s*=\s*\$1)?(?: ORDER BY [^;]*)?\s*$`)
)

type connector struct{ c *Conn }

func (k connector) Connect(context.Context) (driver.Conn, error) { return k.c, nil }
func (k connector) Driver() driver.Driver                        { return stubDriver{k.c} }

type stubDriver struct{ c *Conn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.c, nil }

func (c *Conn) fail(key string) error { return c.Fail[key] }

// Prepare implements driver.Conn; every statement goes through the
// ExecerContext and QueryerContext paths instead.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("stub: prepare not supported: %s", query)
}

// Close implements driver.Conn.
func (c *Conn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *Conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if err := c.fail("begin"); err != nil {
		return nil, err
	}
	return tx{c}, nil
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(context.Context) error { return c.fail("ping") }

// ExecContext implements driver.ExecerContext.
func (c *Conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Statements = append(c.Statements, query)
	if createStmt.MatchString(query) {
		return driver.RowsAffected(0), nil
	}
	if m := insertStmt.FindStringSubmatch(query); m != nil {
		return c.insert(strings.ToLower(m[1]), columns(m[2]), query, args)
	}
	if m := deleteStmt.FindStringSubmatch(query); m != nil {
		if len(args) != 1 {
			return nil, fmt.Errorf("stub: delete wants one argument, got %d", len(args))
		}
		table, col := strings.ToLower(m[1]), strings.ToLower(m[2])
		kept := c.Tables[table][:0]
		for _, row := range c.Tables[table] {
			if row[col] != args[0].Value {
				kept = append(kept, row)
			}
		}
		n := len(c.Tables[table]) - len(kept)
		c.Tables[table] = kept
		return driver.RowsAffected(n), nil
	}
	return nil, fmt.Errorf("stub: unsupported statement: %s", query)
}

// insert appends a row; with ON CONFLICT(col) the row replaces any row
// holding the same col value.
func (c *Conn) insert(table string, cols []string, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.fail(table); err != nil {
		return nil, err
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %d columns but %d arguments for %s", len(cols), len(args), table)
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if m := conflictStmt.FindStringSubmatch(query); m != nil {
		key := strings.ToLower(m[1])
		for i, existing := range c.Tables[table] {
			if existing[key] == row[key] {
				c.Tables[table][i] = row
				return driver.RowsAffected(1), nil
			}
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext. Rows come back in insertion
// order; ORDER BY clauses are accepted and ignored.
func (c *Conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	m := selectStmt.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("stub: unsupported query: %s", query)
	}
	table, where := strings.ToLower(m[2]), strings.ToLower(m[3])
	if err := c.fail(table); err != nil {
		return nil, err
	}
	if where != "" && len(args) != 1 {
		return nil, fmt.Errorf("stub: filter on %s wants one argument, got %d", where, len(args))
	}
	cols := columns(m[1])
	out := &rows{cols: cols}
	for _, row := range c.Tables[table] {
		if where != "" && row[where] != args[0].Value {
			continue
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.data = append(out.data, vals)
	}
	return out, nil
}

// columns splits a column list, dropping ::type casts.
func columns(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if cast := strings.Index(p, "::"); cast >= 0 {
			p = p[:cast]
		}
		out[i] = p
	}
	return out
}

type tx struct{ c *Conn }

func (t tx) Commit() error   { return t.c.fail("commit") }
func (t tx) Rollback() error { return nil }

type rows struct {
	cols []string
	data [][]driver.Value
	next int
}

func (r *rows) Columns() []string { return r.cols }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.next])
	r.next++
	return nil
}

// ErrInjected is a ready-made error for Fail entries.
var ErrInjected = errors.New("stub: injected failure")
