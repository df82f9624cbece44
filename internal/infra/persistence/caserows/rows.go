// Package caserows flattens case bundles into the relational rows shared by the
// SQL-backed dataset stores and reassembles them on load.
package caserows

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"refinerycore/internal/dataset"
	"refinerycore/pkg/domain"
)

// EmptySet is the position recorded for a declared set without members.
const EmptySet = -1

// SetRow is one member of a named set. Tuple holds the JSON array encoding.
type SetRow struct {
	Name     string
	Position int
	Tuple    string
}

// ParamRow is one keyed parameter value. Key holds the JSON array encoding.
type ParamRow struct {
	Name     string
	Position int
	Key      string
	Value    float64
}

// Rows is the flattened form of one bundle.
type Rows struct {
	Sets   []SetRow
	Params []ParamRow
}

// Flatten converts a bundle into rows. Declared empty sets keep a marker row so
// that reloading preserves their presence.
func Flatten(b dataset.Bundle) (Rows, error) {
	var out Rows
	for _, name := range sortedNames(b.Sets) {
		tuples := b.Sets[name]
		if len(tuples) == 0 {
			out.Sets = append(out.Sets, SetRow{Name: name, Position: EmptySet, Tuple: "[]"})
			continue
		}
		for i, t := range tuples {
			raw, err := json.Marshal([]string(t))
			if err != nil {
				return Rows{}, fmt.Errorf("encode %s tuple %d: %w", name, i, err)
			}
			out.Sets = append(out.Sets, SetRow{Name: name, Position: i, Tuple: string(raw)})
		}
	}
	for _, name := range sortedNames(b.Params) {
		for i, e := range b.Params[name] {
			raw, err := json.Marshal([]string(e.Key))
			if err != nil {
				return Rows{}, fmt.Errorf("encode %s key %d: %w", name, i, err)
			}
			out.Params = append(out.Params, ParamRow{Name: name, Position: i, Key: string(raw), Value: e.Value})
		}
	}
	return out, nil
}

// Assemble rebuilds a bundle from rows. Rows may arrive in any order; members
// are placed by position.
func Assemble(caseID string, rows Rows) (dataset.Bundle, error) {
	b := dataset.NewBundle(caseID)
	sets := make(map[string]map[int]domain.Tuple)
	for _, r := range rows.Sets {
		if _, ok := sets[r.Name]; !ok {
			sets[r.Name] = make(map[int]domain.Tuple)
		}
		if r.Position == EmptySet {
			continue
		}
		if r.Position < 0 {
			return dataset.Bundle{}, fmt.Errorf("set %s: invalid position %d", r.Name, r.Position)
		}
		var t []string
		if err := json.Unmarshal([]byte(r.Tuple), &t); err != nil {
			return dataset.Bundle{}, fmt.Errorf("decode %s tuple %d: %w", r.Name, r.Position, err)
		}
		sets[r.Name][r.Position] = domain.Tuple(t)
	}
	for name, byPos := range sets {
		b.Sets[name] = ordered(byPos)
	}
	params := make(map[string]map[int]dataset.Entry)
	for _, r := range rows.Params {
		if r.Position < 0 {
			return dataset.Bundle{}, fmt.Errorf("param %s: invalid position %d", r.Name, r.Position)
		}
		var k []string
		if err := json.Unmarshal([]byte(r.Key), &k); err != nil {
			return dataset.Bundle{}, fmt.Errorf("decode %s key %d: %w", r.Name, r.Position, err)
		}
		if _, ok := params[r.Name]; !ok {
			params[r.Name] = make(map[int]dataset.Entry)
		}
		params[r.Name][r.Position] = dataset.Entry{Key: domain.Tuple(k), Value: r.Value}
	}
	for name, byPos := range params {
		b.Params[name] = ordered(byPos)
	}
	return *b, nil
}

func ordered[V any](byPos map[int]V) []V {
	out := make([]V, 0, len(byPos))
	for pos := 0; len(out) < len(byPos); pos++ {
		if v, ok := byPos[pos]; ok {
			out = append(out, v)
		}
	}
	return out
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Queries holds the dialect-specific statements a SQL store runs. Each
// statement takes the case identifier as its first argument.
type Queries struct {
	Exists       string
	UpsertCase   string
	DeleteSets   string
	DeleteParams string
	InsertSet    string
	InsertParam  string
	SelectSets   string
	SelectParams string
	ListCases    string
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Write replaces the rows of one case. Callers own the transaction.
func Write(ctx context.Context, tx Execer, q Queries, b dataset.Bundle, savedAt string) error {
	rows, err := Flatten(b)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q.UpsertCase, b.Case, savedAt); err != nil {
		return fmt.Errorf("upsert case %s: %w", b.Case, err)
	}
	if _, err := tx.ExecContext(ctx, q.DeleteSets, b.Case); err != nil {
		return fmt.Errorf("clear sets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q.DeleteParams, b.Case); err != nil {
		return fmt.Errorf("clear params: %w", err)
	}
	for _, r := range rows.Sets {
		if _, err := tx.ExecContext(ctx, q.InsertSet, b.Case, r.Name, r.Position, r.Tuple); err != nil {
			return fmt.Errorf("insert set %s: %w", r.Name, err)
		}
	}
	for _, r := range rows.Params {
		if _, err := tx.ExecContext(ctx, q.InsertParam, b.Case, r.Name, r.Position, r.Key, r.Value); err != nil {
			return fmt.Errorf("insert param %s: %w", r.Name, err)
		}
	}
	return nil
}

// Read loads the rows of one case and reassembles the bundle. A case with no
// catalogue entry reports dataset.ErrCaseNotFound.
func Read(ctx context.Context, db Querier, q Queries, caseID string) (dataset.Bundle, error) {
	found, err := exists(ctx, db, q, caseID)
	if err != nil {
		return dataset.Bundle{}, err
	}
	if !found {
		return dataset.Bundle{}, fmt.Errorf("%w: %s", dataset.ErrCaseNotFound, caseID)
	}
	var out Rows
	setRows, err := db.QueryContext(ctx, q.SelectSets, caseID)
	if err != nil {
		return dataset.Bundle{}, fmt.Errorf("select sets: %w", err)
	}
	defer func() { _ = setRows.Close() }()
	for setRows.Next() {
		var r SetRow
		if err := setRows.Scan(&r.Name, &r.Position, &r.Tuple); err != nil {
			return dataset.Bundle{}, fmt.Errorf("scan set: %w", err)
		}
		out.Sets = append(out.Sets, r)
	}
	if err := setRows.Err(); err != nil {
		return dataset.Bundle{}, fmt.Errorf("iterate sets: %w", err)
	}
	paramRows, err := db.QueryContext(ctx, q.SelectParams, caseID)
	if err != nil {
		return dataset.Bundle{}, fmt.Errorf("select params: %w", err)
	}
	defer func() { _ = paramRows.Close() }()
	for paramRows.Next() {
		var r ParamRow
		if err := paramRows.Scan(&r.Name, &r.Position, &r.Key, &r.Value); err != nil {
			return dataset.Bundle{}, fmt.Errorf("scan param: %w", err)
		}
		out.Params = append(out.Params, r)
	}
	if err := paramRows.Err(); err != nil {
		return dataset.Bundle{}, fmt.Errorf("iterate params: %w", err)
	}
	return Assemble(caseID, out)
}

func exists(ctx context.Context, db Querier, q Queries, caseID string) (bool, error) {
	rows, err := db.QueryContext(ctx, q.Exists, caseID)
	if err != nil {
		return false, fmt.Errorf("lookup case: %w", err)
	}
	defer func() { _ = rows.Close() }()
	found := rows.Next()
	return found, rows.Err()
}

// List returns the catalogued case identifiers.
func List(ctx context.Context, db Querier, q Queries) ([]string, error) {
	rows, err := db.QueryContext(ctx, q.ListCases)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
