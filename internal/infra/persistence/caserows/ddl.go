package caserows

import (
	"bufio"
	_ "embed"
	"strings"
)

// SQLiteDDL creates the case tables in SQLite.
//
//go:embed sql/sqlite.sql
var SQLiteDDL string

// PostgresDDL creates the case tables in PostgreSQL.
//
//go:embed sql/postgres.sql
var PostgresDDL string

// SplitStatements splits a semicolon-terminated DDL script into executable
// statements, dropping blank lines and "--" comment lines.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			current.Reset()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
