// Package query loads parametrized SQL statements from a template store, binds
// values through the driver, substitutes identifiers textually and materializes
// results.
package query

import (
	"fmt"
	"strings"
	"unicode"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// Dialect describes how one database engine expects parameters and
// delimited identifiers.
type Dialect struct {
	Name       string
	DriverName string

	// OrdinalParams is set for drivers that cannot bind named parameters;
	// @name placeholders are rewritten to $1..$n before preparation.
	OrdinalParams bool

	// SingleConn limits the pool to one connection (in-process engines).
	SingleConn bool

	openQuote  string
	closeQuote string
}

var (
	SQLServer = Dialect{Name: "sqlserver", DriverName: "sqlserver", openQuote: "[", closeQuote: "]"}
	Postgres  = Dialect{Name: "postgres", DriverName: "pgx", OrdinalParams: true, openQuote: `"`, closeQuote: `"`}
	SQLite    = Dialect{Name: "sqlite", DriverName: "sqlite", SingleConn: true, openQuote: "[", closeQuote: "]"}
)

var dialects = map[string]Dialect{
	SQLServer.Name: SQLServer,
	"mssql":        SQLServer,
	Postgres.Name:  Postgres,
	"pgx":          Postgres,
	SQLite.Name:    SQLite,
}

// DialectByName resolves a configured dialect name.
func DialectByName(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Dialect{}, fmt.Errorf("unknown SQL dialect %q", name)
	}
	return d, nil
}

func (d Dialect) String() string {
	return d.Name
}

// QuoteIdentifier returns raw unchanged when it consists only of letters,
// digits and underscores. Anything else is wrapped in the dialect's
// delimiters, with embedded closing delimiters doubled.
func (d Dialect) QuoteIdentifier(raw string) string {
	if isPlainIdentifier(raw) {
		return raw
	}
	escaped := strings.ReplaceAll(raw, d.closeQuote, d.closeQuote+d.closeQuote)
	return d.openQuote + escaped + d.closeQuote
}

func isPlainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
