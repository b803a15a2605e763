package query

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"f0oster/dbtracker/metrics"
)

var identifierPlaceholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Preparer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Template is one statement loaded from a Store together with its pending
// value bindings and identifier substitutions. A Template is not safe for
// concurrent use.
type Template struct {
	resource Resource
	dialect  Dialect
	raw      string

	identifiers map[string]string
	values      map[string]any

	stmt   *sql.Stmt
	params []string
}

// Load reads resource id from the store.
func Load(store *Store, id Resource) (*Template, error) {
	raw, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	return &Template{
		resource:    id,
		dialect:     store.Dialect(),
		raw:         raw,
		identifiers: map[string]string{},
		values:      map[string]any{},
	}, nil
}

func (t *Template) Resource() Resource {
	return t.resource
}

// Bind sets the value for the @name placeholder. Values may be rebound after
// Prepare; they are read at execution.
func (t *Template) Bind(name string, value any) *Template {
	t.values[name] = value
	return t
}

// SubstituteIdentifier sets the text that replaces {{name}}. raw is quoted
// with the dialect's delimiters unless it is a plain identifier.
func (t *Template) SubstituteIdentifier(name, raw string) *Template {
	t.identifiers[name] = t.dialect.QuoteIdentifier(raw)
	return t
}

// Statement renders the text handed to the driver and the names of the value
// placeholders it references, in binding order.
func (t *Template) Statement() (string, []string, error) {
	var missing []string
	text := identifierPlaceholder.ReplaceAllStringFunc(t.raw, func(m string) string {
		name := m[2 : len(m)-2]
		sub, ok := t.identifiers[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return sub
	})
	if len(missing) > 0 {
		return "", nil, fmt.Errorf("no substitution for identifier placeholders %s", strings.Join(missing, ", "))
	}

	text, params := scanPlaceholders(text, t.dialect.OrdinalParams)
	return text, params, nil
}

// Prepare renders the statement and prepares it on conn. A previously
// prepared statement is closed first.
func (t *Template) Prepare(ctx context.Context, conn Preparer) error {
	if err := t.Close(); err != nil {
		return err
	}

	text, params, err := t.Statement()
	if err != nil {
		return &PrepareError{Resource: t.resource, Err: err}
	}
	stmt, err := conn.PrepareContext(ctx, text)
	if err != nil {
		return &PrepareError{Resource: t.resource, Err: err}
	}
	t.stmt = stmt
	t.params = params
	return nil
}

// args collects the bound values in placeholder order. Every placeholder
// needs a value by the time the statement runs.
func (t *Template) args() ([]any, error) {
	args := make([]any, 0, len(t.params))
	for _, name := range t.params {
		v, ok := t.values[name]
		if !ok {
			return nil, &PrepareError{Resource: t.resource, Err: fmt.Errorf("no value bound for @%s", name)}
		}
		if t.dialect.OrdinalParams {
			args = append(args, v)
		} else {
			args = append(args, sql.Named(name, v))
		}
	}
	return args, nil
}

// ExecuteSelect runs the prepared statement and materializes every row
// before returning.
func (t *Template) ExecuteSelect(ctx context.Context) (rs *ResultSet, err error) {
	if t.stmt == nil {
		return nil, &PrepareError{Resource: t.resource, Err: ErrNotPrepared}
	}
	args, err := t.args()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.ObserveQuery(string(t.resource), start, err) }()

	rows, err := t.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, NewDriverError(t.resource, err)
	}
	defer rows.Close()

	rs, err = materialize(rows)
	if err != nil {
		return nil, NewDriverError(t.resource, err)
	}
	return rs, nil
}

// ExecuteModify runs an insert, update, delete or DDL statement and returns
// the number of affected rows.
func (t *Template) ExecuteModify(ctx context.Context) (affected int64, err error) {
	if t.stmt == nil {
		return 0, &PrepareError{Resource: t.resource, Err: ErrNotPrepared}
	}
	args, err := t.args()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	defer func() { metrics.ObserveQuery(string(t.resource), start, err) }()

	res, err := t.stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, NewDriverError(t.resource, err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		// Some drivers cannot report a count for DDL.
		return 0, nil
	}
	return affected, nil
}

// Close releases the prepared statement, if any.
func (t *Template) Close() error {
	if t.stmt == nil {
		return nil
	}
	err := t.stmt.Close()
	t.stmt = nil
	t.params = nil
	return err
}

// Select prepares, executes and closes in one call.
func (t *Template) Select(ctx context.Context, conn Preparer) (*ResultSet, error) {
	if err := t.Prepare(ctx, conn); err != nil {
		return nil, err
	}
	defer t.Close()
	return t.ExecuteSelect(ctx)
}

// Modify prepares, executes and closes in one call.
func (t *Template) Modify(ctx context.Context, conn Preparer) (int64, error) {
	if err := t.Prepare(ctx, conn); err != nil {
		return 0, err
	}
	defer t.Close()
	return t.ExecuteModify(ctx)
}
