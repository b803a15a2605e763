package query

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
	"modernc.org/sqlite"
)

var (
	ErrEmptyTemplate = errors.New("template is empty")
	ErrNotPrepared   = errors.New("statement has not been prepared")
)

// LoadError reports a template resource that is missing, unreadable or empty.
type LoadError struct {
	Resource Resource
	Path     string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load template %s (%s): %v", e.Resource, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PrepareError reports a statement the driver refused to prepare, or one
// with placeholders left unresolved.
type PrepareError struct {
	Resource Resource
	Err      error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %s: %v", e.Resource, e.Err)
}

func (e *PrepareError) Unwrap() error { return e.Err }

// DriverError reports an execution failure. Code and Message carry the
// driver's native detail: the SQL Server error number, the PostgreSQL
// SQLSTATE or the SQLite result code.
type DriverError struct {
	Resource Resource
	Code     string
	Message  string
	Err      error
}

func (e *DriverError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("execute %s: %s (code %s)", e.Resource, e.Message, e.Code)
	}
	return fmt.Sprintf("execute %s: %s", e.Resource, e.Message)
}

func (e *DriverError) Unwrap() error { return e.Err }

// NewDriverError wraps err with the native detail of whichever driver raised it.
func NewDriverError(resource Resource, err error) *DriverError {
	code, message := driverDetail(err)
	return &DriverError{Resource: resource, Code: code, Message: message, Err: err}
}

func driverDetail(err error) (code, message string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return strconv.Itoa(int(msErr.Number)), msErr.Message
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(liteErr.Code()), liteErr.Error()
	}
	return "", err.Error()
}
