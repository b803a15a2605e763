package database

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDatabase   = errors.New("database name is not known to the server")
	ErrUnresolvedID      = errors.New("database id has not been resolved")
	ErrNameMismatch      = errors.New("database id does not belong to the configured database name")
	ErrAlreadyTracked    = errors.New("database is already tracked")
	ErrNotTracked        = errors.New("database has no tracking record")
	ErrNotRegistered     = errors.New("database is not registered")
	ErrAlreadyRegistered = errors.New("database is already registered")
	ErrNotConnected      = errors.New("database connection is not established")
	ErrNoChanges         = errors.New("no log records since the last synchronised LSN")
)

// LogicError is raised when an operation is not allowed in the current state
// of a tracked database or session, as opposed to a failure reported by a
// driver.
type LogicError struct {
	Op  string
	Err error
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LogicError) Unwrap() error { return e.Err }

func logicError(op string, err error) error {
	return &LogicError{Op: op, Err: err}
}
