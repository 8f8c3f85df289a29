package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var (
	// ErrIntegrityViolation marks a unique or foreign-key constraint breach.
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrStorageFailure marks any other database failure.
	ErrStorageFailure = errors.New("storage failure")
	// ErrInvalidPatch marks a patch naming an unknown field, nulling a
	// required field or carrying a value of the wrong shape.
	ErrInvalidPatch = errors.New("invalid patch")
	// ErrValidation marks an entity that breaks one of its own rules.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned by writes that target a missing row. Reads
	// report absence as a nil entity instead.
	ErrNotFound = errors.New("not found")
)

// Error describes a failed repository operation. It matches both its Kind
// sentinel and the underlying driver error through errors.Is/As.
type Error struct {
	Op         string
	Table      string
	Kind       error
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Kind)
	if e.Constraint != "" {
		msg += " on " + e.Constraint
	}
	return msg
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// IsIntegrity reports whether err is a constraint breach.
func IsIntegrity(err error) bool { return errors.Is(err, ErrIntegrityViolation) }

func classify(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, ErrInvalidPatch) || errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return err
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation, pgErrForeignKeyViolation:
			return &Error{Op: op, Table: table, Kind: ErrIntegrityViolation, Constraint: pgErr.ConstraintName, Err: err}
		}
	}
	return &Error{Op: op, Table: table, Kind: ErrStorageFailure, Err: err}
}

// classifyHook leaves errors raised by caller hooks untouched unless they
// come from the database.
func classifyHook(op, table string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := maybePgError(err); ok {
		return classify(op, table, err)
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func invalidPatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPatch, fmt.Sprintf(format, args...))
}
