package repo

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
)

// sentinel errors for the storage boundary
var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrLazyLoad            = errors.New("lazy load outside data-access scope")
	ErrVersionConflict     = errors.New("version conflict")
)

// ConstraintViolation describes a rejected write. It matches ErrConstraintViolation.
type ConstraintViolation struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConstraintViolation) Error() string {
	if e.Field == "" {
		return "constraint violation: " + e.Reason
	}
	return fmt.Sprintf("constraint violation on %s: %s", e.Field, e.Reason)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

func (e *ConstraintViolation) Is(target error) bool { return target == ErrConstraintViolation }

// LazyLoadError is returned when an association is resolved without an open Scope.
type LazyLoadError struct {
	Association string
}

func (e *LazyLoadError) Error() string {
	return fmt.Sprintf("cannot load %s: no active data-access scope", e.Association)
}

func (e *LazyLoadError) Is(target error) bool { return target == ErrLazyLoad }

// postgres SQLSTATE codes
const (
	codeUniqueViolation     = "23505"
	codeNotNullViolation    = "23502"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeStringTooLong       = "22001"
)

// translate maps driver errors onto the storage error taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeUniqueViolation:
			return &ConstraintViolation{Field: columnOf(pqErr), Reason: "already exists", Err: err}
		case codeNotNullViolation:
			return &ConstraintViolation{Field: pqErr.Column, Reason: "is required", Err: err}
		case codeStringTooLong:
			return &ConstraintViolation{Field: pqErr.Column, Reason: "value too long", Err: err}
		case codeForeignKeyViolation:
			return &ConstraintViolation{Field: columnOf(pqErr), Reason: "references a missing row", Err: err}
		case codeCheckViolation:
			return &ConstraintViolation{Field: pqErr.Column, Reason: "check failed", Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// columnOf guesses the column from a constraint name such as users_username_key.
func columnOf(e *pq.Error) string {
	if e.Column != "" {
		return e.Column
	}
	switch {
	case strings.Contains(e.Constraint, "username"):
		return "username"
	case strings.Contains(e.Constraint, "name"):
		return "name"
	case strings.Contains(e.Constraint, "user_id"):
		return "user_id"
	case strings.Contains(e.Constraint, "role_id"):
		return "role_id"
	}
	return e.Constraint
}

// validationError converts the first validator failure into a ConstraintViolation.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &ConstraintViolation{Reason: err.Error(), Err: err}
	}
	fe := ve[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return &ConstraintViolation{Field: field, Reason: "is required", Err: err}
	case "max":
		return &ConstraintViolation{Field: field, Reason: "longer than " + fe.Param() + " characters", Err: err}
	default:
		return &ConstraintViolation{Field: field, Reason: "failed " + fe.Tag(), Err: err}
	}
}

// result labels a finished operation for metrics.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConstraintViolation):
		return "constraint"
	case errors.Is(err, ErrVersionConflict):
		return "conflict"
	case errors.Is(err, ErrLazyLoad):
		return "lazy_load"
	default:
		return "error"
	}
}
