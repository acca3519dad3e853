// Package errors holds the error conditions raised by the streaming core.
// Callers match them with [errors.Is]; the wrapped message names the
// offending entity.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicated is returned when a catalog entry or stream registry
	// identifier already exists.
	ErrDuplicated = errors.New("duplicated entity")

	// ErrNotFound is returned when a table, column or stream does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnresolvedColumn signals a malformed plan: a column reference could
	// not be located in the schema of the operator it runs under.
	ErrUnresolvedColumn = errors.New("unresolved column")

	// ErrUnsupportedPlanNode is returned when the plan compiler has no
	// streaming operator for a node kind.
	ErrUnsupportedPlanNode = errors.New("unsupported plan node")

	// ErrConnectorConfig is returned for missing or malformed connector
	// settings.
	ErrConnectorConfig = errors.New("connector configuration error")

	// ErrInternal is returned when compilation hits an invariant violation
	// it did not anticipate.
	ErrInternal = errors.New("internal error")

	// ErrType is returned when an operator is applied to operands of a type
	// it does not accept.
	ErrType = errors.New("type error")

	// ErrNotImplemented is returned for statements the engine parses but
	// cannot execute.
	ErrNotImplemented = errors.New("not implemented")
)

// Duplicated returns an [ErrDuplicated] error for the named entity.
func Duplicated(kind, name string) error {
	return fmt.Errorf("%w: %s %q already exists", ErrDuplicated, kind, name)
}

// NotFound returns an [ErrNotFound] error for the named entity.
func NotFound(kind, name string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
}
