// Package errors provides error handling for the baseline runner.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping, hints and details, and adds the failure taxonomy used by
// the pipeline:
//
//	ErrInvalidMetadata  comment does not decode to a baseline definition (skip)
//	ErrQuery            extraction query failed (fail the baseline)
//	ErrExecution        the statistical module faulted (fail the baseline)
//	ErrPersist          writing results failed (fail the baseline)
//
// Usage:
//
//	if err := session.Insert(ctx, table, columns, rows, true); err != nil {
//	    return errors.Mark(errors.Wrapf(err, "insert into %s", table), errors.ErrPersist)
//	}
//
//	if errors.Is(err, errors.ErrPersist) {
//	    // handle persistence failure
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Pipeline failure taxonomy. Wrap the cause, then Mark it with one of these
// so errors.Is keeps working without losing the cause's message.
var (
	// ErrInvalidMetadata indicates a baseline comment that is not a usable definition
	ErrInvalidMetadata = New("invalid metadata")

	// ErrQuery indicates the log source extraction failed
	ErrQuery = New("query failed")

	// ErrExecution indicates the statistical module raised a fault
	ErrExecution = New("module execution failed")

	// ErrPersist indicates the result table could not be written
	ErrPersist = New("persist failed")
)

// Supporting sentinels
var (
	// ErrUnsafeTemplateValue indicates a required value that could alter module code structure
	ErrUnsafeTemplateValue = New("unsafe template value")

	// ErrModuleNotFound indicates no module source exists for a module name
	ErrModuleNotFound = New("module not found")

	// ErrUnknownBackend indicates no execution backend is registered under a name
	ErrUnknownBackend = New("unknown execution backend")

	// ErrInvalidIdentifier indicates a table or column name that is not a plain SQL identifier
	ErrInvalidIdentifier = New("invalid identifier")
)

// Kind names a taxonomy bucket for logging and run history.
type Kind string

const (
	KindNone            Kind = ""
	KindInvalidMetadata Kind = "invalid_metadata"
	KindQuery           Kind = "query"
	KindExecution       Kind = "execution"
	KindPersist         Kind = "persist"
	KindUnknown         Kind = "unknown"
)

// Classify maps an error onto the pipeline taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case Is(err, ErrInvalidMetadata), Is(err, ErrUnsafeTemplateValue), Is(err, ErrInvalidIdentifier):
		return KindInvalidMetadata
	case Is(err, ErrQuery):
		return KindQuery
	case Is(err, ErrExecution), Is(err, ErrModuleNotFound), Is(err, ErrUnknownBackend):
		return KindExecution
	case Is(err, ErrPersist):
		return KindPersist
	default:
		return KindUnknown
	}
}

// InvalidMetadataf creates an error marked as ErrInvalidMetadata
func InvalidMetadataf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidMetadata)
}
