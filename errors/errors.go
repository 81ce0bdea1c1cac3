// Package errors provides error handling for mend.
//
// This package re-exports github.com/cockroachdb/errors so every package
// gets stack traces, wrapping, details and hints from a single import:
//
//	if err := store.ApplyUpdate(ctx, fix); err != nil {
//	    return errors.Wrap(err, "failed to apply fix")
//	}
//
// On top of the re-exports it defines the repair engine's error taxonomy.
// Classification uses errors.Mark so the original cause chain survives:
//
//	err = errors.MarkStorage(errors.Wrapf(err, "select tuple %d", tid))
//	errors.IsStorageError(err) // true
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New           = crdb.New
	Newf          = crdb.Newf
	Wrap          = crdb.Wrap
	Wrapf         = crdb.Wrapf
	WithStack     = crdb.WithStack
	WithMessage   = crdb.WithMessage
	WithMessagef  = crdb.WithMessagef
	Mark          = crdb.Mark
	CombineErrors = crdb.CombineErrors
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Assertions
var (
	AssertionFailedf    = crdb.AssertionFailedf
	IsAssertionFailure  = crdb.IsAssertionFailure
	HasAssertionFailure = crdb.HasAssertionFailure
)

// Sentinel errors for the repair engine.
// Use these with errors.Is() for type-safe error checking.
var (
	// ErrNotFound indicates the requested row or cell does not exist
	ErrNotFound = New("not found")

	// ErrInvalidInput indicates a malformed identifier or argument, rejected at construction
	ErrInvalidInput = New("invalid input")

	// ErrSolverInfeasible indicates a constraint set has no solution even after relaxation.
	// Callers skip the conflict cluster; it is never fatal to a session.
	ErrSolverInfeasible = New("solver infeasible")

	// ErrStorage marks any failed read or write against persisted tables
	ErrStorage = New("storage error")

	// ErrNoRowsUpdated indicates a write matched zero rows and must not be reported as success
	ErrNoRowsUpdated = New("no rows updated")

	// ErrClassifier marks prediction, training or update failures of a classifier
	ErrClassifier = New("classifier error")
)

// MarkStorage classifies err as a storage error. Nil stays nil.
func MarkStorage(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrStorage)
}

// MarkClassifier classifies err as a classifier error. Nil stays nil.
func MarkClassifier(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrClassifier)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidInputError checks if an error is or wraps ErrInvalidInput
func IsInvalidInputError(err error) bool {
	return err != nil && Is(err, ErrInvalidInput)
}

// IsSolverInfeasible checks if an error is or wraps ErrSolverInfeasible
func IsSolverInfeasible(err error) bool {
	return err != nil && Is(err, ErrSolverInfeasible)
}

// IsStorageError checks if an error was marked as a storage failure
func IsStorageError(err error) bool {
	return err != nil && Is(err, ErrStorage)
}

// IsClassifierError checks if an error was marked as a classifier failure
func IsClassifierError(err error) bool {
	return err != nil && Is(err, ErrClassifier)
}

// NewInvalidInputError creates an invalid-input error with a formatted message
func NewInvalidInputError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidInput, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
