// Package errors provides error handling for lms-migrate.
//
// It re-exports github.com/cockroachdb/errors and adds the failure classes
// the migration engines distinguish between:
//
//	ErrParse          malformed top-level payload, fatal before any write
//	ErrNormalization  relationship value could not be decoded, recovered
//	ErrLookupMiss     referenced ID is not a live object of the expected kind, recovered
//	ErrWrite          object store rejected a create/update, recovered per entity
//	ErrInvariant      linked+orphaned counts do not add up, reported as a warning
//
// Classify an error with Mark and test it with Is:
//
//	return errors.Mark(errors.Wrap(err, "decode payload"), errors.ErrParse)
//	...
//	if errors.Is(err, errors.ErrParse) { ... }
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
	// CombineErrors returns the first non-nil error, carrying the second as
	// a secondary error.
	CombineErrors = crdb.CombineErrors
)

// User-facing hints and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	FlattenHints  = crdb.FlattenHints
	FlattenDetail = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

// Failure classes. They are used as marks, never returned bare.
var (
	ErrParse         = New("parse error")
	ErrNormalization = New("normalization failure")
	ErrLookupMiss    = New("lookup miss")
	ErrWrite         = New("write failure")
	ErrInvariant     = New("invariant violation")
)

// Class returns the failure class name of err, or "" when err carries no mark.
func Class(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrParse):
		return "parse"
	case Is(err, ErrNormalization):
		return "normalization"
	case Is(err, ErrLookupMiss):
		return "lookup_miss"
	case Is(err, ErrWrite):
		return "write"
	case Is(err, ErrInvariant):
		return "invariant"
	}
	return ""
}
