// Package opngerr defines the error taxonomy shared by every stage of the
// optimizer pipeline: usage, I/O, format, warning and bug
// errors all propagate as a single sentinel-carrying type, threading
// github.com/pkg/errors.WithStack through every fallible call instead
// of inventing a parallel exception mechanism.
package opngerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure the way the orchestrator needs to: to decide
// whether to abort the whole run, skip one file, or exit with a specific
// sysexits-style code.
type Kind int

const (
	// KindUsage is a bad flag or contradictory option, caught before any
	// file is opened.
	KindUsage Kind = iota
	// KindIO is an open/read/write/rename failure.
	KindIO
	// KindFormat is an unrecognized signature or malformed/truncated input.
	KindFormat
	// KindWarning is a recoverable warning (bogus GIF data, a non-lethal
	// invalid chunk field) that only becomes fatal without -fix.
	KindWarning
	// KindBug is an internal invariant violation. There is no recovery;
	// the caller is expected to abort the process.
	KindBug
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindIO:
		return "io"
	case KindFormat:
		return "format"
	case KindWarning:
		return "warning"
	case KindBug:
		return "bug"
	default:
		return "unknown"
	}
}

// Error is the sentinel type threaded along every call chain in this
// module. It carries enough information for the session orchestrator (the
// only place that is allowed to map an error to a user message and an exit
// code) to decide what to do, without every intermediate package needing to
// know about exit codes.
type Error struct {
	Kind Kind
	File string // best-effort; empty if not file-specific
	msg  string
	err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.File, e.msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a new tagged error, attaching a stack trace for every
// error it originates.
func New(kind Kind, msg string) error {
	return errors.WithStack(&Error{Kind: kind, msg: msg})
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap tags an existing error with a kind, preserving it as the cause.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, msg: msg, err: err})
}

// Wrapf is Wrap with formatting.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	return Wrap(kind, err, fmt.Sprintf(format, args...))
}

// WithFile attaches a filename to an error produced by New/Wrap, returning
// a new error so callers keep using errors.As/errors.Is against the
// original.
func WithFile(err error, file string) error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		clone := *oe
		clone.File = file
		return errors.WithStack(&clone)
	}
	return errors.WithStack(&Error{Kind: KindBug, File: file, msg: err.Error(), err: err})
}

// KindOf extracts the Kind of err, defaulting to KindBug when err does not
// carry one (an untagged error reaching the orchestrator is itself a sign
// something upstream forgot to classify it).
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindBug
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}
