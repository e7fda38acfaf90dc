// Package diag provides the session's diagnostic sink: a handle passed
// explicitly to every collaborator that needs to report a recoverable
// warning, replacing the two function-pointer globals (GIFError/GIFWarning,
// pnm_error, minitiff's error_handler) that the C sources relied on.
//
// There is exactly one severity threshold per session — a logging sink
// with a single severity threshold — but it lives on the
// Sink value the orchestrator owns, not on a package-level variable.
package diag

import (
	"fmt"

	"go.uber.org/zap"
)

// Sink is the diagnostic handle threaded through the importer, reducer and
// transformer. It is never a package-level global: each session owns one.
type Sink struct {
	log      *zap.Logger
	warnings []string
}

// NewSink wraps an existing *zap.Logger. Passing nil yields a no-op sink.
func NewSink(log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{log: log}
}

// Warn records a recoverable warning:
// logged immediately, and also remembered so the orchestrator can decide
// at decision time whether the file must be rejected.
func (s *Sink) Warn(format string, args ...interface{}) {
	msg := sprintf(format, args...)
	s.warnings = append(s.warnings, msg)
	s.log.Warn(msg)
}

// Info logs a non-warning progress message (status reporting is a
// collaborator concern, but the hook still needs to exist so the
// orchestrator can use it without a global).
func (s *Sink) Info(format string, args ...interface{}) {
	s.log.Info(sprintf(format, args...))
}

// Warnings returns every warning recorded so far. The orchestrator checks
// len(Warnings()) > 0 to decide HAS_ERRORS/HAS_JUNK style flags.
func (s *Sink) Warnings() []string {
	return s.warnings
}

// Reset clears accumulated warnings between files in a multi-file run.
func (s *Sink) Reset() {
	s.warnings = s.warnings[:0]
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
