package logging

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Stacktrace is the field holding the stack trace of a logged error.
const Stacktrace = "stacktrace"

// Part of the stable interface of pkg/errors, though not exported by it.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace adds err to entry, together with the deepest stack trace recorded in its chain.
func WithStacktrace(entry *log.Entry, err error) *log.Entry {
	entry = entry.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		entry = entry.WithField(Stacktrace, stack)
	}
	return entry
}

// ExtractStack returns the stack trace recorded closest to where err originated,
// or nil if nothing in the chain recorded one.
func ExtractStack(err error) errors.StackTrace {
	var rv errors.StackTrace
	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			rv = tracer.StackTrace()
		}
		err = errors.Unwrap(err)
	}
	return rv
}
