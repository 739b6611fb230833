// Package bencherrors contains generic errors returned by the benchmark harness.
//
// Callers should look for these types with errors.As rather than comparing messages, since most
// of them are wrapped with github.com/pkg/errors on the way up.
//
// If multiple errors occur in some function (e.g., several metrics fail independently), that
// function should return an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates those individual errors.
package bencherrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "metric" or "host"
	Value   string // Resource name, e.g., "log"
	Message string // An optional message to include in the error message
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "concurrency"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %s is invalid for field %q", quoteValue(err.Value), err.Name)
	} else {
		return fmt.Sprintf("value %s is invalid for field %q; %s", quoteValue(err.Value), err.Name, err.Message)
	}
}

// quoteValue quotes strings and prints everything else as-is.
func quoteValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return fmt.Sprintf("%q", s)
	case fmt.Stringer:
		return fmt.Sprintf("%q", s.String())
	}
	return fmt.Sprintf("%v", v)
}

// ErrMissingField is returned when a required key is absent from a summary file.
// There is no default substitution; the whole summary is rejected.
type ErrMissingField struct {
	Path  string // Summary file the key was looked up in
	Tag   string
	Field string // e.g. "Mean" or "99.900ptile"
}

func (err *ErrMissingField) Error() string {
	key := err.Field
	if err.Tag != "" {
		key = err.Tag + "." + err.Field
	}
	if err.Path == "" {
		return fmt.Sprintf("required field %q is missing", key)
	}
	return fmt.Sprintf("required field %q is missing from %s", key, err.Path)
}

// ErrMalformedLog is returned when a histogram log or summary file doesn't have the expected shape.
type ErrMalformedLog struct {
	Path    string
	Line    int // 1-based; 0 if unknown
	Message string
}

func (err *ErrMalformedLog) Error() string {
	if err.Line > 0 {
		return fmt.Sprintf("malformed file %s at line %d: %s", err.Path, err.Line, err.Message)
	}
	return fmt.Sprintf("malformed file %s: %s", err.Path, err.Message)
}

// ErrToolFailure is returned when an external command exits unsuccessfully.
// Tool failures are never retried.
type ErrToolFailure struct {
	Tool     string   // Logical name of the tool, e.g., "trim" or "ssh"
	Command  []string // Full argv of the failed command
	ExitCode int      // -1 if the process didn't exit normally
	Stderr   string   // Tail of the command's stderr, if captured
}

func (err *ErrToolFailure) Error() string {
	s := fmt.Sprintf("%s failed with exit code %d: %s", err.Tool, err.ExitCode, strings.Join(err.Command, " "))
	if err.Stderr != "" {
		s = s + fmt.Sprintf("; stderr: %s", strings.TrimSpace(err.Stderr))
	}
	return s
}

// IsNotFound returns true if some error in the chain of err is an ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

// IsMissingField returns true if some error in the chain of err is an ErrMissingField.
func IsMissingField(err error) bool {
	var e *ErrMissingField
	return errors.As(err, &e)
}

// IsToolFailure returns true if some error in the chain of err is an ErrToolFailure.
func IsToolFailure(err error) bool {
	var e *ErrToolFailure
	return errors.As(err, &e)
}
