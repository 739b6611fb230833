package bencherrors

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"ErrNotFound": {
			&ErrNotFound{Type: "metric", Value: "log"},
			`resource "log" of type "metric" does not exist`,
		},
		"ErrNotFound with message": {
			&ErrNotFound{Value: "log", Message: "no raw files"},
			`resource "log" does not exist; no raw files`,
		},
		"ErrInvalidArgument": {
			&ErrInvalidArgument{Name: "concurrency", Value: "0", Message: "must be positive"},
			`value "0" is invalid for field "concurrency"; must be positive`,
		},
		"ErrInvalidArgument with number": {
			&ErrInvalidArgument{Name: "Window.Start", Value: -1.5},
			`value -1.5 is invalid for field "Window.Start"`,
		},
		"ErrMissingField": {
			&ErrMissingField{Path: "log.trimmed-summary.txt", Tag: "WRITE-st", Field: "Mean"},
			`required field "WRITE-st.Mean" is missing from log.trimmed-summary.txt`,
		},
		"ErrMalformedLog": {
			&ErrMalformedLog{Path: "a/log.hdr", Line: 7, Message: "expected 5 columns"},
			"malformed file a/log.hdr at line 7: expected 5 columns",
		},
		"ErrToolFailure": {
			&ErrToolFailure{Tool: "union", Command: []string{"java", "-cp", "x.jar"}, ExitCode: 3, Stderr: "boom\n"},
			"union failed with exit code 3: java -cp x.jar; stderr: boom",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestIsHelpers(t *testing.T) {
	notFound := errors.WithMessage(&ErrNotFound{Value: "log"}, "processing metric")
	missing := errors.WithStack(&ErrMissingField{Tag: "READ-st", Field: "Mean"})
	tool := errors.Wrap(&ErrToolFailure{Tool: "trim"}, "trim stage")

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(missing))
	assert.True(t, IsMissingField(missing))
	assert.False(t, IsMissingField(tool))
	assert.True(t, IsToolFailure(tool))
	assert.False(t, IsToolFailure(nil))
}

func TestIsHelpers_MultiError(t *testing.T) {
	var result *multierror.Error
	result = multierror.Append(result, errors.New("foo"))
	result = multierror.Append(result, errors.WithStack(&ErrToolFailure{Tool: "union"}))
	assert.True(t, IsToolFailure(result.ErrorOrNil()))
	assert.False(t, IsNotFound(result.ErrorOrNil()))
}
