package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInitialized is returned by validation calls made before a
// successful Initialise.
var ErrNotInitialized = errors.New("you must initialise")

// ErrorCodeSuffix is appended to the schema keyword to build errorCode values.
const ErrorCodeSuffix = ".openapi.validation"

// ErrorCode returns the machine-readable code for a schema keyword,
// e.g. "required" -> "required.openapi.validation".
func ErrorCode(keyword string) string {
	return keyword + ErrorCodeSuffix
}

// ConfigurationError is returned when a required option is missing or blank.
type ConfigurationError struct {
	Option string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("you must define the %s", e.Option)
}

// ArgumentError is returned when a per-call argument is missing or blank.
// It is raised before any network call is made.
type ArgumentError struct {
	Argument string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("you must define a %s", e.Argument)
}

// InitializationError is returned when the validation service could not be
// brought to a ready state.
type InitializationError struct {
	Reason string
	Err    error
}

func (e *InitializationError) Error() string {
	msg := "an error occurred while trying to initialise"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// AssertionError is returned by the assert entry points for an invalid result.
type AssertionError struct {
	Result *Result
}

func (e *AssertionError) Error() string {
	return "Response validation failed with the following errors: " + e.Result.Summary()
}

// SchemaError is returned by an Engine when the response does not conform.
type SchemaError struct {
	Violations []Violation
}

func (e *SchemaError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Path != "" {
			msgs = append(msgs, v.Path+": "+v.Message)
		} else {
			msgs = append(msgs, v.Message)
		}
	}
	return "response does not match the OpenAPI spec: " + strings.Join(msgs, "; ")
}
