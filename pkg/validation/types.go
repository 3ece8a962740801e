package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Request describes one HTTP response to validate, together with the
// method and path of the request that produced it.
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	// JSON is the response body. Nil means the response had no body.
	JSON json.RawMessage `json:"json,omitempty"`
}

// NormalizedPath returns the request path with a leading slash.
func (r *Request) NormalizedPath() string {
	if !strings.HasPrefix(r.Path, "/") {
		return "/" + r.Path
	}
	return r.Path
}

// Violation is a structured validation error.
// Path and ErrorCode are empty for plain-message entries.
type Violation struct {
	Path      string `json:"path,omitempty"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// ErrorEntry is either a structured Violation or a plain diagnostic message.
// Exactly one of the two is set.
type ErrorEntry struct {
	Violation *Violation
	Message   string
}

// ViolationEntry wraps a Violation as an ErrorEntry.
func ViolationEntry(v Violation) ErrorEntry {
	return ErrorEntry{Violation: &v}
}

// MessageEntry wraps a diagnostic string as an ErrorEntry.
func MessageEntry(msg string) ErrorEntry {
	return ErrorEntry{Message: msg}
}

// IsViolation reports whether the entry carries a structured violation.
func (e ErrorEntry) IsViolation() bool {
	return e.Violation != nil
}

// String renders violations as compact JSON and messages verbatim.
func (e ErrorEntry) String() string {
	if e.Violation == nil {
		return e.Message
	}
	data, err := json.Marshal(e.Violation)
	if err != nil {
		return e.Violation.Message
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler.
func (e ErrorEntry) MarshalJSON() ([]byte, error) {
	if e.Violation != nil {
		return json.Marshal(e.Violation)
	}
	return json.Marshal(e.Message)
}

// UnmarshalJSON accepts either a JSON string or a violation object.
// Any other JSON value is kept as its raw text.
func (e *ErrorEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty error entry")
	}
	switch data[0] {
	case '"':
		var msg string
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		*e = MessageEntry(msg)
	case '{':
		var v Violation
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = ViolationEntry(v)
	default:
		*e = MessageEntry(string(data))
	}
	return nil
}

// Result is the outcome of validating one response.
// Valid is true iff Errors is empty.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []ErrorEntry `json:"errors"`
}

// ValidResult returns a passing result.
func ValidResult() *Result {
	return &Result{Valid: true, Errors: []ErrorEntry{}}
}

// FailedResult returns a result holding the given entries.
func FailedResult(entries ...ErrorEntry) *Result {
	r := &Result{Errors: []ErrorEntry{}}
	for _, e := range entries {
		r.AddError(e)
	}
	if len(r.Errors) == 0 {
		r.Valid = true
	}
	return r
}

// AddError appends an entry and marks the result invalid.
func (r *Result) AddError(e ErrorEntry) {
	r.Valid = false
	r.Errors = append(r.Errors, e)
}

// AddViolation appends a structured violation.
func (r *Result) AddViolation(v Violation) {
	r.AddError(ViolationEntry(v))
}

// Normalize restores the Valid/Errors invariant after decoding.
func (r *Result) Normalize() *Result {
	if r.Errors == nil {
		r.Errors = []ErrorEntry{}
	}
	r.Valid = len(r.Errors) == 0
	return r
}

// Summary joins every entry, each terminated with a period.
func (r *Result) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.String()+".")
	}
	return strings.Join(parts, " ")
}
