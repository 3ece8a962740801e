package testing

import (
	"context"
	"net/http"
	"testing"

	"github.com/getmockd/respvalidator/pkg/client"
	"github.com/getmockd/respvalidator/pkg/supervisor"
	"github.com/getmockd/respvalidator/pkg/validation"
)

// Validator validates responses in tests.
type Validator struct {
	client *client.Client
}

// Option customises the client options used by New.
type Option func(*client.Options)

// WithPort pins the service port.
func WithPort(port int) Option {
	return func(o *client.Options) {
		o.Port = port
	}
}

// WithServiceURL validates against an already running service.
func WithServiceURL(url, readinessPath string) Option {
	return func(o *client.Options) {
		o.ServiceURL = url
		o.ReadinessPath = readinessPath
	}
}

// New starts a validation service for spec. It fails the test if the
// service cannot be initialised and disposes it on cleanup.
// Exiting the process on stop is always disabled.
func New(t testing.TB, spec string, opts ...Option) *Validator {
	t.Helper()

	o := client.Options{Options: supervisor.Options{APISpec: spec}}
	for _, opt := range opts {
		opt(&o)
	}
	o.ExitProcessWhenServiceIsStopped = supervisor.Bool(false)

	c := client.New()
	if _, err := c.Initialise(context.Background(), o); err != nil {
		t.Fatalf("failed to initialise response validator: %v", err)
	}
	t.Cleanup(c.Dispose)

	return &Validator{client: c}
}

// Client returns the underlying client.
func (v *Validator) Client() *client.Client {
	return v.client
}

// Validate returns the result for resp, failing the test on errors that
// prevent validation.
func (v *Validator) Validate(t testing.TB, req *http.Request, resp *http.Response) *validation.Result {
	t.Helper()
	result, err := v.client.ValidateHTTPResponse(context.Background(), req, resp)
	if err != nil {
		t.Fatalf("failed to validate response: %v", err)
	}
	return result
}

// AssertValid reports an error if resp does not match the spec.
func (v *Validator) AssertValid(t testing.TB, req *http.Request, resp *http.Response) bool {
	t.Helper()
	return reportResult(t, v.Validate(t, req, resp))
}

// AssertResponse reports an error if the described response does not
// match the spec. body follows client.Client.ValidateResponse.
func (v *Validator) AssertResponse(t testing.TB, method, path string, statusCode int, headers map[string]string, body any) bool {
	t.Helper()
	result, err := v.client.ValidateResponse(context.Background(), method, path, statusCode, headers, body)
	if err != nil {
		t.Errorf("failed to validate %s %s: %v", method, path, err)
		return false
	}
	return reportResult(t, result)
}

// AssertInvalid reports an error if the described response matches the
// spec, and returns the result for further checks.
func (v *Validator) AssertInvalid(t testing.TB, method, path string, statusCode int, headers map[string]string, body any) *validation.Result {
	t.Helper()
	result, err := v.client.ValidateResponse(context.Background(), method, path, statusCode, headers, body)
	if err != nil {
		t.Errorf("failed to validate %s %s: %v", method, path, err)
		return nil
	}
	if result.Valid {
		t.Errorf("expected %s %s %d to violate the spec", method, path, statusCode)
	}
	return result
}

func reportResult(t testing.TB, result *validation.Result) bool {
	t.Helper()
	if result.Valid {
		return true
	}
	t.Errorf("%v", &validation.AssertionError{Result: result})
	return false
}

// AssertErrorCode reports an error unless result holds a violation with
// the given errorCode at path.
func AssertErrorCode(t testing.TB, result *validation.Result, path, errorCode string) {
	t.Helper()
	if result == nil {
		t.Errorf("no result")
		return
	}
	for _, e := range result.Errors {
		if e.Violation != nil && e.Violation.Path == path && e.Violation.ErrorCode == errorCode {
			return
		}
	}
	t.Errorf("expected %s at %s, got: %s", errorCode, path, result.Summary())
}
