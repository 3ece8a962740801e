package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/respvalidator/pkg/supervisor"
	"github.com/getmockd/respvalidator/pkg/validation"
)

func copySpec(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func petsOptions(t *testing.T) Options {
	return Options{Options: supervisor.Options{
		APISpec:                         copySpec(t, "pets.yaml"),
		ExitProcessWhenServiceIsStopped: supervisor.Bool(false),
	}}
}

func initialised(t *testing.T) *Client {
	t.Helper()
	c := New()
	port, err := c.Initialise(context.Background(), petsOptions(t))
	require.NoError(t, err)
	require.NotZero(t, port)
	t.Cleanup(c.Dispose)
	return c
}

func TestClient_Lifecycle(t *testing.T) {
	c := New()
	assert.False(t, c.Initialised())
	assert.Equal(t, StateUninitialized, c.State())
	c.Dispose()

	port, err := c.Initialise(context.Background(), petsOptions(t))
	require.NoError(t, err)
	assert.True(t, c.Initialised())
	assert.False(t, c.InitialisationErrored())
	assert.Equal(t, port, c.Port())
	assert.NotEmpty(t, c.BaseURL())
	assert.NotEmpty(t, c.SpecPath())

	c.Dispose()
	assert.False(t, c.Initialised())
	assert.Zero(t, c.Port())

	_, err = c.ValidateResponse(context.Background(), "GET", "/v1/pets", 200, nil, json.RawMessage(`[]`))
	assert.ErrorIs(t, err, validation.ErrNotInitialized)
}

func TestClient_InitialiseErrors(t *testing.T) {
	c := New()

	_, err := c.Initialise(context.Background(), Options{})
	var cfgErr *validation.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "you must define the spec", err.Error())
	assert.False(t, c.InitialisationErrored())

	_, err = c.Initialise(context.Background(), Options{Options: supervisor.Options{
		APISpec:                         copySpec(t, "invalid.yaml"),
		ExitProcessWhenServiceIsStopped: supervisor.Bool(false),
	}})
	var initErr *validation.InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.True(t, c.InitialisationErrored())
	assert.False(t, c.Initialised())
	assert.Equal(t, StateErrored, c.State())
}

func TestClient_NotInitialised(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, err := c.ValidateResponse(ctx, "", "", 0, nil, nil)
	assert.ErrorIs(t, err, validation.ErrNotInitialized)

	err = c.AssertThatResponseIsValid(ctx, "GET", "/v1/pets", 200, nil, []byte(`[]`))
	assert.ErrorIs(t, err, validation.ErrNotInitialized)

	_, err = c.ValidateHTTPResponse(ctx, nil, nil)
	assert.ErrorIs(t, err, validation.ErrNotInitialized)
}

func TestClient_PetsScenarios(t *testing.T) {
	c := initialised(t)
	ctx := context.Background()

	result, err := c.ValidateResponse(ctx, "GET", "/v1/pets", 200, nil, json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)

	result, err = c.ValidateResponse(ctx, "GET", "/v1/pets", 200, nil, []map[string]string{{"dayOfWeek": "Monday"}})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 4)
	assert.Equal(t, "additionalProperties.openapi.validation", result.Errors[0].Violation.ErrorCode)
	assert.Equal(t, ".response[0].dayOfWeek", result.Errors[0].Violation.Path)
	for i, prop := range []string{"id", "name", "type"} {
		assert.Equal(t, "required.openapi.validation", result.Errors[i+1].Violation.ErrorCode)
		assert.Contains(t, result.Errors[i+1].Violation.Message, prop)
	}

	result, err = c.ValidateResponse(ctx, "GET", "/v1/pets", 200, nil, map[string]string{"dayOfWeek": "Monday"})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "type.openapi.validation", result.Errors[0].Violation.ErrorCode)
	assert.Equal(t, ".response", result.Errors[0].Violation.Path)

	result, err = c.ValidateResponse(ctx, "GET", "/v1/pets", 200, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "response body required.", result.Errors[0].Violation.Message)

	again, err := c.ValidateResponse(ctx, "GET", "/v1/pets", 200, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestClient_UnmatchedRoute(t *testing.T) {
	c := initialised(t)
	ctx := context.Background()

	result, err := c.ValidateResponse(ctx, "GET", "/v1/pets2", 200, map[string]string{}, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	require.True(t, result.Errors[0].IsViolation())
	assert.Equal(t, "/v1/pets2", result.Errors[0].Violation.Path)
	assert.Equal(t, "not found", result.Errors[0].Violation.Message)

	result, err = c.ValidateResponse(ctx, "POST", "/v1/pets", 200, map[string]string{}, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	require.True(t, result.Errors[0].IsViolation())
	assert.Equal(t, "/v1/pets", result.Errors[0].Violation.Path)
	assert.Equal(t, "POST method not allowed", result.Errors[0].Violation.Message)

	assert.True(t, c.Initialised())
	assert.False(t, c.InitialisationErrored())
}

// failingTransport fails every request.
type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("transport down")
}

func TestClient_FailedInitialiseDoesNotExit(t *testing.T) {
	var exits []int
	opts := Options{Options: supervisor.Options{
		APISpec:  copySpec(t, "pets.yaml"),
		ExitFunc: func(code int) { exits = append(exits, code) },
	}}

	c := New(WithHTTPClient(&http.Client{Transport: failingTransport{}}))
	_, err := c.Initialise(context.Background(), opts)

	var initErr *validation.InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Contains(t, err.Error(), "transport down")
	assert.True(t, c.InitialisationErrored())
	assert.False(t, c.Initialised())
	assert.Empty(t, exits)
}

func TestWithTimeout_CopiesHTTPClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Minute}
	c := New(WithHTTPClient(hc), WithTimeout(time.Second))

	assert.Equal(t, time.Minute, hc.Timeout)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.NotSame(t, hc, c.httpClient)
}

func TestClient_ArgumentErrors(t *testing.T) {
	c := initialised(t)
	ctx := context.Background()

	_, err := c.ValidateResponse(ctx, " ", "/v1/pets", 200, nil, nil)
	var argErr *validation.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "method", argErr.Argument)

	_, err = c.ValidateResponse(ctx, "GET", "", 200, nil, nil)
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "path", argErr.Argument)

	_, err = c.ValidateResponse(ctx, "GET", "/v1/pets", 200, nil, func() {})
	assert.Error(t, err)
}

func TestClient_Assert(t *testing.T) {
	c := initialised(t)
	ctx := context.Background()

	assert.NoError(t, c.AssertThatResponseIsValid(ctx, "GET", "/v1/pets", 200, nil, json.RawMessage(`[{"id":1,"name":"rex","type":"dog"}]`)))

	err := c.AssertThatResponseIsValid(ctx, "GET", "/v1/pets", 200, nil, nil)
	var assertErr *validation.AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t,
		`Response validation failed with the following errors: {"path":".response","message":"response body required."}.`,
		err.Error())
}

func TestClient_HTTPResponse(t *testing.T) {
	c := initialised(t)
	ctx := context.Background()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":1,"name":"rex","type":"dog","owner":"sam"}]`)
	}))
	defer api.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.URL+"/v1/pets?limit=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	result, err := c.ValidateHTTPResponse(ctx, req, resp)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ".response[0].owner", result.Errors[0].Violation.Path)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"owner":"sam"`)

	err = c.AssertHTTPResponseIsValid(ctx, req, resp)
	var assertErr *validation.AssertionError
	require.ErrorAs(t, err, &assertErr)

	_, err = c.ValidateHTTPResponse(ctx, nil, resp)
	var argErr *validation.ArgumentError
	require.ErrorAs(t, err, &argErr)
}

func TestClient_TransportFailureIsResult(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	c := New()
	port, err := c.Initialise(context.Background(), Options{ServiceURL: svc.URL})
	require.NoError(t, err)
	assert.NotZero(t, port)
	t.Cleanup(c.Dispose)

	svc.Close()

	result, err := c.ValidateResponse(context.Background(), "GET", "/v1/pets", 200, nil, json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.False(t, result.Errors[0].IsViolation())
	assert.NotEmpty(t, result.Errors[0].Message)
}

func TestClient_ServiceURL(t *testing.T) {
	var got validation.Request
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/readiness":
			w.WriteHeader(http.StatusAccepted)
		case "/validate-response":
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = io.WriteString(w, `{"valid":true,"errors":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer svc.Close()

	c := New()
	_, err := c.Initialise(context.Background(), Options{ServiceURL: svc.URL + "/", ReadinessPath: "/api/readiness"})
	require.NoError(t, err)
	defer c.Dispose()

	result, err := c.ValidateResponse(context.Background(), "get", "v1/pets", 200,
		map[string]string{"Content-Type": "application/json"}, json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "get", got.Method)
	assert.Equal(t, "v1/pets", got.Path)
	assert.Equal(t, "application/json", got.Headers["Content-Type"])
}

func TestClient_ServiceURLNotReady(t *testing.T) {
	svc := httptest.NewServer(http.NotFoundHandler())
	defer svc.Close()

	c := New()
	opts := Options{ServiceURL: svc.URL}
	opts.PollAttempts = 2
	opts.PollInterval = 1
	_, err := c.Initialise(context.Background(), opts)

	var initErr *validation.InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.True(t, c.InitialisationErrored())
}

func TestJSONBody(t *testing.T) {
	assert.Nil(t, jsonBody(nil))
	assert.Nil(t, jsonBody([]byte("  \n")))
	assert.JSONEq(t, `{"a":1}`, string(jsonBody([]byte(` {"a":1} `))))
	assert.Equal(t, `"not json"`, string(jsonBody([]byte("not json"))))
}

func TestFromHTTP_Headers(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/v1/pets", nil)
	resp := &http.Response{
		StatusCode: http.StatusCreated,
		Header: http.Header{
			"Content-Type": {"application/json", "text/plain"},
			"X-Empty":      {},
		},
		Body: io.NopCloser(strings.NewReader("")),
	}

	method, path, status, headers, body, err := fromHTTP(req, resp)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/v1/pets", path)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, map[string]string{"Content-Type": "application/json", "X-Empty": ""}, headers)
	assert.Nil(t, body)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "errored", StateErrored.String())
}
