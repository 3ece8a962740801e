package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/respvalidator/pkg/validation"
)

// copySpec copies a fixture into a temp dir so prepared files land there.
func copySpec(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func startServer(t *testing.T, cfg Config, opts ...ServerOption) *Server {
	t.Helper()
	srv := NewServer(cfg, opts...)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func waitCompiled(t *testing.T, srv *Server) {
	t.Helper()
	select {
	case <-srv.Compiled():
	case <-time.After(10 * time.Second):
		t.Fatal("spec did not compile")
	}
}

func postValidate(t *testing.T, srv *Server, req validation.Request) (int, *validation.Result) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL()+ValidatePath, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var result validation.Result
	require.NoError(t, json.Unmarshal(data, &result), string(data))
	return resp.StatusCode, &result
}

func TestServer_StartRequiresSpec(t *testing.T) {
	srv := NewServer(Config{})
	err := srv.Start()
	var cfgErr *validation.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.False(t, srv.IsRunning())
}

func TestServer_StartMissingSpec(t *testing.T) {
	srv := NewServer(Config{SpecPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, srv.Start())
	assert.False(t, srv.IsRunning())
	assert.Zero(t, srv.Port())
}

func TestServer_Lifecycle(t *testing.T) {
	spec := copySpec(t, "pets.yaml")
	srv := startServer(t, Config{SpecPath: spec})

	assert.True(t, srv.IsRunning())
	assert.NotZero(t, srv.Port())
	assert.Equal(t, "/readiness", srv.ReadinessPath())
	assert.FileExists(t, srv.SpecPath())
	assert.Error(t, srv.Start())

	waitCompiled(t, srv)
	require.NoError(t, srv.Err())
	assert.False(t, srv.Errored())

	resp, err := http.Get(srv.URL() + srv.ReadinessPath())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	prepared := srv.SpecPath()
	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
	assert.False(t, srv.IsRunning())
	assert.NoFileExists(t, prepared)
	assert.FileExists(t, spec)
}

func TestServer_ValidatePets(t *testing.T) {
	srv := startServer(t, Config{SpecPath: copySpec(t, "pets.yaml")})
	waitCompiled(t, srv)

	status, result := postValidate(t, srv, validation.Request{
		Method: "GET", Path: "/v1/pets", StatusCode: 200, JSON: json.RawMessage(`[]`),
	})
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)

	_, result = postValidate(t, srv, validation.Request{
		Method: "GET", Path: "v1/pets", StatusCode: 200, JSON: json.RawMessage(`[{"dayOfWeek":"Monday"}]`),
	})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 4)
	assert.Equal(t, "additionalProperties.openapi.validation", result.Errors[0].Violation.ErrorCode)
	for _, e := range result.Errors[1:] {
		assert.Equal(t, "required.openapi.validation", e.Violation.ErrorCode)
	}

	_, result = postValidate(t, srv, validation.Request{
		Method: "GET", Path: "/v1/pets", StatusCode: 200, JSON: json.RawMessage(`{"dayOfWeek":"Monday"}`),
	})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ".response", result.Errors[0].Violation.Path)
	assert.Equal(t, "type.openapi.validation", result.Errors[0].Violation.ErrorCode)

	_, result = postValidate(t, srv, validation.Request{
		Method: "GET", Path: "/v1/pets", StatusCode: 200,
	})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "response body required.", result.Errors[0].Violation.Message)
}

func TestServer_CompileFailure(t *testing.T) {
	compileErr := errors.New("boom")
	srv := startServer(t, Config{SpecPath: copySpec(t, "pets.yaml")},
		WithEngineLoader(func(context.Context, string) (validation.Engine, error) {
			return nil, compileErr
		}))
	waitCompiled(t, srv)

	assert.True(t, srv.Errored())
	assert.ErrorIs(t, srv.Err(), compileErr)

	resp, err := http.Get(srv.URL() + srv.ReadinessPath())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_ReadinessBeforeCompile(t *testing.T) {
	release := make(chan struct{})
	srv := startServer(t, Config{SpecPath: copySpec(t, "pets.yaml")},
		WithEngineLoader(func(ctx context.Context, path string) (validation.Engine, error) {
			<-release
			return validation.LoadOpenAPIEngine(ctx, path)
		}))

	resp, err := http.Get(srv.URL() + srv.ReadinessPath())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	close(release)
	waitCompiled(t, srv)

	resp, err = http.Get(srv.URL() + srv.ReadinessPath())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
