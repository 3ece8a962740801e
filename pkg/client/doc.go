// Package client is the library entry point for validating HTTP responses
// against an OpenAPI spec.
//
// A Client owns the lifecycle of one validation service:
//
//	c := client.New()
//	port, err := c.Initialise(ctx, client.Options{Options: supervisor.Options{
//	    APISpec:                         "api.yaml",
//	    ExitProcessWhenServiceIsStopped: supervisor.Bool(false),
//	}})
//	if err != nil {
//	    return err
//	}
//	defer c.Dispose()
//
//	result, err := c.ValidateResponse(ctx, "GET", "/v1/pets", 200, nil, json.RawMessage(body))
//
// Once initialised, failures to reach the service are reported inside the
// returned Result rather than as errors. Errors are reserved for calls made
// before Initialise and for missing arguments.
package client
