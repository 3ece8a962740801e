// Package engine provides the HTTP validation service.
//
// The service exposes exactly two routes:
//
//	GET  <readiness path>    202 once the spec compiled, 500 before
//	POST /validate-response  validate one response, 200 with {valid, errors}
//
// Every other method or path gets a 404 without touching the schema engine.
//
// # Lifecycle
//
// Server.Start binds the listener, writes the spec copy carrying the
// readiness route and compiles it in the background. A compilation failure
// is exposed through Errored and Err so that a supervisor polling the
// readiness route can stop early.
//
//	srv := engine.NewServer(engine.Config{SpecPath: "api.yaml"})
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop(context.Background())
//	fmt.Println(srv.URL() + srv.ReadinessPath())
package engine
