// Package validation checks HTTP responses against an OpenAPI 3 document.
//
// The package holds the types shared by the validation service and its
// clients: the Request envelope, the Result returned for every validation
// and the error taxonomy used by the client facade.
//
// # Engine
//
// OpenAPIEngine compiles a spec with kin-openapi and validates one
// synthetic exchange at a time:
//
//	eng, err := validation.LoadOpenAPIEngine(ctx, "api.yaml")
//	if err != nil {
//	    return err
//	}
//	ex := &validation.Exchange{Request: &validation.Request{
//	    Method:     "GET",
//	    Path:       "/v1/pets",
//	    StatusCode: 200,
//	    JSON:       []byte(`[{"id":1,"name":"rex","type":"dog"}]`),
//	}}
//	err = eng.ValidateResponse(ctx, ex)
//
// A *SchemaError carries the structured violations. An unknown path or an
// undeclared method is reported as a violation on the request path. Any
// other error means the exchange could not be validated at all.
//
// # Spec Preparation
//
// PrepareSpec writes a copy of a spec with a GET readiness route added.
// The validation service answers 202 on that route once the spec compiled.
package validation
