package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// Exchange is the synthetic request/response pair handed to an Engine.
// Handled is set by the engine once a route matched and validation ran.
type Exchange struct {
	Request *Request
	Handled bool
}

// Engine validates one synthetic exchange against a compiled spec.
type Engine interface {
	// ValidateResponse returns nil when the response conforms, a
	// *SchemaError for structured violations, including an unknown path or
	// method, or any other error when validation could not be performed.
	ValidateResponse(ctx context.Context, ex *Exchange) error
	// Ready checks that the readiness route resolves in the compiled spec.
	Ready(ctx context.Context, readinessPath string) error
}

// syntheticHost is the host used for exchanges routed through the engine.
// Server hosts are stripped from the spec, so any host matches.
const syntheticHost = "http://respvalidator.invalid"

// Messages of route violations.
const (
	MessageRouteNotFound    = "not found"
	MessageMethodNotAllowed = "method not allowed"
)

var propertyReasonRe = regexp.MustCompile(`property "([^"]+)" is (missing|unsupported)`)

// OpenAPIEngine validates responses with kin-openapi.
type OpenAPIEngine struct {
	doc      *openapi3.T
	router   routers.Router
	specPath string
	options  *openapi3filter.Options
}

var _ Engine = (*OpenAPIEngine)(nil)

// LoadOpenAPIEngine compiles the spec at path.
func LoadOpenAPIEngine(ctx context.Context, path string) (*OpenAPIEngine, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load spec from file %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	doc.Servers = hostlessServers(doc.Servers)

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &OpenAPIEngine{
		doc:      doc,
		router:   router,
		specPath: path,
		options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}, nil
}

// hostlessServers reduces every server to its base path so that routing
// does not depend on the host of the synthetic request.
func hostlessServers(in openapi3.Servers) openapi3.Servers {
	var out openapi3.Servers
	seen := make(map[string]bool)
	for _, s := range in {
		if s == nil {
			continue
		}
		defaults := make(map[string]string, len(s.Variables))
		for name, v := range s.Variables {
			if v != nil {
				defaults[name] = v.Default
			}
		}
		base := ServerBasePath(s.URL, defaults)
		if base == "" {
			base = "/"
		}
		if seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, &openapi3.Server{URL: base})
	}
	return out
}

// ServerBasePath returns the path component of a server URL, with
// variables replaced by their defaults and the trailing slash trimmed.
func ServerBasePath(rawURL string, defaults map[string]string) string {
	for name, value := range defaults {
		rawURL = strings.ReplaceAll(rawURL, "{"+name+"}", value)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimRight(u.Path, "/")
}

// SpecPath returns the file the engine was compiled from.
func (e *OpenAPIEngine) SpecPath() string {
	return e.specPath
}

// Document returns the compiled OpenAPI document.
func (e *OpenAPIEngine) Document() *openapi3.T {
	return e.doc
}

// Ready implements Engine.
func (e *OpenAPIEngine) Ready(ctx context.Context, readinessPath string) error {
	ex := &Exchange{Request: &Request{
		Method:     http.MethodGet,
		Path:       readinessPath,
		StatusCode: http.StatusAccepted,
	}}
	if err := e.ValidateResponse(ctx, ex); err != nil {
		return fmt.Errorf("readiness route not served: %w", err)
	}
	if !ex.Handled {
		return errors.New("readiness route not served")
	}
	return nil
}

// ValidateResponse implements Engine.
func (e *OpenAPIEngine) ValidateResponse(ctx context.Context, ex *Exchange) error {
	if ex == nil || ex.Request == nil {
		return errors.New("no exchange to validate")
	}
	in := ex.Request
	method := strings.ToUpper(in.Method)
	path := in.NormalizedPath()

	req, err := http.NewRequestWithContext(ctx, method, syntheticHost+path, nil)
	if err != nil {
		return fmt.Errorf("invalid request %s %s: %w", method, path, err)
	}

	route, pathParams, err := e.router.FindRoute(req)
	switch {
	case errors.Is(err, routers.ErrPathNotFound):
		ex.Handled = true
		return &SchemaError{Violations: []Violation{{Path: path, Message: MessageRouteNotFound}}}
	case errors.Is(err, routers.ErrMethodNotAllowed):
		ex.Handled = true
		return &SchemaError{Violations: []Violation{{Path: path, Message: method + " " + MessageMethodNotAllowed}}}
	case err != nil:
		return fmt.Errorf("no route matches %s %s: %w", method, path, err)
	}

	header := make(http.Header, len(in.Headers)+1)
	for k, v := range in.Headers {
		header.Set(k, v)
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}

	requestInput := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
	}
	responseInput := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: requestInput,
		Status:                 in.StatusCode,
		Header:                 header,
		Options:                e.options,
	}

	if !hasBody(in.JSON) {
		if declaresContent(route, in.StatusCode) {
			ex.Handled = true
			return &SchemaError{Violations: []Violation{{
				Path:    ".response",
				Message: "response body required.",
			}}}
		}
	} else {
		responseInput.SetBodyBytes(bytes.Clone(in.JSON))
	}

	err = openapi3filter.ValidateResponse(ctx, responseInput)
	ex.Handled = true
	if err == nil {
		return nil
	}

	var violations []Violation
	if collectViolations(err, &violations) && len(violations) > 0 {
		return &SchemaError{Violations: violations}
	}
	return err
}

func hasBody(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// declaresContent reports whether the operation's response for status
// declares a body.
func declaresContent(route *routers.Route, status int) bool {
	if route == nil || route.Operation == nil || route.Operation.Responses == nil {
		return false
	}
	responses := route.Operation.Responses
	ref := responses.Status(status)
	if ref == nil {
		ref = responses.Value(strconv.Itoa(status/100) + "XX")
	}
	if ref == nil {
		ref = responses.Default()
	}
	if ref == nil || ref.Value == nil {
		return false
	}
	return len(ref.Value.Content) > 0
}

// collectViolations flattens kin-openapi errors into violations, keeping
// the engine's order. It returns false if err carried no schema detail.
func collectViolations(err error, out *[]Violation) bool {
	switch e := err.(type) {
	case openapi3.MultiError:
		found := false
		for _, inner := range e {
			if collectViolations(inner, out) {
				found = true
			}
		}
		return found
	case *openapi3filter.ResponseError:
		if e.Err == nil {
			return false
		}
		return collectViolations(e.Err, out)
	case *openapi3.SchemaError:
		*out = append(*out, schemaViolation(e))
		return true
	}
	return false
}

// schemaViolation maps one kin-openapi schema error to a violation.
func schemaViolation(se *openapi3.SchemaError) Violation {
	keyword := se.SchemaField
	pointer := se.JSONPointer()

	var property string
	if m := propertyReasonRe.FindStringSubmatch(se.Reason); m != nil {
		property = m[1]
		if m[2] == "unsupported" {
			keyword = "additionalProperties"
		}
		if len(pointer) == 0 || pointer[len(pointer)-1] != property {
			pointer = append(slices.Clip(pointer), property)
		}
	}

	message := se.Reason
	switch keyword {
	case "required":
		if property == "" && len(pointer) > 0 {
			property = pointer[len(pointer)-1]
		}
		message = fmt.Sprintf("should have required property '%s'", property)
	case "additionalProperties":
		message = "should NOT have additional properties"
	case "type":
		if se.Schema != nil && se.Schema.Type != nil && len(se.Schema.Type.Slice()) > 0 {
			message = "should be " + strings.Join(se.Schema.Type.Slice(), ",")
		}
	}

	return Violation{
		Path:      ".response" + formatJSONPath(pointer),
		Message:   message,
		ErrorCode: ErrorCode(keyword),
	}
}

// formatJSONPath converts ["0", "id"] to "[0].id".
func formatJSONPath(parts []string) string {
	var sb strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if isNumeric(part) {
			sb.WriteString("[")
			sb.WriteString(part)
			sb.WriteString("]")
		} else {
			sb.WriteString(".")
			sb.WriteString(part)
		}
	}
	return sb.String()
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
