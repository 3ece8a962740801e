package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RequestValidationFailed is the message returned for structurally invalid
// validation requests.
const RequestValidationFailed = "Request validation failed"

// envelopeSchema describes the body accepted by the validate route.
const envelopeSchema = `{
  "type": "object",
  "required": ["method", "path", "statusCode", "headers"],
  "properties": {
    "method": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "path": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "statusCode": {"type": "integer"},
    "headers": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "string"}
    },
    "json": true
  }
}`

// EnvelopeError lists why a validation request was rejected.
type EnvelopeError struct {
	Causes []string
}

func (e *EnvelopeError) Error() string {
	return RequestValidationFailed + ": " + strings.Join(e.Causes, "; ")
}

// EnvelopeValidator checks validation requests before they reach the engine.
type EnvelopeValidator struct {
	schema      *jsonschema.Schema
	schemaError error
	once        sync.Once
}

// NewEnvelopeValidator creates an EnvelopeValidator. The schema is
// compiled on first use.
func NewEnvelopeValidator() *EnvelopeValidator {
	return &EnvelopeValidator{}
}

// Decode validates body against the envelope schema and decodes it.
func (v *EnvelopeValidator) Decode(body []byte) (*Request, error) {
	v.once.Do(func() {
		v.schema, v.schemaError = compileEnvelope()
	})
	if v.schemaError != nil {
		return nil, fmt.Errorf("envelope schema compilation error: %w", v.schemaError)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &EnvelopeError{Causes: []string{"invalid JSON: " + err.Error()}}
	}

	if err := v.schema.Validate(doc); err != nil {
		envErr := &EnvelopeError{}
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			collectCauses(validationErr, envErr)
		} else {
			envErr.Causes = append(envErr.Causes, err.Error())
		}
		return nil, envErr
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &EnvelopeError{Causes: []string{err.Error()}}
	}
	return &req, nil
}

func compileEnvelope() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("envelope.json", strings.NewReader(envelopeSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	return compiler.Compile("envelope.json")
}

// collectCauses flattens the leaves of a jsonschema error tree.
func collectCauses(err *jsonschema.ValidationError, out *EnvelopeError) {
	if len(err.Causes) == 0 {
		field := strings.ReplaceAll(strings.TrimPrefix(err.InstanceLocation, "/"), "/", ".")
		if field != "" {
			out.Causes = append(out.Causes, field+": "+err.Message)
		} else {
			out.Causes = append(out.Causes, err.Message)
		}
		return
	}
	for _, cause := range err.Causes {
		collectCauses(cause, out)
	}
}
