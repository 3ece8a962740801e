package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getmockd/respvalidator/pkg/validation"
)

// ValidateResponse validates one response against the spec.
//
// body is the JSON response body: json.RawMessage and []byte are sent as
// is, nil means no body, anything else is marshalled. Once the client is
// initialised, transport failures come back as an invalid Result.
func (c *Client) ValidateResponse(ctx context.Context, method, path string, statusCode int, headers map[string]string, body any) (*validation.Result, error) {
	eng, err := c.readyEngine()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(method) == "" {
		return nil, &validation.ArgumentError{Argument: "method"}
	}
	if strings.TrimSpace(path) == "" {
		return nil, &validation.ArgumentError{Argument: "path"}
	}

	raw, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	result, err := eng.Validate(ctx, &validation.Request{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Headers:    headers,
		JSON:       raw,
	})
	if err != nil {
		c.log.Warn("validation call failed", "method", method, "path", path, "error", err)
		return validation.FailedResult(validation.MessageEntry(err.Error())), nil
	}
	return result, nil
}

// ValidateHTTPResponse validates resp as the answer to req. The response
// body is read and restored so the caller can still consume it.
func (c *Client) ValidateHTTPResponse(ctx context.Context, req *http.Request, resp *http.Response) (*validation.Result, error) {
	if _, err := c.readyEngine(); err != nil {
		return nil, err
	}
	method, path, statusCode, headers, body, err := fromHTTP(req, resp)
	if err != nil {
		return nil, err
	}
	return c.ValidateResponse(ctx, method, path, statusCode, headers, body)
}

// AssertThatResponseIsValid is ValidateResponse returning an
// *validation.AssertionError when the response is invalid.
func (c *Client) AssertThatResponseIsValid(ctx context.Context, method, path string, statusCode int, headers map[string]string, body any) error {
	result, err := c.ValidateResponse(ctx, method, path, statusCode, headers, body)
	return assertValid(result, err)
}

// AssertHTTPResponseIsValid is ValidateHTTPResponse returning an
// *validation.AssertionError when the response is invalid.
func (c *Client) AssertHTTPResponseIsValid(ctx context.Context, req *http.Request, resp *http.Response) error {
	result, err := c.ValidateHTTPResponse(ctx, req, resp)
	return assertValid(result, err)
}

func assertValid(result *validation.Result, err error) error {
	if err != nil {
		return err
	}
	if !result.Valid {
		return &validation.AssertionError{Result: result}
	}
	return nil
}

func encodeBody(body any) (json.RawMessage, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return json.RawMessage(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode response body: %w", err)
		}
		return data, nil
	}
}

// fromHTTP extracts the validation arguments from a request/response pair.
func fromHTTP(req *http.Request, resp *http.Response) (string, string, int, map[string]string, json.RawMessage, error) {
	if req == nil || req.URL == nil {
		return "", "", 0, nil, nil, &validation.ArgumentError{Argument: "request"}
	}
	if resp == nil {
		return "", "", 0, nil, nil, &validation.ArgumentError{Argument: "response"}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	path := req.URL.Path
	if path == "" {
		path = "/"
	}

	headers := make(map[string]string, len(resp.Header))
	for name, values := range resp.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		} else {
			headers[name] = ""
		}
	}

	var data []byte
	if resp.Body != nil {
		var err error
		data, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(data))
		if err != nil {
			return "", "", 0, nil, nil, fmt.Errorf("failed to read response body: %w", err)
		}
	}

	return method, path, resp.StatusCode, headers, jsonBody(data), nil
}

// jsonBody returns data when it is JSON, data as a JSON string otherwise,
// and nil when it is empty.
func jsonBody(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}
