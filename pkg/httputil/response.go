// Package httputil provides shared HTTP utilities for the validation
// service and its client.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of infrastructure errors that carry no
// validation result, such as an unknown route or a service that is not
// ready.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an ErrorResponse with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteJSON(w, status, ErrorResponse{Error: errCode, Message: message})
}

// WriteAccepted writes an empty 202 Accepted response.
func WriteAccepted(w http.ResponseWriter) {
	w.WriteHeader(http.StatusAccepted)
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, errCode, message string) {
	WriteError(w, http.StatusNotFound, errCode, message)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, errCode, message string) {
	WriteError(w, http.StatusInternalServerError, errCode, message)
}

// DecodeError parses an ErrorResponse body. ok is false when body is not
// an error response with a message.
func DecodeError(body []byte) (resp ErrorResponse, ok bool) {
	if err := json.Unmarshal(body, &resp); err != nil {
		return ErrorResponse{}, false
	}
	return resp, resp.Message != ""
}
