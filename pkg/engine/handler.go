package engine

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/getmockd/respvalidator/pkg/httputil"
	"github.com/getmockd/respvalidator/pkg/logging"
	"github.com/getmockd/respvalidator/pkg/validation"
)

// ValidatePath is the route that accepts validation requests.
const ValidatePath = "/validate-response"

// maxRequestBody caps the size of a validation request.
const maxRequestBody = 10 << 20

// Messages returned in plain-message error entries.
const (
	MessageNotReady    = "validation service is not ready"
	MessageNotHandled  = "response validation was not performed"
	MessageRouteAbsent = "route not found"
)

// Handler serves the readiness and validate routes.
type Handler struct {
	readinessPath string
	envelope      *validation.EnvelopeValidator
	log           *slog.Logger

	mu     sync.RWMutex
	engine validation.Engine
}

// NewHandler creates a Handler answering readiness on readinessPath.
// The handler reports not ready until SetEngine is called.
func NewHandler(readinessPath string, log *slog.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		readinessPath: readinessPath,
		envelope:      validation.NewEnvelopeValidator(),
		log:           log,
	}
}

// SetEngine installs the compiled engine.
func (h *Handler) SetEngine(e validation.Engine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.engine = e
}

func (h *Handler) getEngine() validation.Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == h.readinessPath:
		h.handleReadiness(w, r)
	case r.Method == http.MethodPost && r.URL.Path == ValidatePath:
		h.handleValidate(w, r)
	default:
		httputil.WriteNotFound(w, "not_found", MessageRouteAbsent)
	}
}

// handleReadiness answers 202 once the engine serves the readiness route.
func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	eng := h.getEngine()
	if eng == nil {
		httputil.WriteInternalError(w, "not_ready", MessageNotReady)
		return
	}
	if err := eng.Ready(r.Context(), h.readinessPath); err != nil {
		h.log.Warn("readiness check failed", "error", err)
		httputil.WriteInternalError(w, "not_ready", err.Error())
		return
	}
	httputil.WriteAccepted(w)
}

// handleValidate validates one response described by the request body.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	log := h.log.With("request_id", RequestID(r.Context()))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		log.Warn("failed to read validation request", "error", err)
		httputil.WriteJSON(w, http.StatusBadRequest, requestValidationFailed())
		return
	}

	req, err := h.envelope.Decode(body)
	if err != nil {
		log.Debug("rejected validation request", "error", err)
		httputil.WriteJSON(w, http.StatusBadRequest, requestValidationFailed())
		return
	}

	eng := h.getEngine()
	if eng == nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, messageResult(MessageNotReady))
		return
	}

	ex := &validation.Exchange{Request: req}
	status, result := Normalize(req, ex, eng.ValidateResponse(r.Context(), ex))

	log.Debug("validated response",
		"method", req.Method,
		"path", req.Path,
		"status_code", req.StatusCode,
		"valid", result.Valid,
		"errors", len(result.Errors))

	httputil.WriteJSON(w, status, result)
}

// Normalize maps an engine outcome to the HTTP status and result returned
// to the caller.
func Normalize(req *validation.Request, ex *validation.Exchange, err error) (int, *validation.Result) {
	var schemaErr *validation.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		result := validation.FailedResult()
		for _, v := range schemaErr.Violations {
			if v.Path == ValidatePath {
				v.Path = req.Path
			}
			result.AddViolation(v)
		}
		if len(schemaErr.Violations) == 0 {
			result.AddViolation(validation.Violation{Message: err.Error()})
		}
		return http.StatusOK, result
	case err != nil:
		return http.StatusOK, messageResult(err.Error())
	case !ex.Handled:
		return http.StatusInternalServerError, messageResult(MessageNotHandled)
	default:
		return http.StatusOK, validation.ValidResult()
	}
}

func messageResult(msg string) *validation.Result {
	return validation.FailedResult(validation.ViolationEntry(validation.Violation{Message: msg}))
}

func requestValidationFailed() *validation.Result {
	return messageResult(validation.RequestValidationFailed)
}

