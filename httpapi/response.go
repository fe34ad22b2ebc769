package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hupe1980/raaf"
	"github.com/hupe1980/raaf/core"
)

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeNotFound       = "not_found"
	errorCodeConflict       = "conflict"
	errorCodeTooLarge       = "too_large"
	errorCodeRuntime        = "runtime_error"
)

var (
	errInvalidRequest  = errors.New("invalid request")
	errRequestTooLarge = errors.New("request too large")
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	writeError(w, status, code, err.Error())
}

func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeMappedError(w, invalidRequestError(message))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return invalidRequestError("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("%w: request body exceeds %d bytes", errRequestTooLarge, maxBytesErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return invalidRequestError("request body is required")
		}
		return invalidRequestError(fmt.Sprintf("invalid JSON body: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidRequestError("request body must contain exactly one JSON object")
	}

	return nil
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidRequest), errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.Is(err, errRequestTooLarge):
		return http.StatusRequestEntityTooLarge, errorCodeTooLarge
	case errors.Is(err, raaf.ErrAgentNotFound), errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound, errorCodeNotFound
	case errors.Is(err, core.ErrSessionLocked):
		return http.StatusConflict, errorCodeConflict
	default:
		return http.StatusInternalServerError, errorCodeRuntime
	}
}

// isRunFailure reports whether err is an outcome of the run itself, reported
// as 200 with success=false, rather than a request-level failure. Request
// fields are validated by the handler before the run starts, so an invalid
// argument surfacing here (a provider 400, a bad tool call) is a run failure.
func isRunFailure(err error) bool {
	switch {
	case errors.Is(err, raaf.ErrAgentNotFound),
		errors.Is(err, core.ErrSessionLocked):
		return false
	}
	return true
}

func invalidRequestError(message string) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, message)
}
