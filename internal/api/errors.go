package api

import (
	"encoding/json"
	"net/http"

	levelerrors "levelup/internal/errors"
)

// ErrorResponse is the JSON body written for any failed request.
type ErrorResponse struct {
	Error          string                  `json:"error"`
	Code           string                  `json:"code"`
	Details        interface{}             `json:"details,omitempty"`
	SuggestedFixes []levelerrors.FixAction `json:"suggestedFixes,omitempty"`
}

// WriteError writes err as a JSON error response at the given status.
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := ErrorResponse{Error: err.Error(), Code: "INTERNAL_ERROR"}
	if lue, ok := err.(*levelerrors.LevelUpError); ok {
		resp.Code = string(lue.Code)
		resp.Details = lue.Details
		resp.SuggestedFixes = lue.SuggestedFixes
	}
	json.NewEncoder(w).Encode(resp)
}

// WriteLevelUpError writes a LevelUpError with its status derived from its
// error code.
func WriteLevelUpError(w http.ResponseWriter, err *levelerrors.LevelUpError) {
	WriteError(w, err, statusForCode(err.Code))
}

// statusForCode maps an engine error code to the HTTP status that best
// represents it to an API client.
func statusForCode(code levelerrors.ErrorCode) int {
	switch code {
	case levelerrors.NotFound:
		return http.StatusNotFound
	case levelerrors.InvalidRequest:
		return http.StatusBadRequest
	case levelerrors.Timeout:
		return http.StatusGatewayTimeout
	case levelerrors.PreconditionMismatch, levelerrors.ValidationRejected:
		return http.StatusUnprocessableEntity
	case levelerrors.RepositoryCorruption, levelerrors.InvariantViolation, levelerrors.SubprocessFailure, levelerrors.InternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes data as a JSON response at the given status.
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 response with a plain message.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, levelerrors.New(levelerrors.InvalidRequest, message, nil), http.StatusBadRequest)
}

// NotFound writes a 404 response with a plain message.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, levelerrors.New(levelerrors.NotFound, message, nil), http.StatusNotFound)
}

// InternalError writes a 500 response wrapping err.
func InternalError(w http.ResponseWriter, message string, err error) {
	WriteError(w, levelerrors.New(levelerrors.InternalError, message, err), http.StatusInternalServerError)
}
