package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrorBody represents a consistent error payload returned by the API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// DecodeJSON decodes a single JSON document from the request body into dst.
// Malformed bodies yield an INVALID_REQUEST AppError, bodies cut off by
// http.MaxBytesReader a PAYLOAD_TOO_LARGE one.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return BadRequest(CodeInvalidRequest, "request body is required", nil)
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return NewAppError(CodePayloadTooLarge, "request entity too large", http.StatusRequestEntityTooLarge, err).
				WithDetails(map[string]any{"max_bytes": maxErr.Limit})
		}
		if errors.Is(err, io.EOF) {
			return BadRequest(CodeInvalidRequest, "request body is required", err)
		}
		appErr := BadRequest(CodeInvalidRequest, "malformed JSON body", err)
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			appErr.Details = map[string]any{"offset": syntaxErr.Offset}
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			appErr.Details = map[string]any{"field": typeErr.Field, "expected": typeErr.Type.String()}
		}
		return appErr
	}
	if dec.More() {
		return BadRequest(CodeInvalidRequest, "request body must contain a single JSON document", fmt.Errorf("trailing data"))
	}
	return nil
}
