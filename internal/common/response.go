package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Envelope wraps every successful payload. Empty marks a well-formed request
// that produced no result.
type Envelope struct {
	Data  any  `json:"data"`
	Empty bool `json:"empty,omitempty"`
}

// ErrorBody is the payload under "error" in failed responses.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status. HTML characters are not escaped.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// Data writes v inside an Envelope.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, Envelope{Data: v})
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, struct {
		Error ErrorBody `json:"error"`
	}{ErrorBody{Code: code, Message: message, Details: details}})
}

// DecodeJSON decodes exactly one JSON value from the body into dst. Unknown
// fields and trailing data are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return BadRequest("body", "request body is required", nil)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			appErr := PayloadTooLarge(maxErr.Limit)
			appErr.Err = err
			return appErr
		case errors.Is(err, io.EOF):
			return BadRequest("body", "request body is required", err)
		default:
			return BadRequest("body", "invalid JSON body", err)
		}
	}
	if dec.More() {
		return BadRequest("body", "request body must contain a single JSON object", nil)
	}
	return nil
}
