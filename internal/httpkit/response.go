// Package httpkit holds the JSON and CORS helpers shared by the HTTP layer.
package httpkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "mailtpl/internal/pkg/errors"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// DecodeJSON decodes a single JSON value from the request body into v.
// Unknown fields are ignored; trailing data and oversized bodies are not.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.BadRequest(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return apperrors.BadRequest("request body is empty")
		default:
			return apperrors.BadRequest("invalid json body").WithField("reason", err.Error())
		}
	}
	if dec.More() {
		return apperrors.BadRequest("invalid json body").WithField("reason", "unexpected data after JSON value")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	WriteJSON(w, status, ErrorEnvelope{Error: ErrorBody{
		Code:    code,
		Message: msg,
		Details: details,
	}})
}

// WriteError writes err as the JSON error envelope. Internal errors are
// reported with a generic message and no details.
func WriteError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	var details map[string]any
	if code != apperrors.CodeInternal {
		details = apperrors.GetFields(err)
	}
	WriteErr(w, apperrors.GetHTTPStatus(err), string(code), apperrors.GetMessage(err), details)
}
