// Package httputil holds the response envelopes, error mapping tables and
// middleware shared by all HTTP handlers.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// All JSON responses use one of two envelopes: {"data": ...} on success,
// {"error": {"message": ..., "details": ...}} on failure.
type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// Success writes data wrapped in the {"data": ...} envelope.
func Success(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataEnvelope{Data: data})
}

// Error writes a message wrapped in the error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Message: message}})
}

// JSON writes a payload without an envelope. Reserved for endpoints with
// their own contract, like /version.
func JSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, payload)
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("write response", "error", err)
	}
}

// ValidationError writes a 400 with per-field details when err is a
// validator.ValidationErrors, or the plain error text otherwise.
func ValidationError(w http.ResponseWriter, err error) {
	var details any
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		items := make([]map[string]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			items = append(items, map[string]string{
				"field":   fe.Field(),
				"message": fe.Tag(),
			})
		}
		details = items
	} else {
		details = err.Error()
	}

	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorBody{Message: "validation error", Details: details},
	})
}
