package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/knjiznica/internal/lending"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

// invalidInput writes a 400 with the INVALID_INPUT code.
func invalidInput(w http.ResponseWriter, message string) {
	jsonResponse(w, http.StatusBadRequest, errorBody{Error: message, Code: string(lending.CodeInvalidInput)})
}

// engineError maps a lending error to its HTTP status and writes it.
func engineError(w http.ResponseWriter, r *http.Request, err error) {
	var le *lending.Error
	if !errors.As(err, &le) {
		slog.Error("request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	message := le.Message
	switch le.Kind {
	case lending.KindNotFound:
		status = http.StatusNotFound
	case lending.KindConflict:
		status = http.StatusConflict
	case lending.KindPolicyViolation:
		status = http.StatusUnprocessableEntity
	case lending.KindInvalidInput:
		status = http.StatusBadRequest
	case lending.KindPersistence:
		status = http.StatusServiceUnavailable
		if le.Code == lending.CodePersistenceFailure {
			message = "storage unavailable, try again"
		}
		slog.Error("storage failure", "path", r.URL.Path, "request_id", RequestID(r.Context()),
			"code", le.Code, "error", err)
	}

	jsonResponse(w, status, errorBody{Error: message, Code: string(le.Code)})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// money formats an amount with two decimals.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
