package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"ore-autominer/internal/app/control"
)

const maxBodyBytes = 1 << 16

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

func WriteHTTPError(w http.ResponseWriter, status int, code string) {
	writeError(w, status, code, "")
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: false, Error: code, Message: msg})
}

// WriteServiceError maps a control-layer error onto its status and code.
// Internal failures are logged and not echoed.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := control.Code(err)
	status := StatusForCode(code)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = ""
	}
	writeError(w, status, code, msg)
}

func StatusForCode(code string) int {
	switch code {
	case control.CodeInvalidRequest, control.CodeInsufficientBalance:
		return http.StatusBadRequest
	case control.CodeWalletNotFound, control.CodeSessionNotFound:
		return http.StatusNotFound
	case control.CodeDuplicateClaimInFlight, control.CodeBudgetExceeded, control.CodeWalletExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", control.ErrInvalidRequest, err)
	}
	return nil
}
