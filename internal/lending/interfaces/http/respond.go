package http

import (
	"encoding/json"
	"errors"
	"net/http"

	lending "laptop-lending/internal/lending/domain"
)

type errorBody struct {
	Error  string `json:"error"`
	Result any    `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps lending errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lending.ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, lending.ErrUnknownDevice),
		errors.Is(err, lending.ErrUnknownRequester),
		errors.Is(err, lending.ErrUnknownReservation):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrRequesterAlreadyServed),
		errors.Is(err, lending.ErrAlreadyQueued),
		errors.Is(err, lending.ErrDeviceNotAvailable),
		errors.Is(err, lending.ErrInvalidStatusTransition),
		errors.Is(err, lending.ErrInvalidTransition),
		errors.Is(err, lending.ErrDuplicateDevice),
		errors.Is(err, lending.ErrDuplicateRequester),
		errors.Is(err, lending.ErrDeviceInUse),
		errors.Is(err, lending.ErrTierMismatch):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// respondError writes err. A persistence failure carries the committed result, which
// stands in memory even though the store rejected it.
func respondError(w http.ResponseWriter, err error, committed any) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if status == http.StatusServiceUnavailable {
		body.Result = committed
	}
	writeJSON(w, status, body)
}

// respondResult writes result with status, or the error mapping when err is set.
func respondResult(w http.ResponseWriter, status int, result any, err error) {
	if err != nil {
		respondError(w, err, result)
		return
	}
	writeJSON(w, status, result)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}
