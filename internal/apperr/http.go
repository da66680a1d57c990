package apperr

import (
	"encoding/json"
	"net/http"

	"github.com/sofragment/fragment/internal/model"
)

// Envelope converts err into its HTTP status and response body. An error
// that is not an *Error becomes an InternalError. Underlying causes appear
// in the message only when expose is true (development mode).
func Envelope(err error, expose bool) (int, model.ErrorResponse) {
	e, ok := As(err)
	if !ok {
		msg := "Internal server error"
		if expose && err != nil {
			msg = err.Error()
		}
		e = &Error{Type: TypeInternal, Message: msg}
	}

	msg := e.Message
	if expose && e.Err != nil && (e.Type == TypeInternal || e.Type == TypeDatabase) {
		msg += ": " + e.Err.Error()
	}
	return e.Status(), model.ErrorResponse{
		Error: model.ErrorDetail{
			Type:    string(e.Type),
			Message: msg,
			Details: e.Details,
		},
	}
}

// Write sends err as a JSON error envelope.
func Write(w http.ResponseWriter, err error, expose bool) {
	status, body := Envelope(err, expose)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
