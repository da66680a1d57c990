package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/server/middleware"
)

// DefaultMaxBodySize bounds JSON request bodies when no limit is configured.
const DefaultMaxBodySize int64 = 1 << 20

var (
	errInvalidBody  = apperr.Validation("Invalid JSON body")
	errBodyTooLarge = apperr.Validation("Request body too large")
	errNoIdentity   = apperr.Authentication("Authentication token is required")
)

// Responder writes JSON bodies and error envelopes. Every handler embeds one
// so error reporting is uniform across the API.
type Responder struct {
	logger      *slog.Logger
	production  bool
	maxBodySize int64
}

// NewResponder builds a Responder. In production mode the text of
// unexpected errors is hidden from clients.
func NewResponder(logger *slog.Logger, production bool, maxBodySize int64) Responder {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return Responder{logger: logger, production: production, maxBodySize: maxBodySize}
}

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the error envelope. Server-side failures are
// logged with the request id.
func (rs Responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := apperr.Envelope(err, !rs.production)
	if status >= http.StatusInternalServerError {
		rs.logger.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}
	apperr.Write(w, err, !rs.production)
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func (rs Responder) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	body := http.MaxBytesReader(w, r.Body, rs.maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errBodyTooLarge
		case errors.Is(err, io.EOF):
			return errInvalidBody
		default:
			return errInvalidBody.WithDetails(map[string]string{"reason": err.Error()})
		}
	}
	return nil
}

// identity returns the authenticated caller or an AuthenticationError when
// the route was mounted without an auth middleware.
func identity(r *http.Request) (*middleware.Identity, error) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		return nil, errNoIdentity
	}
	return id, nil
}
